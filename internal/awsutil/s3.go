package awsutil

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore defines the S3 operation used for audit uploads of analyzed
// images.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader) error
}

// S3API is the subset of the S3 client we use.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectStore struct {
	client S3API
}

// NewObjectStore creates an ObjectStore from an S3 service client.
func NewObjectStore(client S3API) ObjectStore {
	return &objectStore{client: client}
}

func (c *objectStore) PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}
