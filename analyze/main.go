package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/meatgrade/meatgrade-service/internal/analysis"
	"github.com/meatgrade/meatgrade-service/internal/awsutil"
	"github.com/meatgrade/meatgrade-service/internal/obs"
	"github.com/meatgrade/meatgrade-service/internal/ratelimit"
	"github.com/meatgrade/meatgrade-service/internal/vision"
)

func main() {
	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}

	secrets := awsutil.NewSecretsProvider(secretsmanager.NewFromConfig(cfg))

	var store awsutil.ObjectStore
	auditBucket := os.Getenv("AUDIT_BUCKET")
	if auditBucket != "" {
		store = awsutil.NewObjectStore(s3.NewFromConfig(cfg))
	}

	var eventLogger obs.Logger
	if queueURL := os.Getenv("OBS_QUEUE_URL"); queueURL != "" {
		eventLogger = obs.NewStdLogger(awsutil.NewSQSClient(sqs.NewFromConfig(cfg)), queueURL)
	} else {
		eventLogger = obs.NewStdLogger(nil, "")
	}

	client, model, err := buildVisionClient(ctx, secrets)
	if err != nil {
		log.Fatalf("build vision client: %v", err)
	}

	analyzer := analysis.New(analysis.Config{
		Client:  client,
		Model:   model,
		Timeout: time.Duration(envInt("ANALYSIS_TIMEOUT_SECONDS", 25)) * time.Second,
		Events:  eventLogger,
	})

	h := &Handler{
		analyzer:    analyzer,
		limiter:     ratelimit.New(envInt("RATE_LIMIT", 10), time.Duration(envInt("RATE_WINDOW_SECONDS", 60))*time.Second),
		events:      eventLogger,
		store:       store,
		auditBucket: auditBucket,
	}

	lambda.Start(h.Handle)
}

// buildVisionClient selects the provider from VISION_PROVIDER and resolves
// its API key from Secrets Manager, or from the environment for local runs.
func buildVisionClient(ctx context.Context, secrets awsutil.SecretsProvider) (vision.Client, string, error) {
	provider := envOrDefault("VISION_PROVIDER", "gemini")

	switch provider {
	case "gemini":
		apiKey, err := resolveAPIKey(ctx, secrets, "GEMINI_API_KEY", "GEMINI_SECRET_ARN")
		if err != nil {
			return nil, "", err
		}
		client, err := vision.NewGemini(ctx, apiKey)
		if err != nil {
			return nil, "", err
		}
		return client, envOrDefault("VISION_MODEL", "gemini-2.5-flash"), nil
	case "claude":
		apiKey, err := resolveAPIKey(ctx, secrets, "ANTHROPIC_API_KEY", "ANTHROPIC_SECRET_ARN")
		if err != nil {
			return nil, "", err
		}
		return vision.NewClaude(apiKey), envOrDefault("VISION_MODEL", "claude-sonnet-4-5-20250929"), nil
	default:
		return nil, "", fmt.Errorf("unknown vision provider %q", provider)
	}
}

func resolveAPIKey(ctx context.Context, secrets awsutil.SecretsProvider, envKey, arnEnvKey string) (string, error) {
	if key := os.Getenv(envKey); key != "" {
		return key, nil
	}
	arn := os.Getenv(arnEnvKey)
	if arn == "" {
		return "", fmt.Errorf("neither %s nor %s is set", envKey, arnEnvKey)
	}
	secretMap, err := secrets.GetSecretJSON(ctx, arn)
	if err != nil {
		return "", fmt.Errorf("get api key secret: %w", err)
	}
	key, ok := secretMap[envKey]
	if !ok || key == "" {
		return "", fmt.Errorf("secret %s has no %s entry", arn, envKey)
	}
	return key, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
