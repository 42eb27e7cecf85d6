package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type claudeClient struct {
	client anthropic.Client
}

// NewClaude creates a Claude-backed Client using the provided API key.
func NewClaude(apiKey string) Client {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &claudeClient{client: client}
}

func (c *claudeClient) Generate(ctx context.Context, req Request) (Completion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if req.ImageData != nil {
		encoded := base64.StdEncoding.EncodeToString(req.ImageData)
		blocks = append(blocks, anthropic.NewImageBlockBase64(req.ImageMIME, encoded))
	}
	if req.User != "" {
		blocks = append(blocks, anthropic.NewTextBlock(req.User))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, classifyClaudeError(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return Completion{
		Text:      b.String(),
		Truncated: resp.StopReason == "max_tokens",
	}, nil
}

func classifyClaudeError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:       classifyStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return &Error{Kind: ErrTransient, Err: fmt.Errorf("claude request: %w", err)}
}
