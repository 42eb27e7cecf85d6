package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiClient struct {
	client *genai.Client
}

// NewGemini creates a Gemini-backed Client using the provided API key.
func NewGemini(ctx context.Context, apiKey string) (Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiClient{client: client}, nil
}

func (c *geminiClient) Generate(ctx context.Context, req Request) (Completion, error) {
	var parts []*genai.Part
	if req.ImageData != nil {
		parts = append(parts, genai.NewPartFromBytes(req.ImageData, req.ImageMIME))
	}
	if req.User != "" {
		parts = append(parts, genai.NewPartFromText(req.User))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = genai.Ptr(int32(req.MaxTokens))
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, "user")
	}
	if req.ForceJSON {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = rawResultSchemaHint
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, []*genai.Content{
		genai.NewContentFromParts(parts, "user"),
	}, config)
	if err != nil {
		return Completion{}, classifyGeminiError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return Completion{}, nil
	}

	candidate := resp.Candidates[0]
	truncated := candidate.FinishReason == genai.FinishReasonMaxTokens

	var b strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
	}

	return Completion{Text: b.String(), Truncated: truncated}, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:       classifyStatus(apiErr.Code),
			StatusCode: apiErr.Code,
			Err:        err,
		}
	}
	// No HTTP status means the request never got a response.
	return &Error{Kind: ErrTransient, Err: err}
}

// rawResultSchemaHint nudges Gemini toward the raw analysis result shape.
// Enforcement happens downstream; this only improves first-shot validity.
var rawResultSchemaHint = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"overallGrade": {Type: genai.TypeString, Enum: []string{"good", "normal", "bad"}},
		"overallScore": {Type: genai.TypeInteger},
		"details": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"color":    detailScoreSchemaHint,
				"marbling": detailScoreSchemaHint,
				"surface":  detailScoreSchemaHint,
				"shape":    detailScoreSchemaHint,
			},
			Required: []string{"color", "marbling", "surface", "shape"},
		},
		"warnings":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"goodTraits":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"limitations": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"cutReference": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"goodDescription": {Type: genai.TypeString},
				"badDescription":  {Type: genai.TypeString},
			},
			Required: []string{"goodDescription", "badDescription"},
		},
		"analyzedAt": {Type: genai.TypeString},
	},
	Required: []string{
		"overallGrade", "overallScore", "details",
		"warnings", "goodTraits", "limitations", "cutReference", "analyzedAt",
	},
}

var detailScoreSchemaHint = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score":       {Type: genai.TypeInteger},
		"description": {Type: genai.TypeString},
	},
	Required: []string{"score", "description"},
}
