package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/meatgrade/meatgrade-service/internal/analysis"
	"github.com/meatgrade/meatgrade-service/internal/awsutil"
	"github.com/meatgrade/meatgrade-service/internal/imageutil"
	"github.com/meatgrade/meatgrade-service/internal/meat"
	"github.com/meatgrade/meatgrade-service/internal/obs"
	"github.com/meatgrade/meatgrade-service/internal/ratelimit"
)

// MaxImageBase64Length caps the request payload. Roughly a 6 MB image after
// base64 expansion; API Gateway rejects larger bodies anyway.
const MaxImageBase64Length = 8_000_000

type analyzer interface {
	Analyze(ctx context.Context, imageData []byte, mimeType string, meatType meat.Type, cutKey string) (*analysis.Result, error)
}

// Handler holds dependencies for the analyze API.
type Handler struct {
	analyzer    analyzer
	limiter     *ratelimit.Limiter
	events      obs.Logger
	store       awsutil.ObjectStore // optional audit upload
	auditBucket string
}

type analyzeRequest struct {
	Image    string `json:"image"`
	MeatType string `json:"meatType"`
	Cut      string `json:"cut"`
}

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// Handle routes incoming API Gateway events.
func (h *Handler) Handle(ctx context.Context, rawEvent json.RawMessage) (events.APIGatewayProxyResponse, error) {
	// Check for EventBridge warmer
	var warmer struct {
		Source string `json:"source"`
	}
	if json.Unmarshal(rawEvent, &warmer) == nil && warmer.Source == "meatgrade.warmer" {
		return events.APIGatewayProxyResponse{StatusCode: 200, Body: "warm"}, nil
	}

	var event events.APIGatewayProxyRequest
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		return errResponse(400, "invalid request", "VALIDATION_ERROR")
	}

	switch {
	case event.HTTPMethod == "OPTIONS":
		return apiResponse(204, nil)
	case event.Resource == "/analyze" && event.HTTPMethod == "POST":
		return h.handleAnalyze(ctx, event)
	default:
		return errResponse(404, "not found", "NOT_FOUND")
	}
}

func (h *Handler) handleAnalyze(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	clientIP := sourceIP(event)

	if rl := h.limiter.Check(clientIP); !rl.Allowed {
		h.events.Emit("rate_limited", obs.LevelWarn, map[string]any{
			"ip":                obs.MaskIP(clientIP),
			"retryAfterSeconds": rl.RetryAfterSeconds,
		})
		resp, err := errResponse(429, "too many requests, try again later", "RATE_LIMIT")
		resp.Headers["Retry-After"] = strconv.Itoa(rl.RetryAfterSeconds)
		return resp, err
	}

	var req analyzeRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return errResponse(400, "request body is not valid JSON", "VALIDATION_ERROR")
	}
	if issues := validateRequest(req); len(issues) > 0 {
		return errResponseDetails(400, "invalid analyze request", "VALIDATION_ERROR", issues)
	}

	imageData, declaredMIME, err := decodeImagePayload(req.Image)
	if err != nil {
		return errResponse(400, "image payload could not be decoded", "VALIDATION_ERROR")
	}

	sniffedMIME, err := imageutil.Sniff(imageData)
	if err != nil {
		return errResponse(400, "unsupported or corrupt image", "VALIDATION_ERROR")
	}
	if declaredMIME != "" && declaredMIME != sniffedMIME {
		log.Printf("WARNING: declared media type %s does not match sniffed %s", declaredMIME, sniffedMIME)
	}

	imageData, mimeType, err := imageutil.Normalize(imageData, sniffedMIME)
	if err != nil {
		return errResponse(400, "image could not be processed", "VALIDATION_ERROR")
	}

	result, err := h.analyzer.Analyze(ctx, imageData, mimeType, meat.Type(req.MeatType), req.Cut)
	if err != nil {
		return analysisErrResponse(err)
	}

	h.auditUpload(ctx, clientIP, mimeType, imageData)

	return apiResponse(200, result)
}

// auditUpload keeps a copy of the analyzed image for offline review. Failure
// is logged, never surfaced.
func (h *Handler) auditUpload(ctx context.Context, clientIP, mimeType string, imageData []byte) {
	if h.store == nil || h.auditBucket == "" {
		return
	}
	key := fmt.Sprintf("audit/%s/%s", time.Now().UTC().Format("2006-01-02"),
		fmt.Sprintf("%d_%s.img", time.Now().UnixNano(), obs.MaskIP(clientIP)))
	if err := h.store.PutObject(ctx, h.auditBucket, key, mimeType, bytes.NewReader(imageData)); err != nil {
		log.Printf("WARNING: audit upload %s: %v", key, err)
	}
}

func validateRequest(req analyzeRequest) []string {
	var issues []string

	switch {
	case req.Image == "":
		issues = append(issues, "image data is required")
	case len(req.Image) > MaxImageBase64Length:
		issues = append(issues, "image payload exceeds size limit")
	case !looksLikeImagePayload(req.Image):
		issues = append(issues, "image is not valid base64 image data")
	}

	if !meat.ValidType(meat.Type(req.MeatType)) {
		issues = append(issues, "meatType must be beef or pork")
	}
	if req.Cut == "" {
		issues = append(issues, "cut is required")
	}
	return issues
}

var (
	dataURIRe    = regexp.MustCompile(`^data:(image/(?:jpeg|png|webp|gif));base64,(.+)$`)
	base64Head   = regexp.MustCompile(`^[A-Za-z0-9+/]+=*$`)
	headCheckLen = 100
)

func looksLikeImagePayload(image string) bool {
	if strings.HasPrefix(image, "data:image/") {
		return true
	}
	head := image
	if len(head) > headCheckLen {
		head = head[:headCheckLen]
	}
	return base64Head.MatchString(head)
}

// decodeImagePayload accepts a data URI or a bare base64 string (assumed
// JPEG, matching the capture client's default).
func decodeImagePayload(image string) ([]byte, string, error) {
	declaredMIME := ""
	payload := image
	if match := dataURIRe.FindStringSubmatch(image); match != nil {
		declaredMIME = match[1]
		payload = match[2]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, declaredMIME, nil
}

func sourceIP(event events.APIGatewayProxyRequest) string {
	if ip := event.RequestContext.Identity.SourceIP; ip != "" {
		return ip
	}
	return "unknown"
}

// analysisErrResponse maps each pipeline error kind to a distinct status and
// machine-readable code.
func analysisErrResponse(err error) (events.APIGatewayProxyResponse, error) {
	kind := analysis.KindOf(err)
	log.Printf("analysis failed (%s): %v", kind, err)

	switch kind {
	case analysis.ErrInvalidCut:
		return errResponse(400, "unknown meat type or cut", "INVALID_CUT")
	case analysis.ErrUpstreamAuth:
		return errResponse(401, "analysis backend rejected credentials", "AUTH_ERROR")
	case analysis.ErrUpstreamRateLimited:
		return errResponse(429, "analysis backend is throttling, try again later", "UPSTREAM_RATE_LIMIT")
	case analysis.ErrUpstreamTimeout:
		return errResponse(504, "analysis timed out", "UPSTREAM_TIMEOUT")
	case analysis.ErrUpstreamTransient:
		return errResponse(502, "analysis backend failed", "UPSTREAM_ERROR")
	case analysis.ErrUpstreamRejected:
		return errResponse(502, "analysis backend refused the request", "UPSTREAM_REJECTED")
	case analysis.ErrResponseTruncated:
		return errResponse(502, "analysis response was truncated", "RESPONSE_TRUNCATED")
	case analysis.ErrInvalidAIResponse:
		return errResponse(502, "analysis produced an unusable response", "INVALID_AI_RESPONSE")
	case analysis.ErrRawSchemaViolation:
		return errResponse(502, "analysis produced a malformed result", "RAW_SCHEMA_VIOLATION")
	default:
		return errResponse(500, "internal error", "INTERNAL_ERROR")
	}
}

// apiResponse builds an API Gateway proxy response with CORS headers.
func apiResponse(statusCode int, body any) (events.APIGatewayProxyResponse, error) {
	headers := map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	}
	if body == nil {
		return events.APIGatewayProxyResponse{StatusCode: statusCode, Headers: headers}, nil
	}

	b, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: 500,
			Headers:    headers,
			Body:       fmt.Sprintf(`{"error":"json marshal: %s","code":"INTERNAL_ERROR"}`, err.Error()),
		}, nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(b),
	}, nil
}

func errResponse(status int, msg, code string) (events.APIGatewayProxyResponse, error) {
	return apiResponse(status, errorBody{Error: msg, Code: code})
}

func errResponseDetails(status int, msg, code string, details []string) (events.APIGatewayProxyResponse, error) {
	return apiResponse(status, errorBody{Error: msg, Code: code, Details: details})
}
