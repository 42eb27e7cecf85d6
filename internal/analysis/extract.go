package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// snippetLimit bounds the diagnostic excerpt carried by a parse failure so
// error payloads never grow with the response size.
const snippetLimit = 280

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// ExtractJSON pulls the first structurally valid JSON value out of model
// response text of unknown cleanliness. Strategies are tried in order, first
// success wins:
//
//  1. direct parse of the trimmed text
//  2. each fenced code-block body
//  3. the substring between the first '{' and the last '}'
//
// Every candidate that fails a direct parse is retried once with trailing
// commas stripped. On total failure the returned error is a pipeline Error
// of kind invalid_ai_response carrying a truncated snippet of the input.
func ExtractJSON(text string) (json.RawMessage, error) {
	for _, candidate := range extractionCandidates(text) {
		if parsed, ok := tryParse(candidate); ok {
			return parsed, nil
		}
	}

	return nil, &Error{
		Kind: ErrInvalidAIResponse,
		Msg:  "no extraction strategy produced valid JSON: " + Snippet(text),
	}
}

func extractionCandidates(text string) []string {
	trimmed := strings.TrimSpace(text)
	candidates := []string{trimmed}

	for _, match := range fencedBlockRe.FindAllStringSubmatch(trimmed, -1) {
		candidates = append(candidates, strings.TrimSpace(match[1]))
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			candidates = append(candidates, trimmed[start:end+1])
		}
	}

	return candidates
}

func tryParse(candidate string) (json.RawMessage, bool) {
	if candidate == "" {
		return nil, false
	}
	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), true
	}
	cleaned := trailingCommaRe.ReplaceAllString(candidate, "$1")
	if cleaned != candidate && json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), true
	}
	return nil, false
}

// Snippet collapses whitespace and truncates text for diagnostics.
func Snippet(text string) string {
	collapsed := whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	if len(collapsed) <= snippetLimit {
		return collapsed
	}
	cut := collapsed[:snippetLimit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
