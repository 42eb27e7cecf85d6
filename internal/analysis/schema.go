package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const detailScoreSchema = `{
	"type": "object",
	"properties": {
		"score": {"type": "integer", "minimum": 0, "maximum": 100},
		"description": {"type": "string"}
	},
	"required": ["score", "description"]
}`

var rawResultSchemaJSON = `{
	"$id": "meatgrade/raw-result.json",
	"type": "object",
	"properties": {
		"overallGrade": {"enum": ["good", "normal", "bad"]},
		"overallScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"details": {
			"type": "object",
			"properties": {
				"color": ` + detailScoreSchema + `,
				"marbling": ` + detailScoreSchema + `,
				"surface": ` + detailScoreSchema + `,
				"shape": ` + detailScoreSchema + `
			},
			"required": ["color", "marbling", "surface", "shape"]
		},
		"warnings": {"type": "array", "items": {"type": "string"}},
		"goodTraits": {"type": "array", "items": {"type": "string"}},
		"limitations": {"type": "array", "items": {"type": "string"}},
		"cutReference": {
			"type": "object",
			"properties": {
				"goodDescription": {"type": "string"},
				"badDescription": {"type": "string"}
			},
			"required": ["goodDescription", "badDescription"]
		},
		"analyzedAt": {"type": "string"}
	},
	"required": [
		"overallGrade", "overallScore", "details", "warnings",
		"goodTraits", "limitations", "cutReference", "analyzedAt"
	]
}`

var finalResultSchemaJSON = `{
	"$id": "meatgrade/final-result.json",
	"type": "object",
	"properties": {
		"overallGrade": {"enum": ["good", "normal", "bad"]},
		"overallScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"details": {
			"type": "object",
			"properties": {
				"color": ` + detailScoreSchema + `,
				"marbling": ` + detailScoreSchema + `,
				"surface": ` + detailScoreSchema + `,
				"shape": ` + detailScoreSchema + `
			},
			"required": ["color", "marbling", "surface", "shape"]
		},
		"warnings": {"type": "array", "items": {"type": "string"}},
		"goodTraits": {"type": "array", "items": {"type": "string"}},
		"limitations": {"type": "array", "items": {"type": "string"}},
		"cutReference": {
			"type": "object",
			"properties": {
				"goodDescription": {"type": "string"},
				"badDescription": {"type": "string"}
			},
			"required": ["goodDescription", "badDescription"]
		},
		"buyRecommendation": {"enum": ["buy", "conditional", "avoid"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasons": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"qualityFlags": {
			"type": "object",
			"properties": {
				"discoloration": {"type": "boolean"},
				"pseRisk": {"type": "boolean"},
				"surfaceRisk": {"type": "boolean"},
				"elasticityRisk": {"type": "boolean"}
			},
			"required": ["discoloration", "pseRisk", "surfaceRisk", "elasticityRisk"]
		},
		"analyzedAt": {"type": "string"}
	},
	"required": [
		"overallGrade", "overallScore", "details", "warnings",
		"goodTraits", "limitations", "cutReference",
		"buyRecommendation", "confidence", "reasons", "qualityFlags", "analyzedAt"
	]
}`

var (
	rawResultSchema   = mustCompileSchema("meatgrade/raw-result.json", rawResultSchemaJSON)
	finalResultSchema = mustCompileSchema("meatgrade/final-result.json", finalResultSchemaJSON)
)

func mustCompileSchema(name, schemaJSON string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// ValidateRawResult checks extracted JSON against the raw contract and
// decodes it. Any violation is fatal; the model produced a structurally
// wrong answer and the same prompt is not retried.
func ValidateRawResult(data json.RawMessage) (RawResult, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return RawResult{}, &Error{Kind: ErrRawSchemaViolation, Msg: "decode raw result", Err: err}
	}
	if err := rawResultSchema.Validate(v); err != nil {
		return RawResult{}, &Error{Kind: ErrRawSchemaViolation, Msg: "raw result schema", Err: err}
	}

	var raw RawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawResult{}, &Error{Kind: ErrRawSchemaViolation, Msg: "bind raw result", Err: err}
	}
	return raw, nil
}

// ValidateFinalResult re-validates the engine's output before it leaves the
// core. A failure here is an internal defect, distinct from raw validation.
func ValidateFinalResult(result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return &Error{Kind: ErrEngineInvariant, Msg: "marshal final result", Err: err}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &Error{Kind: ErrEngineInvariant, Msg: "decode final result", Err: err}
	}
	if err := finalResultSchema.Validate(v); err != nil {
		return &Error{Kind: ErrEngineInvariant, Msg: "final result schema", Err: err}
	}
	return nil
}
