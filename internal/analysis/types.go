// Package analysis implements the meat photo analysis pipeline: prompt
// construction, model invocation with timeout and retry, tolerant JSON
// extraction with a repair fallback, schema validation, and the deterministic
// post-processing engine that produces the final verdict.
package analysis

import "github.com/meatgrade/meatgrade-service/internal/meat"

// DetailScore is one of the four per-trait sub-scores.
type DetailScore struct {
	Score       int    `json:"score"`
	Description string `json:"description"`
}

// Details holds the four named sub-scores the model reports.
type Details struct {
	Color    DetailScore `json:"color"`
	Marbling DetailScore `json:"marbling"`
	Surface  DetailScore `json:"surface"`
	Shape    DetailScore `json:"shape"`
}

// CutReference is the model's restatement of the cut quality criteria.
type CutReference struct {
	GoodDescription string `json:"goodDescription"`
	BadDescription  string `json:"badDescription"`
}

// RawResult is the model's direct structured output, validated against the
// raw schema before use. Its overallGrade and overallScore are advisory
// input only; the engine overwrites both.
type RawResult struct {
	OverallGrade meat.Grade   `json:"overallGrade"`
	OverallScore int          `json:"overallScore"`
	Details      Details      `json:"details"`
	Warnings     []string     `json:"warnings"`
	GoodTraits   []string     `json:"goodTraits"`
	Limitations  []string     `json:"limitations"`
	CutReference CutReference `json:"cutReference"`
	AnalyzedAt   string       `json:"analyzedAt"`
}

// QualityFlags are the four independently computed risk indicators. They are
// derived by the engine, never supplied by the model.
type QualityFlags struct {
	Discoloration  bool `json:"discoloration"`
	PSERisk        bool `json:"pseRisk"`
	SurfaceRisk    bool `json:"surfaceRisk"`
	ElasticityRisk bool `json:"elasticityRisk"`
}

// Count returns the number of active flags.
func (f QualityFlags) Count() int {
	n := 0
	for _, b := range []bool{f.Discoloration, f.PSERisk, f.SurfaceRisk, f.ElasticityRisk} {
		if b {
			n++
		}
	}
	return n
}

// Result is the final enriched analysis: the raw fields with overallScore
// and overallGrade overwritten by the engine, plus the derived verdict.
type Result struct {
	OverallGrade      meat.Grade             `json:"overallGrade"`
	OverallScore      int                    `json:"overallScore"`
	Details           Details                `json:"details"`
	Warnings          []string               `json:"warnings"`
	GoodTraits        []string               `json:"goodTraits"`
	Limitations       []string               `json:"limitations"`
	CutReference      CutReference           `json:"cutReference"`
	BuyRecommendation meat.BuyRecommendation `json:"buyRecommendation"`
	Confidence        float64                `json:"confidence"`
	Reasons           []string               `json:"reasons"`
	QualityFlags      QualityFlags           `json:"qualityFlags"`
	AnalyzedAt        string                 `json:"analyzedAt"`
}

// Context carries the optional species/cut pairing that activates
// cut-specific engine rules.
type Context struct {
	MeatType meat.Type
	CutKey   string
}
