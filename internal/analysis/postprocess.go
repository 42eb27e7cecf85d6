package analysis

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/meatgrade/meatgrade-service/internal/meat"
)

// Keyword patterns act as a cheap classifier over the model's free text for
// conditions it expresses inconsistently. Matching runs against lowercased
// text in both English and Korean; new risk patterns are table additions.
var (
	discolorationPatterns = compilePatterns(`discolor`, `갈변`, `변색`, `회색`, `탁한`)
	psePatterns           = compilePatterns(`pse`, `pale`, `창백`, `exudative`, `흐물`)
	surfacePatterns       = compilePatterns(`slime`, `biofilm`, `끈적`, `점액`)
	elasticityPatterns    = compilePatterns(`elastic`, `indent`, `탄력`, `눌렀`)

	excessFatPatterns = compilePatterns(
		`지방\s*과다`,
		`비계\s*과다`,
		`fat\s*too\s*high`,
		`excessive\s*fat`,
		`fatty\s*dominant`,
		`비계층\s*두꺼`,
		`한쪽\s*지방\s*치우침`,
	)
)

func compilePatterns(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		patterns[i] = regexp.MustCompile(expr)
	}
	return patterns
}

func matchAny(text string, patterns []*regexp.Regexp) bool {
	lowered := strings.ToLower(text)
	for _, pattern := range patterns {
		if pattern.MatchString(lowered) {
			return true
		}
	}
	return false
}

func matchWarnings(warnings []string, patterns []*regexp.Regexp) bool {
	return matchAny(strings.Join(warnings, " "), patterns)
}

// overrideKey addresses a cut-specific engine rule.
type overrideKey struct {
	MeatType meat.Type
	CutKey   string
}

// cutOverrides maps a (species, cut) pair to its extra risk detector. Rules
// for other cuts register here without touching the engine body.
var cutOverrides = map[overrideKey]func(raw RawResult) bool{
	{meat.Pork, "belly"}: detectExcessFat,
}

// detectExcessFat flags pork belly whose fat dominates the lean. The model
// sometimes names the condition outright and sometimes only shows it as a
// high marbling score paired with poor shape uniformity.
func detectExcessFat(raw RawResult) bool {
	blob := strings.Join(append([]string{
		raw.Details.Marbling.Description,
		raw.Details.Shape.Description,
	}, raw.Warnings...), " ")

	if matchAny(blob, excessFatPatterns) {
		return true
	}
	return raw.Details.Marbling.Score >= 88 && raw.Details.Shape.Score <= 62
}

func buildQualityFlags(raw RawResult) QualityFlags {
	return QualityFlags{
		Discoloration: raw.Details.Color.Score < 45 ||
			matchWarnings(raw.Warnings, discolorationPatterns),
		PSERisk: matchWarnings(raw.Warnings, psePatterns) ||
			(raw.Details.Color.Score < 50 && raw.Details.Surface.Score < 50),
		SurfaceRisk: raw.Details.Surface.Score < 45 ||
			matchWarnings(raw.Warnings, surfacePatterns),
		ElasticityRisk: raw.Details.Shape.Score < 45 ||
			matchWarnings(raw.Warnings, elasticityPatterns),
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	return math.Min(max, math.Max(min, v))
}

// computeAdjustedScore blends the model's overall score with the weighted
// detail scores, then subtracts warning, flag, and excess-fat penalties.
// The result supersedes the raw score everywhere downstream.
func computeAdjustedScore(raw RawResult, flags QualityFlags, excessFatRisk bool) int {
	detailWeighted := float64(raw.Details.Color.Score)*0.30 +
		float64(raw.Details.Marbling.Score)*0.25 +
		float64(raw.Details.Surface.Score)*0.25 +
		float64(raw.Details.Shape.Score)*0.20

	blended := int(math.Round(float64(raw.OverallScore)*0.7 + detailWeighted*0.3))

	warningPenalty := min(len(raw.Warnings), 4) * 2
	riskPenalty := flags.Count() * 6
	excessFatPenalty := 0
	if excessFatRisk {
		excessFatPenalty = 10
	}

	return clampInt(blended-warningPenalty-riskPenalty-excessFatPenalty, 0, 100)
}

// gradeFromScore derives the grade from the adjusted score, discarding the
// model's own grade claim.
func gradeFromScore(score int) meat.Grade {
	switch {
	case score >= 80:
		return meat.GradeGood
	case score >= 50:
		return meat.GradeNormal
	default:
		return meat.GradeBad
	}
}

// computeRecommendation applies the decision ladder; first match wins.
func computeRecommendation(score int, grade meat.Grade, flags QualityFlags, warningCount int, excessFatRisk bool) meat.BuyRecommendation {
	riskCount := flags.Count()

	if score < 55 || grade == meat.GradeBad || riskCount >= 2 || excessFatRisk {
		return meat.RecommendAvoid
	}
	if score >= 82 && grade == meat.GradeGood && riskCount == 0 && warningCount == 0 {
		return meat.RecommendBuy
	}
	return meat.RecommendConditional
}

// computeConfidence produces a bounded heuristic certainty. The clamp keeps
// photo-only assessment from ever claiming near-certainty or near-zero.
func computeConfidence(raw RawResult, flags QualityFlags, recommendation meat.BuyRecommendation, excessFatRisk bool) float64 {
	confidence := 0.82
	confidence -= float64(flags.Count()) * 0.11
	confidence -= float64(min(len(raw.Warnings), 4)) * 0.03
	if excessFatRisk {
		confidence -= 0.08
	}
	if len(raw.GoodTraits) >= 2 {
		confidence += 0.05
	}
	if recommendation == meat.RecommendAvoid {
		confidence += 0.03
	}

	rounded := math.Round(confidence*1000) / 1000
	return clampFloat(rounded, 0.35, 0.95)
}

func buildReasons(raw RawResult, flags QualityFlags, recommendation meat.BuyRecommendation, excessFatRisk bool) []string {
	var reasons []string

	for _, trait := range raw.GoodTraits[:min(len(raw.GoodTraits), 2)] {
		reasons = append(reasons, "Positive: "+trait)
	}

	if flags.Discoloration {
		reasons = append(reasons, "Risk: possible discoloration or freshness drop.")
	}
	if flags.PSERisk {
		reasons = append(reasons, "Risk: possible PSE-like quality pattern.")
	}
	if flags.SurfaceRisk {
		reasons = append(reasons, "Risk: possible surface quality issue.")
	}
	if flags.ElasticityRisk {
		reasons = append(reasons, "Risk: possible low elasticity pattern.")
	}
	if excessFatRisk {
		reasons = append(reasons, "Risk: pork belly appears overly fatty compared to balanced Korean market preference.")
	}

	for _, warning := range raw.Warnings[:min(len(raw.Warnings), 2)] {
		reasons = append(reasons, "Warning: "+warning)
	}

	if len(reasons) == 0 {
		if recommendation == meat.RecommendBuy {
			reasons = append(reasons, "No major visual risk was detected in this image.")
		} else {
			reasons = append(reasons, "Visual information is limited, so purchase decision should be conservative.")
		}
	}

	return reasons
}

// analyzedAtLayouts are the timestamp shapes the model has been seen to emit.
var analyzedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// normalizeAnalyzedAt re-serializes the model timestamp to canonical UTC
// form, substituting now() when it cannot be parsed. Always succeeds.
func normalizeAnalyzedAt(value string, now func() time.Time) string {
	for _, layout := range analyzedAtLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05.000Z")
		}
	}
	return now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// PostProcess converts a validated raw result into the final enriched
// result. Deterministic for a given (raw, pctx) pair with a parseable
// timestamp; the input is never mutated.
func PostProcess(raw RawResult, pctx *Context) Result {
	return postProcess(raw, pctx, time.Now)
}

func postProcess(raw RawResult, pctx *Context, now func() time.Time) Result {
	flags := buildQualityFlags(raw)

	excessFatRisk := false
	if pctx != nil {
		if detect, ok := cutOverrides[overrideKey{pctx.MeatType, pctx.CutKey}]; ok {
			excessFatRisk = detect(raw)
		}
	}

	adjustedScore := computeAdjustedScore(raw, flags, excessFatRisk)
	grade := gradeFromScore(adjustedScore)
	recommendation := computeRecommendation(adjustedScore, grade, flags, len(raw.Warnings), excessFatRisk)
	confidence := computeConfidence(raw, flags, recommendation, excessFatRisk)
	reasons := buildReasons(raw, flags, recommendation, excessFatRisk)

	return Result{
		OverallGrade:      grade,
		OverallScore:      adjustedScore,
		Details:           raw.Details,
		Warnings:          copyStrings(raw.Warnings),
		GoodTraits:        copyStrings(raw.GoodTraits),
		Limitations:       copyStrings(raw.Limitations),
		CutReference:      raw.CutReference,
		BuyRecommendation: recommendation,
		Confidence:        confidence,
		Reasons:           reasons,
		QualityFlags:      flags,
		AnalyzedAt:        normalizeAnalyzedAt(raw.AnalyzedAt, now),
	}
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
