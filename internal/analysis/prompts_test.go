package analysis

import (
	"strings"
	"testing"

	"github.com/meatgrade/meatgrade-service/internal/meat"
)

func TestBuildAnalysisPrompt(t *testing.T) {
	cut, err := meat.ResolveCut(meat.Pork, "belly")
	if err != nil {
		t.Fatal(err)
	}

	prompts := BuildAnalysisPrompt(cut)

	if !strings.Contains(prompts.System, "JSON") {
		t.Error("system prompt must demand JSON output")
	}
	for _, field := range []string{"overallGrade", "overallScore", "cutReference", "analyzedAt"} {
		if !strings.Contains(prompts.System, field) {
			t.Errorf("system prompt missing output field %s", field)
		}
	}

	if !strings.Contains(prompts.User, "삼겹살") {
		t.Error("user prompt missing cut name")
	}
	if !strings.Contains(prompts.User, "돼지고기") {
		t.Error("user prompt missing species name")
	}
	if !strings.Contains(prompts.User, cut.Criteria.Good) {
		t.Error("user prompt missing good criteria")
	}
	if !strings.Contains(prompts.User, cut.Criteria.Bad) {
		t.Error("user prompt missing bad criteria")
	}
	if !strings.Contains(prompts.User, "PSE") {
		t.Error("user prompt missing common bad signs")
	}
}

func TestBuildAnalysisPrompt_Pure(t *testing.T) {
	cut, err := meat.ResolveCut(meat.Beef, "ribeye")
	if err != nil {
		t.Fatal(err)
	}

	first := BuildAnalysisPrompt(cut)
	second := BuildAnalysisPrompt(cut)

	if first != second {
		t.Error("prompt builder is not deterministic")
	}
}

func TestBuildRepairPrompt(t *testing.T) {
	broken := `{"overallScore": 85, "warnings": ["갈변",]`

	prompts := BuildRepairPrompt(broken)

	if !strings.Contains(prompts.User, broken) {
		t.Error("repair prompt must carry the broken text verbatim")
	}
	for _, field := range requiredOutputFields {
		if !strings.Contains(prompts.User, field) {
			t.Errorf("repair prompt missing required field %s", field)
		}
	}
	if !strings.Contains(strings.ToLower(prompts.User), "conservative defaults") {
		t.Error("repair prompt must ask for conservative defaults")
	}
}
