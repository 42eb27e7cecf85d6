package analysis

import (
	"fmt"
	"strings"

	"github.com/meatgrade/meatgrade-service/internal/meat"
)

// PromptParts holds the system and user instruction strings for one request.
type PromptParts struct {
	System string
	User   string
}

// requiredOutputFields is the checklist embedded in the repair prompt so the
// model knows which fields must be present after coercion.
var requiredOutputFields = []string{
	"overallGrade",
	"overallScore",
	"details.color",
	"details.marbling",
	"details.surface",
	"details.shape",
	"warnings",
	"goodTraits",
	"limitations",
	"cutReference.goodDescription",
	"cutReference.badDescription",
	"analyzedAt",
}

const analysisSystemPrompt = `당신은 전문 육류 품질 평가사입니다. 사용자가 제공한 고기 사진을 분석하여 품질을 평가합니다.

## 역할
- 사진에서 보이는 고기의 색상, 마블링/지방 분포, 표면 상태, 형태/균일성을 분석합니다.
- 반드시 아래 JSON 형식으로만 응답합니다. JSON 외의 텍스트는 포함하지 마세요.

## 중요 규칙
1. 사진이 고기가 아닌 경우, overallGrade를 "bad"로 설정하고 warnings에 "제공된 이미지가 고기 사진이 아닌 것으로 판단됩니다."를 포함하세요.
2. 모든 텍스트는 한국어로 작성하세요.
3. 점수는 0~100 사이의 정수입니다.
4. 등급 기준: 80점 이상 = "good", 50~79점 = "normal", 49점 이하 = "bad"
5. 사진으로만 판단하므로, 냄새/촉감/온도 등은 limitations에 포함하세요.
6. 마크다운 코드 블록으로 감싸지 말고 순수 JSON만 반환하세요.

## 응답 JSON 형식
{
  "overallGrade": "good" | "normal" | "bad",
  "overallScore": 0-100,
  "details": {
    "color": { "score": 0-100, "description": "색상 분석 결과 설명" },
    "marbling": { "score": 0-100, "description": "마블링/지방 분포 분석 결과 설명" },
    "surface": { "score": 0-100, "description": "표면 상태 분석 결과 설명" },
    "shape": { "score": 0-100, "description": "형태/균일성 분석 결과 설명" }
  },
  "warnings": ["경고 사항 배열"],
  "goodTraits": ["긍정적 특성 배열"],
  "limitations": ["사진으로 확인 불가능한 항목 배열"],
  "cutReference": {
    "goodDescription": "이 부위의 좋은 고기 기준",
    "badDescription": "이 부위의 나쁜 고기 기준"
  },
  "analyzedAt": "ISO 8601 형식 시각"
}`

// BuildAnalysisPrompt produces the system and user prompts for a resolved cut.
// Pure function of its inputs.
func BuildAnalysisPrompt(cut meat.Cut) PromptParts {
	meatTypeName := meat.TypeNameKo(cut.MeatType)

	var b strings.Builder
	fmt.Fprintf(&b, "이 사진의 고기를 분석해주세요.\n\n")
	fmt.Fprintf(&b, "## 분석 대상\n")
	fmt.Fprintf(&b, "- 고기 종류: %s\n", meatTypeName)
	fmt.Fprintf(&b, "- 부위: %s (%s)\n\n", cut.Info.NameKo, cut.Info.NameEn)
	fmt.Fprintf(&b, "## 이 부위의 품질 기준\n\n")
	fmt.Fprintf(&b, "### 좋은 고기 특징\n%s\n\n", cut.Criteria.Good)
	fmt.Fprintf(&b, "### 나쁜 고기 / 피해야 할 특징\n%s\n\n", cut.Criteria.Bad)
	fmt.Fprintf(&b, "## 공통 불량 징후 (참고)\n")
	for _, sign := range meat.CommonBadSigns {
		fmt.Fprintf(&b, "- %s\n", sign)
	}
	fmt.Fprintf(&b, "\n위 기준을 참고하여 사진 속 %s %s의 품질을 JSON 형식으로 평가해주세요.\n", meatTypeName, cut.Info.NameKo)
	fmt.Fprintf(&b, "cutReference의 goodDescription과 badDescription에는 위에 제공한 품질 기준을 요약하여 포함하세요.")

	return PromptParts{
		System: analysisSystemPrompt,
		User:   b.String(),
	}
}

// BuildRepairPrompt asks the model to coerce near-valid JSON into the raw
// result schema. The broken text travels in the user prompt verbatim.
func BuildRepairPrompt(brokenText string) PromptParts {
	var b strings.Builder
	b.WriteString("The following text is a near-valid JSON analysis result that failed to parse.\n")
	b.WriteString("Treat it as near-valid JSON, fix syntax errors, and fill any missing required fields with conservative defaults.\n")
	b.WriteString("Return ONLY valid JSON matching the schema. No markdown, no commentary.\n\n")
	b.WriteString("Required fields:\n")
	for _, field := range requiredOutputFields {
		fmt.Fprintf(&b, "- %s\n", field)
	}
	b.WriteString("\nText to repair:\n")
	b.WriteString(brokenText)

	return PromptParts{
		System: "You convert broken JSON into valid JSON. You never add analysis of your own; you only repair structure.",
		User:   b.String(),
	}
}
