package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/workflow/agent"
)

// Warning tokens attached to confidence reports. Stable strings so clients
// and tests can match on them.
const (
	WarnAgentFailed        = "agent_failed"
	WarnNoNewsItems        = "no_news_items"
	WarnDisclaimerMissing  = "disclaimer_missing"
	WarnShortReply         = "short_reply"
	WarnScoreParseFallback = "score_parse_fallback"
)

// shortReplyRunes is the reply length under which the answer is flagged as
// suspiciously thin.
const shortReplyRunes = 80

// confidenceCalc scores the combined reply. The model fills a fixed rubric
// (four subscores, 25 points each); the warnings are computed here, not by
// the model, so they fire deterministically.
type confidenceCalc struct {
	lm         capability.LanguageModel
	thresholds Thresholds
}

func (n *confidenceCalc) Run(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Combined == nil {
		return graph.NodeResult[State]{Err: &Failure{
			Kind:    KindInternal,
			Node:    nodeConfidence,
			Message: "confidence reached without a combined reply",
		}}
	}

	report := n.score(ctx, s)
	report.Warnings = append(report.Warnings, replyWarnings(s)...)
	return graph.NodeResult[State]{Delta: State{Confidence: report}}
}

type scoreDoc struct {
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Accuracy     float64 `json:"accuracy"`
	Usefulness   float64 `json:"usefulness"`
}

// score asks the model for the rubric subscores and derives the normalized
// confidence and grade. Unusable model output coerces to the fixed fallback
// of 0.5 with grade C; the pinned grade is the one place the grade does not
// come from the threshold table.
func (n *confidenceCalc) score(ctx context.Context, s State) *ConfidenceReport {
	out, err := n.lm.Complete(ctx, scorePrompt(s))
	if err == nil {
		s.Meter.Record(nodeConfidence, out.Usage)
		if doc, ok := parseScores(out.Text); ok {
			sub := Subscores{
				Completeness: clampScore(doc.Completeness),
				Consistency:  clampScore(doc.Consistency),
				Accuracy:     clampScore(doc.Accuracy),
				Usefulness:   clampScore(doc.Usefulness),
			}
			total := sub.Completeness + sub.Consistency + sub.Accuracy + sub.Usefulness
			score := clamp01(total / 100)
			return &ConfidenceReport{
				Score:     score,
				Grade:     GradeFor(score, n.thresholds),
				Subscores: sub,
			}
		}
	}
	return &ConfidenceReport{
		Score:    0.5,
		Grade:    "C",
		Warnings: []string{WarnScoreParseFallback},
	}
}

func scorePrompt(s State) capability.Prompt {
	var ran, failed []string
	for _, name := range workerOrder {
		res, ok := s.AgentResults[name]
		if !ok {
			continue
		}
		if res.Success {
			ran = append(ran, name)
		} else {
			failed = append(failed, name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n\n답변:\n%s\n\n", s.Query, s.Combined.Reply)
	if len(ran) > 0 {
		fmt.Fprintf(&b, "성공한 에이전트: %s\n", strings.Join(ran, ", "))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "실패한 에이전트: %s\n", strings.Join(failed, ", "))
	}
	b.WriteString("\n답변 품질을 평가해 JSON 한 개만 출력하세요. 각 항목은 0~25점입니다.\n")
	b.WriteString(`{"completeness":0,"consistency":0,"accuracy":0,"usefulness":0}`)

	return capability.Prompt{
		System:    "당신은 금융 챗봇 답변의 품질 평가자입니다. 설명 없이 JSON 한 개만 출력하세요.",
		User:      b.String(),
		MaxTokens: 200,
	}
}

// parseScores decodes the rubric JSON; like the analyzer it tolerates fences
// and surrounding prose with a second extraction pass.
func parseScores(text string) (scoreDoc, bool) {
	var doc scoreDoc
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), &doc); err == nil {
		return doc, true
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &doc); err == nil {
			return doc, true
		}
	}
	return scoreDoc{}, false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 25 {
		return 25
	}
	return v
}

// workerOrder fixes iteration over agent results so prompts and warnings
// come out the same for the same state.
var workerOrder = []string{
	agent.NameData,
	agent.NameAnalysis,
	agent.NameNews,
	agent.NameKnowledge,
	agent.NameVisualization,
}

// replyWarnings derives the deterministic quality flags: a failed agent, a
// news agent that came back empty, a missing investment disclaimer, and a
// reply too short to plausibly answer the question.
func replyWarnings(s State) []string {
	var warnings []string
	for _, name := range workerOrder {
		if res, ok := s.AgentResults[name]; ok && !res.Success {
			warnings = append(warnings, WarnAgentFailed+":"+name)
		}
	}
	if res, ok := s.AgentResults[agent.NameNews]; ok && res.Success && len(s.NewsData) == 0 {
		warnings = append(warnings, WarnNoNewsItems)
	}
	if needsDisclaimer(s) && !strings.Contains(s.Combined.Reply, "투자 권유") {
		warnings = append(warnings, WarnDisclaimerMissing)
	}
	if utf8.RuneCountInString(s.Combined.Reply) < shortReplyRunes {
		warnings = append(warnings, WarnShortReply)
	}
	return warnings
}
