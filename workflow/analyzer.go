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

// maxQueryRunes is the longest accepted question. Anything above it is
// rejected before the model sees it.
const maxQueryRunes = 4096

// analyzer decides what the user wants: intent, complexity, the workers the
// answer needs, and whether the question is investment advice territory.
// The model is primary; when it is unreachable or its JSON cannot be parsed
// even after extraction, a deterministic keyword pass takes over so the run
// never dies on analysis.
type analyzer struct {
	lm capability.LanguageModel
}

func (n *analyzer) Run(ctx context.Context, s State) graph.NodeResult[State] {
	if strings.TrimSpace(s.Query) == "" {
		return graph.NodeResult[State]{Err: &Failure{
			Kind:    KindInvalidInput,
			Node:    nodeAnalyzer,
			Message: "empty query",
		}}
	}
	if utf8.RuneCountInString(s.Query) > maxQueryRunes {
		return graph.NodeResult[State]{Err: &Failure{
			Kind:    KindInvalidInput,
			Node:    nodeAnalyzer,
			Message: fmt.Sprintf("query exceeds %d characters", maxQueryRunes),
		}}
	}

	analysis := n.analyze(ctx, s)
	delta := State{Analysis: analysis}
	if analysis.PrimaryIntent == IntentGeneral {
		return graph.NodeResult[State]{Delta: delta, Route: graph.Goto(nodeResponder)}
	}
	return graph.NodeResult[State]{Delta: delta, Route: graph.Goto(nodePlanner)}
}

func (n *analyzer) analyze(ctx context.Context, s State) *Analysis {
	out, err := n.lm.Complete(ctx, analyzerPrompt(s.Query, s.History))
	if err == nil {
		s.Meter.Record(nodeAnalyzer, out.Usage)
		if a, ok := parseAnalysis(out.Text); ok {
			return sanitizeAnalysis(a, s.Query)
		}
	}
	return keywordAnalysis(s.Query)
}

func analyzerPrompt(query string, history []Turn) capability.Prompt {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("이전 대화:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "[%s] %s\n", t.Role, t.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "질문: %s", query)

	return capability.Prompt{
		System: `당신은 금융 질문 분류기입니다. 질문을 분석해 JSON 한 개만 출력하세요. 다른 텍스트는 쓰지 마세요.

필드:
- primary_intent: data | analysis | news | knowledge | visualization | general
- complexity: simple | moderate | complex
- required_agents: 답변에 필요한 에이전트 배열 (data, analysis, news, knowledge, visualization)
- confidence: 분류 확신도 0.0~1.0
- is_investment: 투자 판단을 묻는 질문이면 true

예시 1
질문: 삼성전자 주가 알려줘
{"primary_intent":"data","complexity":"simple","required_agents":["data"],"confidence":0.95,"is_investment":false}

예시 2
질문: 네이버 투자 분석하고 최근 뉴스도 알려줘
{"primary_intent":"analysis","complexity":"complex","required_agents":["data","news","analysis"],"confidence":0.9,"is_investment":true}

예시 3
질문: PER이 뭐야?
{"primary_intent":"knowledge","complexity":"simple","required_agents":["knowledge"],"confidence":0.95,"is_investment":false}`,
		User:      b.String(),
		MaxTokens: 300,
	}
}

type analysisDoc struct {
	PrimaryIntent  string   `json:"primary_intent"`
	Complexity     string   `json:"complexity"`
	RequiredAgents []string `json:"required_agents"`
	Confidence     float64  `json:"confidence"`
	IsInvestment   bool     `json:"is_investment"`
}

// parseAnalysis decodes the model's JSON verdict. The first pass expects
// clean JSON after fence stripping; the second extracts the outermost
// object from surrounding prose. Both failing means the output is unusable.
func parseAnalysis(text string) (analysisDoc, bool) {
	var doc analysisDoc
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
	return analysisDoc{}, false
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var workerNames = map[string]bool{
	agent.NameData:          true,
	agent.NameAnalysis:      true,
	agent.NameNews:          true,
	agent.NameKnowledge:     true,
	agent.NameVisualization: true,
}

// sanitizeAnalysis normalizes a parsed verdict: unknown intents coerce to
// general, confidence clamps into [0,1], unknown agent names are dropped,
// and the agent list is made consistent with the intent's dependencies.
func sanitizeAnalysis(doc analysisDoc, query string) *Analysis {
	intent := doc.PrimaryIntent
	if intent != IntentGeneral && !workerNames[intent] {
		intent = IntentGeneral
	}

	complexity := doc.Complexity
	switch complexity {
	case agent.ComplexitySimple, agent.ComplexityModerate, agent.ComplexityComplex:
	default:
		complexity = agent.ComplexitySimple
	}

	a := &Analysis{
		PrimaryIntent: intent,
		Complexity:    complexity,
		Confidence:    clamp01(doc.Confidence),
		IsInvestment:  doc.IsInvestment || hasInvestmentCue(query),
	}
	if intent == IntentGeneral {
		return a
	}

	a.NextAgent = intent
	seen := make(map[string]bool)
	for _, name := range doc.RequiredAgents {
		name = strings.ToLower(strings.TrimSpace(name))
		if workerNames[name] && !seen[name] {
			seen[name] = true
			a.RequiredAgents = append(a.RequiredAgents, name)
		}
	}
	if !seen[intent] {
		a.RequiredAgents = append(a.RequiredAgents, intent)
		seen[intent] = true
	}
	if (seen[agent.NameAnalysis] || seen[agent.NameVisualization]) && !seen[agent.NameData] {
		a.RequiredAgents = append(a.RequiredAgents, agent.NameData)
	}
	return a
}

// Keyword tables for the deterministic fallback, checked in priority order
// so "주가 분석해줘" lands on analysis rather than data.
var intentCues = []struct {
	intent string
	keys   []string
}{
	{IntentAnalysis, []string{"분석", "전망", "투자", "매수", "매도", "살까", "analysis", "invest"}},
	{IntentVisualization, []string{"차트", "그래프", "chart", "graph"}},
	{IntentData, []string{"주가", "현재가", "시세", "가격", "price"}},
	{IntentNews, []string{"뉴스", "소식", "기사", "news"}},
	{IntentKnowledge, []string{"뭐야", "이란", "무엇", "란 무엇", "뜻", "what is"}},
}

// keywordAnalysis is the model-free fallback classifier. Matched categories
// drive both the intent (highest priority match wins) and the complexity
// (the more categories a question touches, the heavier the plan).
func keywordAnalysis(query string) *Analysis {
	lower := strings.ToLower(query)

	var matched []string
	for _, cue := range intentCues {
		for _, key := range cue.keys {
			if strings.Contains(lower, key) {
				matched = append(matched, cue.intent)
				break
			}
		}
	}
	if len(matched) == 0 {
		return &Analysis{
			PrimaryIntent: IntentGeneral,
			Complexity:    agent.ComplexitySimple,
			Confidence:    0.5,
			IsInvestment:  hasInvestmentCue(query),
		}
	}

	intent := matched[0]
	complexity := agent.ComplexitySimple
	switch {
	case len(matched) >= 3:
		complexity = agent.ComplexityComplex
	case len(matched) == 2 || utf8.RuneCountInString(query) > 50:
		complexity = agent.ComplexityModerate
	}

	seen := make(map[string]bool)
	var required []string
	for _, name := range matched {
		if !seen[name] {
			seen[name] = true
			required = append(required, name)
		}
	}
	if (seen[agent.NameAnalysis] || seen[agent.NameVisualization]) && !seen[agent.NameData] {
		required = append(required, agent.NameData)
	}

	return &Analysis{
		PrimaryIntent:  intent,
		Complexity:     complexity,
		RequiredAgents: required,
		Confidence:     0.5,
		IsInvestment:   hasInvestmentCue(query),
		NextAgent:      intent,
	}
}

func hasInvestmentCue(query string) bool {
	lower := strings.ToLower(query)
	for _, key := range []string{"투자", "살까", "매수", "매도", "invest"} {
		if strings.Contains(lower, key) {
			return true
		}
	}
	return false
}
