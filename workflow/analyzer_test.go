package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/llm"
	"github.com/finchat-labs/finflow/workflow/agent"
)

func analyzerState(query string) State {
	return State{Query: query, Meter: llm.NewMeter()}
}

func TestAnalyzerRejectsInvalidInput(t *testing.T) {
	n := &analyzer{lm: &capability.FakeLM{}}

	t.Run("empty query", func(t *testing.T) {
		res := n.Run(context.Background(), analyzerState("   "))
		if res.Err == nil {
			t.Fatal("Run() accepted a blank query")
		}
		var f *Failure
		if !errors.As(res.Err, &f) || f.Kind != KindInvalidInput {
			t.Errorf("error = %v, want invalid_input failure", res.Err)
		}
	})

	t.Run("oversized query", func(t *testing.T) {
		res := n.Run(context.Background(), analyzerState(strings.Repeat("가", maxQueryRunes+1)))
		if res.Err == nil {
			t.Fatal("Run() accepted an oversized query")
		}
		var f *Failure
		if !errors.As(res.Err, &f) || f.Kind != KindInvalidInput {
			t.Errorf("error = %v, want invalid_input failure", res.Err)
		}
	})

	t.Run("query at the limit passes", func(t *testing.T) {
		res := n.Run(context.Background(), analyzerState(strings.Repeat("가", maxQueryRunes)))
		if res.Err != nil {
			t.Errorf("Run() rejected a query at the limit: %v", res.Err)
		}
	})
}

func TestAnalyzerUsesModelVerdict(t *testing.T) {
	lm := &capability.FakeLM{Completions: []capability.Completion{{
		Text:  `{"primary_intent":"analysis","complexity":"complex","required_agents":["data","news","analysis"],"confidence":0.9,"is_investment":true}`,
		Usage: capability.Usage{Prompt: 120, Completion: 40, Total: 160},
	}}}
	n := &analyzer{lm: lm}
	s := analyzerState("네이버 투자 분석하고 최근 뉴스도 알려줘")

	res := n.Run(context.Background(), s)
	if res.Err != nil {
		t.Fatalf("Run() error: %v", res.Err)
	}
	a := res.Delta.Analysis
	if a == nil {
		t.Fatal("delta carries no analysis")
	}
	if a.PrimaryIntent != IntentAnalysis || a.Complexity != agent.ComplexityComplex {
		t.Errorf("verdict = %s/%s, want analysis/complex", a.PrimaryIntent, a.Complexity)
	}
	if !a.IsInvestment {
		t.Error("IsInvestment = false, want true")
	}
	if a.NextAgent != agent.NameAnalysis {
		t.Errorf("NextAgent = %q, want analysis", a.NextAgent)
	}
	if res.Route.To != nodePlanner {
		t.Errorf("Route.To = %q, want %q", res.Route.To, nodePlanner)
	}
	if got := s.Meter.Total().Total; got != 160 {
		t.Errorf("metered tokens = %d, want 160", got)
	}
}

func TestAnalyzerParsesFencedJSON(t *testing.T) {
	lm := &capability.FakeLM{Completions: []capability.Completion{{
		Text: "```json\n{\"primary_intent\":\"data\",\"complexity\":\"simple\",\"required_agents\":[\"data\"],\"confidence\":0.95,\"is_investment\":false}\n```",
	}}}
	n := &analyzer{lm: lm}

	res := n.Run(context.Background(), analyzerState("삼성전자 주가 알려줘"))
	if res.Err != nil {
		t.Fatalf("Run() error: %v", res.Err)
	}
	if got := res.Delta.Analysis.PrimaryIntent; got != IntentData {
		t.Errorf("PrimaryIntent = %q, want data", got)
	}
}

func TestAnalyzerExtractsObjectFromProse(t *testing.T) {
	lm := &capability.FakeLM{Completions: []capability.Completion{{
		Text: "분류 결과는 다음과 같습니다: {\"primary_intent\":\"news\",\"complexity\":\"simple\",\"required_agents\":[\"news\"],\"confidence\":0.8,\"is_investment\":false} 입니다.",
	}}}
	n := &analyzer{lm: lm}

	res := n.Run(context.Background(), analyzerState("카카오 최근 뉴스 보여줘"))
	if res.Err != nil {
		t.Fatalf("Run() error: %v", res.Err)
	}
	if got := res.Delta.Analysis.PrimaryIntent; got != IntentNews {
		t.Errorf("PrimaryIntent = %q, want news", got)
	}
}

func TestAnalyzerSanitizesVerdict(t *testing.T) {
	t.Run("unknown intent coerces to general", func(t *testing.T) {
		lm := &capability.FakeLM{Completions: []capability.Completion{{
			Text: `{"primary_intent":"prophecy","complexity":"simple","required_agents":[],"confidence":0.9}`,
		}}}
		n := &analyzer{lm: lm}

		res := n.Run(context.Background(), analyzerState("미래를 알려줘"))
		if got := res.Delta.Analysis.PrimaryIntent; got != IntentGeneral {
			t.Errorf("PrimaryIntent = %q, want general", got)
		}
		if res.Route.To != nodeResponder {
			t.Errorf("Route.To = %q, want %q", res.Route.To, nodeResponder)
		}
	})

	t.Run("confidence clamps into range", func(t *testing.T) {
		lm := &capability.FakeLM{Completions: []capability.Completion{{
			Text: `{"primary_intent":"data","complexity":"simple","required_agents":["data"],"confidence":3.5}`,
		}}}
		n := &analyzer{lm: lm}

		res := n.Run(context.Background(), analyzerState("삼성전자 주가"))
		if got := res.Delta.Analysis.Confidence; got != 1 {
			t.Errorf("Confidence = %v, want clamped to 1", got)
		}
	})

	t.Run("analysis intent pulls in data", func(t *testing.T) {
		lm := &capability.FakeLM{Completions: []capability.Completion{{
			Text: `{"primary_intent":"analysis","complexity":"moderate","required_agents":["analysis"],"confidence":0.9,"is_investment":true}`,
		}}}
		n := &analyzer{lm: lm}

		res := n.Run(context.Background(), analyzerState("삼성전자 분석해줘"))
		required := res.Delta.Analysis.RequiredAgents
		found := false
		for _, name := range required {
			if name == agent.NameData {
				found = true
			}
		}
		if !found {
			t.Errorf("RequiredAgents = %v, analysis should pull in data", required)
		}
	})

	t.Run("unknown agent names dropped", func(t *testing.T) {
		lm := &capability.FakeLM{Completions: []capability.Completion{{
			Text: `{"primary_intent":"news","complexity":"simple","required_agents":["news","oracle"],"confidence":0.9}`,
		}}}
		n := &analyzer{lm: lm}

		res := n.Run(context.Background(), analyzerState("뉴스 알려줘"))
		for _, name := range res.Delta.Analysis.RequiredAgents {
			if name == "oracle" {
				t.Errorf("RequiredAgents kept unknown name: %v", res.Delta.Analysis.RequiredAgents)
			}
		}
	})
}

func TestAnalyzerFallsBackOnModelFailure(t *testing.T) {
	tests := []struct {
		name  string
		query string
		lm    *capability.FakeLM
		want  string
	}{
		{
			name:  "model error, analysis keywords",
			query: "삼성전자 투자 분석해줘",
			lm:    &capability.FakeLM{Err: errors.New("api down")},
			want:  IntentAnalysis,
		},
		{
			name:  "unparseable output, data keywords",
			query: "삼성전자 주가 알려줘",
			lm:    &capability.FakeLM{Completions: []capability.Completion{{Text: "주가를 물어보셨군요"}}},
			want:  IntentData,
		},
		{
			name:  "model error, no keywords",
			query: "안녕하세요",
			lm:    &capability.FakeLM{Err: errors.New("api down")},
			want:  IntentGeneral,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &analyzer{lm: tt.lm}
			res := n.Run(context.Background(), analyzerState(tt.query))
			if res.Err != nil {
				t.Fatalf("Run() error: %v", res.Err)
			}
			if got := res.Delta.Analysis.PrimaryIntent; got != tt.want {
				t.Errorf("PrimaryIntent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeywordAnalysisPriority(t *testing.T) {
	// 분석 beats 주가: a question mentioning both is an analysis request
	// over the data that feeds it.
	a := keywordAnalysis("삼성전자 주가 분석해줘")
	if a.PrimaryIntent != IntentAnalysis {
		t.Errorf("PrimaryIntent = %q, want analysis", a.PrimaryIntent)
	}
	has := make(map[string]bool)
	for _, name := range a.RequiredAgents {
		has[name] = true
	}
	if !has[agent.NameData] || !has[agent.NameAnalysis] {
		t.Errorf("RequiredAgents = %v, want data and analysis", a.RequiredAgents)
	}
}

func TestKeywordAnalysisComplexity(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"삼성전자 주가", agent.ComplexitySimple},
		{"삼성전자 주가랑 뉴스 알려줘", agent.ComplexityModerate},
		{"삼성전자 분석하고 차트랑 뉴스도 보여줘", agent.ComplexityComplex},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := keywordAnalysis(tt.query).Complexity; got != tt.want {
				t.Errorf("Complexity = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalyzerPromptCarriesHistory(t *testing.T) {
	lm := &capability.FakeLM{Completions: []capability.Completion{{
		Text: `{"primary_intent":"data","complexity":"simple","required_agents":["data"],"confidence":0.9}`,
	}}}
	n := &analyzer{lm: lm}
	s := analyzerState("그럼 어제보다 올랐어?")
	s.History = []Turn{
		{Role: "user", Text: "삼성전자 주가 알려줘"},
		{Role: "assistant", Text: "삼성전자의 현재 주가는 71,500원입니다."},
	}

	if res := n.Run(context.Background(), s); res.Err != nil {
		t.Fatalf("Run() error: %v", res.Err)
	}
	if lm.CallCount() != 1 {
		t.Fatalf("model called %d times, want 1", lm.CallCount())
	}
	prompt := lm.Calls[0]
	if !strings.Contains(prompt.User, "이전 대화") || !strings.Contains(prompt.User, "삼성전자 주가 알려줘") {
		t.Errorf("prompt does not carry history:\n%s", prompt.User)
	}
}
