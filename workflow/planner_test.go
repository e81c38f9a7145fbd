package workflow

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/llm"
	"github.com/finchat-labs/finflow/workflow/agent"
)

func TestPlannerRequiresAnalysis(t *testing.T) {
	n := &planner{lm: &capability.FakeLM{}}
	res := n.Run(context.Background(), State{Query: "삼성전자 주가"})
	if res.Err == nil {
		t.Fatal("Run() without analysis should fail")
	}
	var f *Failure
	if !errors.As(res.Err, &f) || f.Kind != KindInternal {
		t.Errorf("error = %v, want internal failure", res.Err)
	}
}

func TestBuildPlanPolicy(t *testing.T) {
	tests := []struct {
		name     string
		analysis *Analysis
		wantMode string
		want     [][]string
	}{
		{
			name: "single data lookup",
			analysis: &Analysis{
				PrimaryIntent:  IntentData,
				Complexity:     agent.ComplexitySimple,
				RequiredAgents: []string{agent.NameData},
				NextAgent:      agent.NameData,
			},
			wantMode: PlanSingle,
			want:     [][]string{{agent.NameData}},
		},
		{
			name: "analysis waits for data",
			analysis: &Analysis{
				PrimaryIntent:  IntentAnalysis,
				Complexity:     agent.ComplexityModerate,
				RequiredAgents: []string{agent.NameData, agent.NameAnalysis},
				NextAgent:      agent.NameAnalysis,
			},
			wantMode: PlanSequential,
			want:     [][]string{{agent.NameData}, {agent.NameAnalysis}},
		},
		{
			name: "news and knowledge share a stage",
			analysis: &Analysis{
				PrimaryIntent:  IntentNews,
				Complexity:     agent.ComplexityModerate,
				RequiredAgents: []string{agent.NameNews, agent.NameKnowledge},
				NextAgent:      agent.NameNews,
			},
			wantMode: PlanHybrid,
			want:     [][]string{{agent.NameNews, agent.NameKnowledge}},
		},
		{
			name: "moderate independent agents compress into one stage",
			analysis: &Analysis{
				PrimaryIntent:  IntentData,
				Complexity:     agent.ComplexityModerate,
				RequiredAgents: []string{agent.NameData, agent.NameNews},
				NextAgent:      agent.NameData,
			},
			wantMode: PlanHybrid,
			want:     [][]string{{agent.NameData, agent.NameNews}},
		},
		{
			name: "full complex pipeline",
			analysis: &Analysis{
				PrimaryIntent:  IntentAnalysis,
				Complexity:     agent.ComplexityComplex,
				RequiredAgents: []string{agent.NameData, agent.NameNews, agent.NameKnowledge, agent.NameAnalysis, agent.NameVisualization},
				NextAgent:      agent.NameAnalysis,
			},
			wantMode: PlanHybrid,
			want: [][]string{
				{agent.NameData},
				{agent.NameNews, agent.NameKnowledge},
				{agent.NameAnalysis, agent.NameVisualization},
			},
		},
		{
			name: "visualization needs data first",
			analysis: &Analysis{
				PrimaryIntent:  IntentVisualization,
				Complexity:     agent.ComplexityModerate,
				RequiredAgents: []string{agent.NameData, agent.NameVisualization},
				NextAgent:      agent.NameVisualization,
			},
			wantMode: PlanSequential,
			want:     [][]string{{agent.NameData}, {agent.NameVisualization}},
		},
		{
			name: "general produces an empty plan",
			analysis: &Analysis{
				PrimaryIntent: IntentGeneral,
				Complexity:    agent.ComplexitySimple,
			},
			wantMode: PlanSingle,
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := buildPlan(tt.analysis)
			if plan.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", plan.Mode, tt.wantMode)
			}
			if !reflect.DeepEqual(plan.Stages, tt.want) {
				t.Errorf("Stages = %v, want %v", plan.Stages, tt.want)
			}
		})
	}
}

// Data must precede any consumer of its payload no matter how the analyzer
// ordered the agent list.
func TestBuildPlanDataBeforeConsumers(t *testing.T) {
	plan := buildPlan(&Analysis{
		PrimaryIntent:  IntentAnalysis,
		Complexity:     agent.ComplexityComplex,
		RequiredAgents: []string{agent.NameVisualization, agent.NameAnalysis, agent.NameData},
		NextAgent:      agent.NameAnalysis,
	})

	pos := make(map[string]int)
	for i, stage := range plan.Stages {
		for _, name := range stage {
			pos[name] = i
		}
	}
	if pos[agent.NameData] >= pos[agent.NameAnalysis] {
		t.Errorf("data in stage %d, analysis in stage %d: data must come first", pos[agent.NameData], pos[agent.NameAnalysis])
	}
	if pos[agent.NameData] >= pos[agent.NameVisualization] {
		t.Errorf("data in stage %d, visualization in stage %d: data must come first", pos[agent.NameData], pos[agent.NameVisualization])
	}
}

func TestEstimatePlanSumsSlowestPerStage(t *testing.T) {
	stages := [][]string{
		{agent.NameData},
		{agent.NameNews, agent.NameKnowledge},
	}
	// 800 + max(1500, 1200)
	if got := estimatePlan(stages); got != 2300 {
		t.Errorf("estimatePlan = %d, want 2300", got)
	}
}

func TestPlannerReasoningIsBestEffort(t *testing.T) {
	analysis := &Analysis{
		PrimaryIntent:  IntentData,
		Complexity:     agent.ComplexitySimple,
		RequiredAgents: []string{agent.NameData},
		NextAgent:      agent.NameData,
	}

	t.Run("model reasoning recorded", func(t *testing.T) {
		lm := &capability.FakeLM{Completions: []capability.Completion{{Text: "단일 시세 조회라 한 단계로 충분합니다."}}}
		n := &planner{lm: lm}
		res := n.Run(context.Background(), State{Query: "삼성전자 주가", Analysis: analysis, Meter: llm.NewMeter()})
		if res.Err != nil {
			t.Fatalf("Run() error: %v", res.Err)
		}
		if res.Delta.Plan.Reasoning == "" {
			t.Error("Reasoning empty despite a working model")
		}
	})

	t.Run("model failure leaves plan intact", func(t *testing.T) {
		n := &planner{lm: &capability.FakeLM{Err: errors.New("api down")}}
		res := n.Run(context.Background(), State{Query: "삼성전자 주가", Analysis: analysis, Meter: llm.NewMeter()})
		if res.Err != nil {
			t.Fatalf("Run() error: %v", res.Err)
		}
		plan := res.Delta.Plan
		if plan == nil || len(plan.Stages) != 1 {
			t.Fatalf("plan = %+v, want one stage", plan)
		}
		if plan.Reasoning != "" {
			t.Errorf("Reasoning = %q, want empty on model failure", plan.Reasoning)
		}
	})
}
