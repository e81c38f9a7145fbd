package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/workflow/agent"
)

// Static per-agent latency estimates in milliseconds. Plan estimates sum
// the slowest agent of each stage; the numbers are informational, nothing
// schedules off them.
var agentEstimateMS = map[string]int64{
	agent.NameData:          800,
	agent.NameNews:          1500,
	agent.NameKnowledge:     1200,
	agent.NameAnalysis:      2000,
	agent.NameVisualization: 1800,
}

// planner turns the analysis into an execution plan. Planning is a fixed
// policy over intent, complexity, and the required agents; the model is
// consulted only to phrase the plan's reasoning line and its failure
// changes nothing about the stages.
type planner struct {
	lm capability.LanguageModel
}

func (n *planner) Run(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Analysis == nil {
		return graph.NodeResult[State]{Err: &Failure{
			Kind:    KindInternal,
			Node:    nodePlanner,
			Message: "planner reached without analysis",
		}}
	}

	plan := buildPlan(s.Analysis)
	plan.Reasoning = n.reasoning(ctx, s, plan)
	return graph.NodeResult[State]{Delta: State{Plan: plan}}
}

// buildPlan lays the required agents into stages. Three rules shape every
// plan: data runs before anything that consumes it, news and knowledge
// never wait on each other, and analysis and visualization run strictly
// after data. Moderate plans without both news and knowledge compress into
// one parallel stage when no dependency forces ordering.
func buildPlan(a *Analysis) *Plan {
	required := requiredAgents(a)
	if a.PrimaryIntent == IntentGeneral || len(required) == 0 {
		return &Plan{Mode: PlanSingle}
	}

	has := make(map[string]bool, len(required))
	for _, name := range required {
		has[name] = true
	}

	var stages [][]string
	dependents := has[agent.NameAnalysis] || has[agent.NameVisualization]
	switch {
	case a.Complexity == agent.ComplexityModerate && !dependents && !(has[agent.NameNews] && has[agent.NameKnowledge]):
		// Independent agents with no ordering constraint share one stage.
		stages = [][]string{required}
	default:
		stages = dependencyStages(has)
	}

	return &Plan{
		Mode:        planMode(a.Complexity, stages),
		Stages:      stages,
		EstimatedMS: estimatePlan(stages),
	}
}

// dependencyStages is the canonical staged layout: data first, then the
// independent gatherers, then the consumers of data.
func dependencyStages(has map[string]bool) [][]string {
	var stages [][]string
	if has[agent.NameData] {
		stages = append(stages, []string{agent.NameData})
	}
	var mid []string
	if has[agent.NameNews] {
		mid = append(mid, agent.NameNews)
	}
	if has[agent.NameKnowledge] {
		mid = append(mid, agent.NameKnowledge)
	}
	if len(mid) > 0 {
		stages = append(stages, mid)
	}
	var late []string
	if has[agent.NameAnalysis] {
		late = append(late, agent.NameAnalysis)
	}
	if has[agent.NameVisualization] {
		late = append(late, agent.NameVisualization)
	}
	if len(late) > 0 {
		stages = append(stages, late)
	}
	return stages
}

func requiredAgents(a *Analysis) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range a.RequiredAgents {
		if workerNames[name] && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func planMode(complexity string, stages [][]string) string {
	if len(stages) == 1 && len(stages[0]) == 1 {
		return PlanSingle
	}
	if complexity == agent.ComplexityComplex {
		return PlanHybrid
	}
	for _, stage := range stages {
		if len(stage) > 1 {
			return PlanHybrid
		}
	}
	return PlanSequential
}

func estimatePlan(stages [][]string) int64 {
	var total int64
	for _, stage := range stages {
		var slowest int64
		for _, name := range stage {
			est, ok := agentEstimateMS[name]
			if !ok {
				est = 1000
			}
			if est > slowest {
				slowest = est
			}
		}
		total += slowest
	}
	return total
}

// reasoning asks the model for a one-line summary of the chosen strategy.
// Purely descriptive; an unreachable model leaves it empty.
func (n *planner) reasoning(ctx context.Context, s State, plan *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n실행 전략: %s\n단계:", s.Query, plan.Mode)
	for i, stage := range plan.Stages {
		fmt.Fprintf(&b, " %d) %s", i+1, strings.Join(stage, ", "))
	}
	fmt.Fprintf(&b, "\n예상 소요: %dms\n\n이 전략을 선택한 이유를 사용자에게 보여줄 한 문장으로 요약하세요.", plan.EstimatedMS)

	out, err := n.lm.Complete(ctx, capability.Prompt{
		System:    "당신은 실행 계획을 짧게 설명하는 도우미입니다. 한 문장만 출력하세요.",
		User:      b.String(),
		MaxTokens: 120,
	})
	if err != nil {
		return ""
	}
	s.Meter.Record(nodePlanner, out.Usage)
	return strings.TrimSpace(out.Text)
}
