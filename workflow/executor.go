package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/workflow/agent"
)

// DefaultAgentTimeout bounds agents without a configured deadline.
const DefaultAgentTimeout = 30 * time.Second

// executor runs the plan: stages in order, agents within a stage in
// parallel on the shared worker pool. Each dispatch gets its own deadline
// and writes only its own result cell, so a stage needs no locking beyond
// the join.
//
// A failed agent normally just becomes a failed entry in the result map.
// Two failures abort the run: the agent serving the primary intent, and
// data when a later stage depends on it.
type executor struct {
	agents   map[string]agent.Agent
	pool     *agent.Pool
	timeouts map[string]time.Duration
	fallback time.Duration
}

func (n *executor) Run(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Plan == nil || s.Analysis == nil {
		return graph.NodeResult[State]{Err: &Failure{
			Kind:    KindInternal,
			Node:    nodeExecutor,
			Message: "executor reached without a plan",
		}}
	}

	delta := State{AgentResults: make(map[string]agent.Result)}
	results := make(map[string]agent.Result, len(s.AgentResults))
	for k, v := range s.AgentResults {
		results[k] = v
	}
	finData := s.FinancialData

	for _, stage := range s.Plan.Stages {
		if err := ctx.Err(); err != nil {
			return graph.NodeResult[State]{Err: &Failure{
				Kind:        Classify(err),
				Node:        nodeExecutor,
				Message:     "run ended mid-plan: " + err.Error(),
				Recoverable: false,
			}}
		}

		for _, res := range n.runStage(ctx, s, stage, results, finData) {
			if _, exists := results[res.Agent]; exists {
				continue
			}
			results[res.Agent] = res
			delta.AgentResults[res.Agent] = res
			if !res.Success {
				continue
			}
			switch p := res.Payload.(type) {
			case *agent.DataPayload:
				finData = p.Data
				delta.FinancialData = p.Data
				if p.SimpleReply != "" {
					delta.ShortCircuit = &ShortCircuit{Active: true, Reply: p.SimpleReply}
				}
			case []agent.NewsItem:
				delta.NewsData = p
			case *agent.AnalysisVerdict:
				delta.AnalysisResult = p
			case *agent.KnowledgeContext:
				delta.KnowledgeContext = p
			case *agent.Chart:
				delta.Chart = p
			}
		}

		for _, name := range stage {
			res := results[name]
			if !res.Success && n.isRequired(name, s.Analysis, s.Plan) {
				kind := KindRequiredAgentFailed
				if ctx.Err() != nil {
					// The whole request died mid-stage; report the cause,
					// not the casualty.
					kind = KindCancelled
					if errors.Is(ctx.Err(), context.DeadlineExceeded) {
						kind = KindTimeout
					}
				}
				return graph.NodeResult[State]{Err: &Failure{
					Kind:        kind,
					Node:        nodeExecutor,
					Message:     fmt.Sprintf("required agent %q failed: %s", name, res.Err.Error()),
					Recoverable: false,
				}}
			}
		}
	}

	if delta.ShortCircuit != nil {
		return graph.NodeResult[State]{Delta: delta, Route: graph.Goto(nodeResponder)}
	}
	return graph.NodeResult[State]{Delta: delta, Route: graph.Goto(nodeCombiner)}
}

// runStage dispatches every agent of the stage onto the pool and joins.
// Result cells are per-agent slots; the WaitGroup establishes the ordering
// between slot writes and the collection loop.
func (n *executor) runStage(ctx context.Context, s State, stage []string, prior map[string]agent.Result, finData *agent.FinancialData) []agent.Result {
	snapshot := make(map[string]agent.Result, len(prior))
	for k, v := range prior {
		snapshot[k] = v
	}

	out := make([]agent.Result, len(stage))
	var wg sync.WaitGroup
	for i, name := range stage {
		ag, ok := n.agents[name]
		if !ok {
			out[i] = agent.Result{Agent: name, Err: &Failure{
				Kind:        KindInternal,
				Node:        name,
				Message:     "no such agent registered",
				Recoverable: true,
			}}
			continue
		}
		in := agent.Input{
			Query:          s.Query,
			Intent:         s.Analysis.PrimaryIntent,
			Complexity:     s.Analysis.Complexity,
			RequiredAgents: s.Analysis.RequiredAgents,
			IsInvestment:   s.Analysis.IsInvestment,
			Results:        snapshot,
			FinancialData:  finData,
			Meter:          s.Meter,
		}
		i, name, ag := i, name, ag
		wg.Add(1)
		n.pool.Submit(func() {
			defer wg.Done()
			out[i] = n.dispatch(ctx, name, ag, in)
		})
	}
	wg.Wait()
	return out
}

// dispatch runs one agent under its deadline, converting panics into
// internal failures so a bad agent cannot take the run down.
func (n *executor) dispatch(ctx context.Context, name string, ag agent.Agent, in agent.Input) (res agent.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = agent.Result{Agent: name, Err: &Failure{
				Kind:        KindInternal,
				Node:        name,
				Message:     fmt.Sprintf("agent panicked: %v", r),
				Recoverable: true,
			}}
		}
	}()

	actx, cancel := context.WithTimeout(ctx, n.timeoutFor(name))
	defer cancel()

	res = ag.Process(actx, in)
	if res.Agent == "" {
		res.Agent = name
	}
	if !res.Success && res.Err == nil {
		res.Err = &Failure{
			Kind:        KindInternal,
			Node:        name,
			Message:     "agent reported failure without detail",
			Recoverable: true,
		}
	}
	return res
}

func (n *executor) timeoutFor(name string) time.Duration {
	if d, ok := n.timeouts[name]; ok && d > 0 {
		return d
	}
	if n.fallback > 0 {
		return n.fallback
	}
	return DefaultAgentTimeout
}

// isRequired reports whether a failure of name must abort the run: the
// worker serving the primary intent always is, and data is when the plan
// also runs one of its consumers.
func (n *executor) isRequired(name string, a *Analysis, p *Plan) bool {
	if name == a.NextAgent {
		return true
	}
	if name != agent.NameData {
		return false
	}
	for _, stage := range p.Stages {
		for _, other := range stage {
			if other == agent.NameAnalysis || other == agent.NameVisualization {
				return true
			}
		}
	}
	return false
}
