// Package agent defines the worker agents that gather and produce the
// material a financial answer is assembled from: market quotes, analyst
// judgements, news, reference knowledge, and charts.
//
// Agents share a uniform contract: they receive an immutable Input snapshot,
// do their own I/O against the capability interfaces they hold, and return a
// Result. They never touch orchestration state directly; the executor installs
// returned payloads. A failed agent reports a classified Failure instead of a
// Go error so the orchestrator can decide whether the run survives it.
package agent

import (
	"context"
	"time"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/llm"
)

// Worker names as they appear in execution plans, agent_results keys,
// and trace output.
const (
	NameData          = "data"
	NameAnalysis      = "analysis"
	NameNews          = "news"
	NameKnowledge     = "knowledge"
	NameVisualization = "visualization"
)

// Complexity labels assigned by query analysis and consumed by planning
// and by the data agent's short-circuit heuristic.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// Agent is a worker that produces one category of answer material.
type Agent interface {
	// Name reports the worker name used in plans and result maps.
	Name() string

	// Process runs the agent against in. It always returns a Result; failures
	// are reported through Result.Err, never by panicking or by a bare error.
	// Implementations must honor ctx cancellation on all blocking calls.
	Process(ctx context.Context, in Input) Result
}

// Input is the read-only snapshot an agent works from. The executor builds
// it fresh for every dispatch, so agents in the same stage can run in
// parallel without sharing mutable state.
type Input struct {
	Query          string
	Intent         string
	Complexity     string
	RequiredAgents []string
	IsInvestment   bool

	// Results holds the outcomes of agents from earlier stages, keyed by
	// worker name. Same-stage peers are never visible here.
	Results map[string]Result

	// FinancialData is the quote payload produced by the data agent, when a
	// prior stage ran it. Analysis and visualization require it.
	FinancialData *FinancialData

	// Meter accumulates token usage for model calls made by this agent.
	// May be nil; Record on a nil meter is a no-op.
	Meter *llm.Meter
}

// Result is the uniform outcome of one agent dispatch.
type Result struct {
	Agent     string
	Success   bool
	Payload   any
	Err       *Failure
	ElapsedMS int64
}

// FinancialData is the quote snapshot the data agent produces. Downstream
// agents and the combiner read it; nobody mutates it after installation.
type FinancialData struct {
	Symbol    string
	Name      string
	Price     float64
	ChangePct float64
	Volume    int64
	PER       float64
	PBR       float64
	ROE       float64
	MarketCap float64
	Sector    string
}

// DataPayload is what the data agent returns. SimpleReply is non-empty when
// the request was a plain quote lookup the agent answered inline, letting the
// orchestrator skip synthesis and scoring for that run.
type DataPayload struct {
	Data        *FinancialData
	SimpleReply string
}

// NewsItem is one deduplicated, scored news entry. Source is "graph" for
// archive hits and "feed" for live feed items.
type NewsItem struct {
	Title       string
	URL         string
	PublishedAt time.Time
	Source      string
	Summary     string
	Relevance   float64
	Score       float64
}

// AnalysisVerdict is the analysis agent's judgement over the collected
// material. Rating is 1 (strong caution) through 5 (strong outlook).
// Disclaimer is always populated.
type AnalysisVerdict struct {
	Rating     int
	Rationale  string
	Disclaimer string
	Sources    []string
}

// KnowledgeContext carries a term explanation and the reference passages
// it was grounded on.
type KnowledgeContext struct {
	Explanation string
	Hits        []capability.Hit
}

// Chart is a rendered chart image with its display caption.
type Chart struct {
	Kind    capability.ChartKind
	PNG     []byte
	Caption string
}

// succeed builds a successful Result with elapsed time measured from start.
func succeed(name string, payload any, start time.Time) Result {
	return Result{
		Agent:     name,
		Success:   true,
		Payload:   payload,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
}

// failWith builds a failed Result. Agent-level failures are recoverable by
// default: the executor decides whether a failed agent aborts the run.
func failWith(name string, kind Kind, message string, start time.Time) Result {
	return Result{
		Agent: name,
		Err: &Failure{
			Kind:        kind,
			Node:        name,
			Message:     message,
			Recoverable: true,
		},
		ElapsedMS: time.Since(start).Milliseconds(),
	}
}
