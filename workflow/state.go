// Package workflow orchestrates financial question answering as a graph of
// meta-nodes: analyze the query, plan which worker agents to run, execute
// the plan in stages, combine the material, score the answer, and respond.
// Worker agents live in the agent subpackage; this package owns the state
// that flows between nodes and the routing between them.
package workflow

import (
	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/llm"
	"github.com/finchat-labs/finflow/workflow/agent"
)

// Query intents. Worker intents share their names with the agents that
// serve them; general covers greetings and off-domain questions, which are
// answered without running any worker.
const (
	IntentData          = agent.NameData
	IntentAnalysis      = agent.NameAnalysis
	IntentNews          = agent.NameNews
	IntentKnowledge     = agent.NameKnowledge
	IntentVisualization = agent.NameVisualization
	IntentGeneral       = "general"
)

// Plan modes. Single runs one agent, sequential runs stages of one agent
// each, hybrid mixes sequential stages with parallel agents inside a stage.
const (
	PlanSingle     = "single"
	PlanSequential = "sequential"
	PlanHybrid     = "hybrid"
)

// ActionType tells the client what the reply carries.
type ActionType string

const (
	ActionData          ActionType = "data"
	ActionAnalysis      ActionType = "analysis"
	ActionNews          ActionType = "news"
	ActionKnowledge     ActionType = "knowledge"
	ActionVisualization ActionType = "visualization"
	ActionGeneral       ActionType = "general"
	ActionError         ActionType = "error"
)

// Thresholds are the grade cutoffs for A, B, C, and D in order. Scores
// below the D cutoff grade F.
type Thresholds [4]float64

// DefaultThresholds grade A at 0.90, B at 0.75, C at 0.60, and D at 0.45.
var DefaultThresholds = Thresholds{0.90, 0.75, 0.60, 0.45}

// GradeFor maps a 0..1 score to its letter grade.
func GradeFor(score float64, th Thresholds) string {
	switch {
	case score >= th[0]:
		return "A"
	case score >= th[1]:
		return "B"
	case score >= th[2]:
		return "C"
	case score >= th[3]:
		return "D"
	default:
		return "F"
	}
}

// Request is one user question bound to its session.
type Request struct {
	Query     string
	SessionID string
	UserID    string
}

// Response is the terminal answer. It always carries an ActionType, a
// Confidence in [0,1], and the Grade matching that confidence, whether the
// run succeeded or ended on the error path.
type Response struct {
	RequestID          string
	Reply              string
	ActionType         ActionType
	ActionPayload      any
	Chart              []byte
	RetrievedDocuments []capability.Hit
	Confidence         float64
	Grade              string
	Usage              capability.Usage

	// Trace is the node execution record of the run, in hop order.
	Trace []graph.Step
}

// Turn is one entry of recent conversation offered to query analysis.
type Turn struct {
	Role string
	Text string
}

// Analysis is the query analyzer's verdict on what the user wants.
type Analysis struct {
	PrimaryIntent  string
	Complexity     string
	RequiredAgents []string
	Confidence     float64
	IsInvestment   bool

	// NextAgent is the worker serving the primary intent, empty for general.
	NextAgent string
}

// Plan is the execution strategy: stages run in order, agents within a
// stage run in parallel. EstimatedMS sums the slowest agent of each stage
// and is informational only.
type Plan struct {
	Mode        string
	Stages      [][]string
	EstimatedMS int64

	// Reasoning is a model-written summary of the strategy. Informational;
	// planning itself is deterministic.
	Reasoning string
}

// ShortCircuit marks a run whose answer was produced inline by the data
// agent, skipping synthesis and scoring.
type ShortCircuit struct {
	Active bool
	Reply  string
}

// Combined is the synthesized reply over all successful agent payloads.
// Degraded marks the deterministic template fallback.
type Combined struct {
	Reply    string
	Sources  []string
	Degraded bool
}

// Subscores are the four scoring dimensions, each 0..25.
type Subscores struct {
	Completeness float64
	Consistency  float64
	Accuracy     float64
	Usefulness   float64
}

// ConfidenceReport is the scored quality of the assembled answer.
type ConfidenceReport struct {
	Score     float64
	Grade     string
	Subscores Subscores
	Warnings  []string
}

// State is the workflow state threaded through the graph. Nodes return
// partial States as deltas; Reduce merges them.
type State struct {
	Query     string
	SessionID string
	UserID    string
	RequestID string
	History   []Turn

	Analysis *Analysis
	Plan     *Plan

	// AgentResults holds every dispatched agent's outcome, keyed by worker
	// name. A key, once present, is never overwritten.
	AgentResults map[string]agent.Result

	// Shared payloads installed by the executor from successful results.
	FinancialData    *agent.FinancialData
	NewsData         []agent.NewsItem
	AnalysisResult   *agent.AnalysisVerdict
	KnowledgeContext *agent.KnowledgeContext
	Chart            *agent.Chart

	ShortCircuit *ShortCircuit
	Combined     *Combined
	Confidence   *ConfidenceReport
	Fault        *Failure
	Response     *Response

	// Trace records one step per executed node in hop order.
	Trace []graph.Step

	// Meter accumulates model token usage across the run. The pointer is
	// installed once at run start and shared by every node.
	Meter *llm.Meter
}

// Reduce merges delta into prev field-wise: set fields win, zero fields
// leave prev untouched. AgentResults merges without overwriting existing
// keys and Trace concatenates, so replayed or duplicated deltas cannot
// erase what earlier hops recorded.
func Reduce(prev, delta State) State {
	out := prev

	if delta.Query != "" {
		out.Query = delta.Query
	}
	if delta.SessionID != "" {
		out.SessionID = delta.SessionID
	}
	if delta.UserID != "" {
		out.UserID = delta.UserID
	}
	if delta.RequestID != "" {
		out.RequestID = delta.RequestID
	}
	if len(delta.History) > 0 {
		out.History = delta.History
	}

	if delta.Analysis != nil {
		out.Analysis = delta.Analysis
	}
	if delta.Plan != nil {
		out.Plan = delta.Plan
	}
	if len(delta.AgentResults) > 0 {
		merged := make(map[string]agent.Result, len(prev.AgentResults)+len(delta.AgentResults))
		for k, v := range prev.AgentResults {
			merged[k] = v
		}
		for k, v := range delta.AgentResults {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		out.AgentResults = merged
	}

	if delta.FinancialData != nil {
		out.FinancialData = delta.FinancialData
	}
	if len(delta.NewsData) > 0 {
		out.NewsData = delta.NewsData
	}
	if delta.AnalysisResult != nil {
		out.AnalysisResult = delta.AnalysisResult
	}
	if delta.KnowledgeContext != nil {
		out.KnowledgeContext = delta.KnowledgeContext
	}
	if delta.Chart != nil {
		out.Chart = delta.Chart
	}

	if delta.ShortCircuit != nil {
		out.ShortCircuit = delta.ShortCircuit
	}
	if delta.Combined != nil {
		out.Combined = delta.Combined
	}
	if delta.Confidence != nil {
		out.Confidence = delta.Confidence
	}
	if delta.Fault != nil {
		out.Fault = delta.Fault
	}
	if delta.Response != nil {
		out.Response = delta.Response
	}

	if len(delta.Trace) > 0 {
		trace := make([]graph.Step, 0, len(prev.Trace)+len(delta.Trace))
		trace = append(trace, prev.Trace...)
		trace = append(trace, delta.Trace...)
		out.Trace = trace
	}
	if delta.Meter != nil {
		out.Meter = delta.Meter
	}

	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
