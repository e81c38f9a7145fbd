// Package workflow orchestrates financial Q&A: a fixed graph of meta-nodes
// analyzes the query, plans which worker agents to run, executes the plan
// with bounded concurrency, and folds the partial results into one graded
// Korean answer.
//
// The pipeline is
//
//	query_analyzer -> service_planner -> parallel_executor
//	    -> result_combiner -> confidence_calculator -> responder
//
// with two shortcuts (general questions and inline quote answers jump
// straight to the responder) and one diversion (any hard node failure routes
// through error_handler). Worker failures inside the executor degrade the
// answer instead of aborting it unless the failing agent serves the primary
// intent.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/llm"
	"github.com/finchat-labs/finflow/session"
	"github.com/finchat-labs/finflow/workflow/agent"
)

// Node IDs. These appear in traces, events, and metrics labels.
const (
	nodeAnalyzer   = "query_analyzer"
	nodePlanner    = "service_planner"
	nodeExecutor   = "parallel_executor"
	nodeCombiner   = "result_combiner"
	nodeConfidence = "confidence_calculator"
	nodeResponder  = "responder"
	nodeErrors     = "error_handler"
)

// sessionSaveTimeout bounds the post-run history write. The write runs on a
// detached context so an exhausted request budget cannot drop the turn.
const sessionSaveTimeout = 5 * time.Second

// Workflow is the orchestration engine. One Workflow serves many concurrent
// Orchestrate calls; the worker pool and session store are shared.
type Workflow struct {
	engine   *graph.Engine[State]
	pool     *agent.Pool
	sessions session.Store
	cfg      Config
}

// New validates the capability set, builds the five worker agents and seven
// graph nodes, and wires the pipeline. The returned Workflow is ready for
// concurrent use.
func New(caps capability.Caps, opts ...Option) (*Workflow, error) {
	if err := caps.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	pool := agent.NewPool(cfg.PoolSize)

	agents := map[string]agent.Agent{
		agent.NameData: &agent.Data{
			Symbols: caps.Symbols,
			Market:  caps.Market,
			Retry:   cfg.Retry,
		},
		agent.NameAnalysis: &agent.Analysis{
			LM:       caps.LM,
			Embedder: caps.Embedder,
			Index:    caps.Index,
			Graph:    caps.NewsGraph,
			Retry:    cfg.Retry,
			TopK:     cfg.KnowledgeTopK,
		},
		agent.NameNews: &agent.News{
			Embedder:       caps.Embedder,
			Graph:          caps.NewsGraph,
			Feed:           caps.NewsFeed,
			Translator:     caps.Translator,
			Retry:          cfg.Retry,
			TopK:           cfg.NewsTopK,
			MinScore:       cfg.NewsMinScore,
			DedupThreshold: cfg.DedupThreshold,
		},
		agent.NameKnowledge: &agent.Knowledge{
			LM:       caps.LM,
			Index:    caps.Index,
			Retry:    cfg.Retry,
			TopK:     cfg.KnowledgeTopK,
			MinScore: cfg.KnowledgeMinScore,
		},
		agent.NameVisualization: &agent.Visualization{
			Renderer: caps.Charts,
		},
	}

	engineOpts := []graph.Option{
		graph.WithMaxHops(cfg.MaxHops),
		// The executor node hosts every agent dispatch of the request, so
		// its budget is the request budget, not the per-node default.
		graph.WithNodeTimeout(nodeExecutor, cfg.RequestTimeout),
	}
	if cfg.Metrics != nil {
		engineOpts = append(engineOpts, graph.WithMetrics(cfg.Metrics))
	}

	eng, err := graph.New[State](Reduce, cfg.Emitter, engineOpts...)
	if err != nil {
		return nil, err
	}

	nodes := []struct {
		id   string
		node graph.Node[State]
	}{
		{nodeAnalyzer, &analyzer{lm: caps.LM}},
		{nodePlanner, &planner{lm: caps.LM}},
		{nodeExecutor, &executor{
			agents:   agents,
			pool:     pool,
			timeouts: cfg.AgentTimeouts,
			fallback: DefaultAgentTimeout,
		}},
		{nodeCombiner, &combiner{lm: caps.LM}},
		{nodeConfidence, &confidenceCalc{lm: caps.LM, thresholds: cfg.Thresholds}},
		{nodeResponder, &responder{thresholds: cfg.Thresholds}},
		{nodeErrors, &errHandler{}},
	}
	for _, n := range nodes {
		if err := eng.Add(n.id, n.node); err != nil {
			pool.Close()
			return nil, err
		}
	}

	if err := eng.StartAt(nodeAnalyzer); err != nil {
		pool.Close()
		return nil, err
	}
	if err := eng.SetErrorNode(nodeErrors); err != nil {
		pool.Close()
		return nil, err
	}

	eng.SetFaultRecorder(func(s State, node string, err error) State {
		s.Fault = agent.FailureFrom(node, err)
		return s
	})
	eng.SetTraceAppender(func(s State, step graph.Step) State {
		s.Trace = append(s.Trace[:len(s.Trace):len(s.Trace)], step)
		return s
	})

	// The analyzer and executor route explicitly; these edges carry the
	// straight-line remainder of the pipeline.
	for _, e := range []struct{ from, to string }{
		{nodePlanner, nodeExecutor},
		{nodeCombiner, nodeConfidence},
		{nodeConfidence, nodeResponder},
	} {
		if err := eng.Connect(e.from, e.to, nil); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Workflow{
		engine:   eng,
		pool:     pool,
		sessions: cfg.Sessions,
		cfg:      cfg,
	}, nil
}

// Orchestrate answers one user question. It always returns a non-nil
// Response carrying a user-safe Korean reply; when the run failed the
// Response is the error shape and err describes the underlying failure.
func (w *Workflow) Orchestrate(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	defer cancel()

	initial := State{
		Query:     req.Query,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		RequestID: requestID,
		History:   w.history(ctx, req.SessionID),
		Meter:     llm.NewMeter(),
	}

	final, err := w.engine.Run(ctx, requestID, initial)
	if err != nil {
		return w.errorResponse(requestID, err, final), err
	}

	resp := final.Response
	if resp == nil {
		err := fmt.Errorf("run %s finished without a response", requestID)
		return w.errorResponse(requestID, err, final), err
	}
	resp.Trace = final.Trace

	w.remember(req, resp)
	return resp, nil
}

// history loads the most recent stored turns. Best effort: a store outage
// must not fail the request, it only costs the analyzer its context.
func (w *Workflow) history(ctx context.Context, sessionID string) []Turn {
	if w.sessions == nil || sessionID == "" || w.cfg.HistoryDepth <= 0 {
		return nil
	}
	entries, err := w.sessions.Recent(ctx, sessionID, w.cfg.HistoryDepth)
	if err != nil || len(entries) == 0 {
		return nil
	}
	turns := make([]Turn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, Turn{Role: e.Role, Text: e.Text})
	}
	return turns
}

// remember appends the exchange to the session store, best effort.
func (w *Workflow) remember(req Request, resp *Response) {
	if w.sessions == nil || req.SessionID == "" || resp.Reply == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionSaveTimeout)
	defer cancel()

	_ = w.sessions.Append(ctx, session.Entry{
		SessionID: req.SessionID,
		RequestID: resp.RequestID,
		Role:      session.RoleUser,
		Text:      req.Query,
	})
	_ = w.sessions.Append(ctx, session.Entry{
		SessionID: req.SessionID,
		RequestID: resp.RequestID,
		Role:      session.RoleAssistant,
		Text:      resp.Reply,
	})
}

// errorResponse shapes a run-level failure the same way the responder shapes
// a recorded fault, so callers always get a presentable reply.
func (w *Workflow) errorResponse(requestID string, err error, final State) *Response {
	resp := &Response{
		RequestID:  requestID,
		Reply:      userMessage(Classify(err)),
		ActionType: ActionError,
		Confidence: 0,
		Grade:      "F",
		Trace:      final.Trace,
	}
	if final.Meter != nil {
		resp.Usage = final.Meter.Total()
	}
	return resp
}

// Close releases the worker pool. The session store is closed by whoever
// opened it. Close does not interrupt runs already in flight.
func (w *Workflow) Close() {
	w.pool.Close()
}
