// Package graph provides a generic, bounded workflow runtime: typed nodes
// over a shared state type, conditional edges, explicit routing, per-node
// timeouts, and fault diversion to a designated error node.
//
// A workflow is a directed graph of Node[S] implementations registered under
// string IDs. The Engine runs one node at a time, merges each node's Delta
// into the state through a Reducer, appends a trace entry per hop, and
// follows either the node's explicit Route or the first matching Edge. Runs
// are bounded by MaxHops so a miswired graph terminates instead of spinning.
//
// Parallelism lives inside nodes: a node may fan work out to goroutines and
// gather the results, but from the Engine's point of view every hop is a
// single sequential step with a single writer of state.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finchat-labs/finflow/graph/emit"
)

// Engine executes a workflow graph over state type S.
//
// During a run the Engine:
//   - executes nodes sequentially, one hop at a time
//   - merges node deltas through the configured Reducer
//   - appends a Step per hop via the TraceAppender
//   - diverts to the error node on the first fault
//   - emits an event per hop and records metrics when configured
//
// Wiring (Add, StartAt, Connect, SetErrorNode) is guarded by a mutex but is
// intended to happen once, before the first Run. Run is safe to call from
// multiple goroutines; each call owns its own state.
//
// Example:
//
//	engine, err := graph.New(reducer, emit.NewLogEmitter(os.Stderr, false))
//	if err != nil {
//	    return err
//	}
//	_ = engine.Add("analyze", analyzeNode)
//	_ = engine.Add("respond", respondNode)
//	_ = engine.Connect("analyze", "respond", nil)
//	_ = engine.StartAt("analyze")
//
//	final, err := engine.Run(ctx, "run-001", initial)
type Engine[S any] struct {
	mu sync.RWMutex

	// reducer merges node deltas into the run state.
	reducer Reducer[S]

	// nodes maps node IDs to implementations.
	nodes map[string]Node[S]

	// edges holds transitions in registration order.
	edges []Edge[S]

	// startNode is the entry point for Run.
	startNode string

	// errorNode receives control after the first fault, when set.
	errorNode string

	// recordFault writes a fault into state before diversion.
	recordFault FaultRecorder[S]

	// appendTrace records one Step per hop into state.
	appendTrace TraceAppender[S]

	// emitter receives one event per hop. May be nil.
	emitter emit.Emitter

	// opts is the resolved configuration.
	opts Options
}

// New creates an Engine with the given reducer and emitter.
//
// The reducer is required for Run but, like the rest of the wiring, is
// validated lazily so construction order stays flexible. The emitter may be
// nil when no observability is wanted. Options are applied in order; the
// first invalid option aborts construction.
func New[S any](reducer Reducer[S], emitter emit.Emitter, opts ...Option) (*Engine[S], error) {
	cfg := engineConfig{opts: Options{
		MaxHops:            DefaultMaxHops,
		DefaultNodeTimeout: DefaultNodeTimeout,
		NodeTimeouts:       make(map[string]time.Duration),
	}}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Engine[S]{
		reducer: reducer,
		nodes:   make(map[string]Node[S]),
		edges:   make([]Edge[S], 0),
		emitter: emitter,
		opts:    cfg.opts,
	}, nil
}

// Add registers a node under the given ID. IDs must be unique.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{
			Message: "duplicate node ID: " + nodeID,
			Code:    "DUPLICATE_NODE",
		}
	}

	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry point for Run. The node must already be registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{
			Message: "start node does not exist: " + nodeID,
			Code:    "NODE_NOT_FOUND",
		}
	}

	e.startNode = nodeID
	return nil
}

// SetErrorNode designates the node that receives control after the first
// fault in a run. The node must already be registered.
//
// A fault is a node returning Err, or the run's context ending. Before the
// diversion the FaultRecorder writes the fault into state, so the error node
// can classify it. A second fault, or a fault with no error node configured,
// ends the run with the error instead.
func (e *Engine[S]) SetErrorNode(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "error node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{
			Message: "error node does not exist: " + nodeID,
			Code:    "NODE_NOT_FOUND",
		}
	}

	e.errorNode = nodeID
	return nil
}

// SetFaultRecorder installs the function that writes faults into state
// before a diversion. Without one, diversions still happen but the error
// node sees no record of what failed.
func (e *Engine[S]) SetFaultRecorder(fn FaultRecorder[S]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordFault = fn
}

// SetTraceAppender installs the function that appends one Step per hop into
// state. The Engine is the single writer of the trace: nodes never append
// entries themselves.
func (e *Engine[S]) SetTraceAppender(fn TraceAppender[S]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appendTrace = fn
}

// Connect creates an edge from one node to another, optionally gated by a
// predicate. Edges are consulted in registration order when a node returns a
// zero Route; a node's explicit Route always wins over its edges.
//
// Node existence is not validated here so graphs can be wired in any order;
// a route into a missing node surfaces as NODE_NOT_FOUND at run time.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run executes the workflow from the start node until a terminal route, a
// fault that cannot be diverted, or an engine limit.
//
// Each hop:
//  1. checks the hop guard and the run's context
//  2. executes the current node under its timeout budget
//  3. appends a Step to the trace
//  4. merges the node's delta (faults skip the merge and divert instead)
//  5. picks the next node from the explicit Route or the edges
//
// A cancelled or expired ctx diverts to the error node like a node fault, so
// the terminal state can still be shaped; nodes on the error path receive
// the dead context and must not start new blocking work.
//
// On success Run returns the final state. On failure it returns the zero
// state and the error; the error is the faulting node's own error, an
// EngineError for runtime limits, or the context error for an undivertible
// cancellation.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if e.reducer == nil {
		return zero, &EngineError{
			Message: "reducer is required",
			Code:    "MISSING_REDUCER",
		}
	}

	e.mu.RLock()
	current := e.startNode
	e.mu.RUnlock()

	if current == "" {
		return zero, &EngineError{
			Message: "start node not set (call StartAt before Run)",
			Code:    "NO_START_NODE",
		}
	}

	m := e.opts.Metrics
	m.RunStarted()

	state := initial
	hop := 0
	diverted := false

	for {
		hop++

		if e.opts.MaxHops > 0 && hop > e.opts.MaxHops {
			m.RunFailed("MAX_HOPS_EXCEEDED", hop-1)
			return zero, &EngineError{
				Message: fmt.Sprintf("run %s exceeded %d hops", runID, e.opts.MaxHops),
				Code:    "MAX_HOPS_EXCEEDED",
			}
		}

		if !diverted {
			if cerr := ctx.Err(); cerr != nil {
				to, ok := e.divert(&state, current, cerr)
				if !ok {
					m.RunFailed("CANCELLED", hop-1)
					return zero, cerr
				}
				e.emitEvent(runID, hop, current, "fault diverted", map[string]any{
					"error": cerr.Error(),
					"to":    to,
				})
				current = to
				diverted = true
			}
		}

		e.mu.RLock()
		node, exists := e.nodes[current]
		e.mu.RUnlock()

		if !exists {
			m.RunFailed("NODE_NOT_FOUND", hop-1)
			return zero, &EngineError{
				Message: "node not found during run: " + current,
				Code:    "NODE_NOT_FOUND",
			}
		}

		e.emitEvent(runID, hop, current, "node started", nil)

		startedAt := time.Now()
		result := e.executeNode(ctx, current, node, state)
		elapsed := time.Since(startedAt)

		if e.appendTrace != nil {
			step := Step{Hop: hop, Node: current, StartedAt: startedAt, Elapsed: elapsed}
			if result.Err != nil {
				step.Err = result.Err.Error()
			}
			state = e.appendTrace(state, step)
		}

		if result.Err != nil {
			m.NodeObserved(current, "error", elapsed)
			e.emitEvent(runID, hop, current, "node failed", map[string]any{
				"elapsed_ms": elapsed.Milliseconds(),
				"error":      result.Err.Error(),
			})

			if diverted {
				// A fault on the error path ends the run.
				m.RunFailed(errCode(result.Err), hop)
				return zero, result.Err
			}

			to, ok := e.divert(&state, current, result.Err)
			if !ok {
				m.RunFailed(errCode(result.Err), hop)
				return zero, result.Err
			}
			e.emitEvent(runID, hop, current, "fault diverted", map[string]any{"to": to})
			current = to
			diverted = true
			continue
		}

		state = e.reducer(state, result.Delta)
		m.NodeObserved(current, "ok", elapsed)
		e.emitEvent(runID, hop, current, "node completed", map[string]any{
			"elapsed_ms": elapsed.Milliseconds(),
		})

		if result.Route.Terminal {
			m.RunCompleted(hop)
			return state, nil
		}

		if result.Route.To != "" {
			current = result.Route.To
			continue
		}

		next := e.evaluateEdges(current, state)
		if next == "" {
			m.RunFailed("NO_ROUTE", hop)
			return zero, &EngineError{
				Message: "no route from node: " + current,
				Code:    "NO_ROUTE",
			}
		}
		current = next
	}
}

// executeNode runs a single node under its timeout budget.
//
// A node that overruns the budget yields a NodeError with code NODE_TIMEOUT
// wrapping context.DeadlineExceeded, which downstream classifiers treat as a
// timeout rather than a generic failure. When the parent context is already
// dead the node's own result stands, since that is a run-level event rather
// than a per-node overrun.
func (e *Engine[S]) executeNode(ctx context.Context, nodeID string, node Node[S], state S) NodeResult[S] {
	timeout := e.nodeTimeout(nodeID)
	if timeout <= 0 {
		return node.Run(ctx, state)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(tctx, state)
	if tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		result.Err = &NodeError{
			Message: fmt.Sprintf("exceeded timeout of %v", timeout),
			Code:    "NODE_TIMEOUT",
			NodeID:  nodeID,
			Cause:   context.DeadlineExceeded,
		}
	}
	return result
}

// nodeTimeout resolves the budget for a node: per-node override first, then
// the engine default, then 0 for unlimited.
func (e *Engine[S]) nodeTimeout(nodeID string) time.Duration {
	if d, ok := e.opts.NodeTimeouts[nodeID]; ok && d > 0 {
		return d
	}
	return e.opts.DefaultNodeTimeout
}

// divert records err into state and returns the error node ID. ok is false
// when no error node is configured, in which case the caller surfaces the
// error as the run result.
func (e *Engine[S]) divert(state *S, node string, err error) (string, bool) {
	e.mu.RLock()
	target := e.errorNode
	rec := e.recordFault
	e.mu.RUnlock()

	if target == "" {
		return "", false
	}
	if rec != nil {
		*state = rec(*state, node, err)
	}
	return target, true
}

// evaluateEdges finds the first matching outgoing edge for the node.
// Unconditional edges always match; conditional edges match when their
// predicate holds for the current state. Registration order is priority
// order. Returns "" when nothing matches.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) emitEvent(runID string, hop int, node, msg string, meta map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		RunID: runID,
		Hop:   hop,
		Node:  node,
		Msg:   msg,
		Meta:  meta,
	})
}

// errCode extracts a stable code from engine and node errors for metrics
// labels, falling back to "ERROR" for plain errors.
func errCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code != "" {
		return ee.Code
	}
	var ne *NodeError
	if errors.As(err, &ne) && ne.Code != "" {
		return ne.Code
	}
	return "ERROR"
}
