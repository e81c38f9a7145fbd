package graph

import "time"

// Reducer merges a node's partial update into the current state and returns
// the merged state.
//
// Reducers must be deterministic and must treat prev as read-only: build the
// result by copying, never by mutating maps or slices reachable from prev.
// The Engine calls the reducer exactly once per successful hop.
//
// Type parameter S is the state type shared across the workflow.
type Reducer[S any] func(prev, delta S) S

// Step describes one hop of a run: which node ran, when it started, how long
// it took, and the error it produced if any.
type Step struct {
	// Hop is the 1-based position of this step in the run.
	Hop int

	// Node is the ID of the node that ran.
	Node string

	// StartedAt is when the node began executing.
	StartedAt time.Time

	// Elapsed is how long the node ran.
	Elapsed time.Duration

	// Err holds the node's error text. Empty on success.
	Err string
}

// TraceAppender records a completed Step into the state and returns the
// updated state. The Engine is the only caller, once per hop including
// failed ones, so trace order always matches execution order.
//
// Implementations must only append; rewriting earlier entries breaks the
// trace's usefulness as an execution record.
type TraceAppender[S any] func(state S, step Step) S

// FaultRecorder writes a node failure into the state before the Engine
// diverts to the error node. node is the ID of the faulting node and err is
// what it returned (or the context error when the run was cancelled). The
// error node reads the recorded fault to decide how to finish the run.
type FaultRecorder[S any] func(state S, node string, err error) S
