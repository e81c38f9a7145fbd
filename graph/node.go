package graph

import "context"

// Node is a processing unit in a workflow graph. It receives the current
// state, performs its work, and reports the outcome as a NodeResult.
//
// A node never writes to shared state directly. State changes travel in
// Delta and are merged by the Engine through the configured Reducer, which
// keeps every hop a single-writer step even when a node fans work out to
// goroutines internally.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic. Implementations must honor ctx
	// cancellation on any blocking work and report failures through
	// NodeResult.Err rather than panicking.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the outcome of one node invocation.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node. The Engine
	// merges it into the run state via the Reducer. A result carrying Err
	// has its Delta discarded; faults are recorded by the FaultRecorder
	// instead.
	Delta S

	// Route directs the next hop. Use Stop() from terminal nodes and
	// Goto(id) for explicit routing. A zero Route defers to the graph's
	// edges.
	Route Next

	// Err reports a node failure. The Engine diverts the run to the error
	// node when one is configured; otherwise the run ends with this error.
	Err error
}

// Next specifies where execution goes after a node completes.
//
// Exactly one of the fields should be set. A zero Next means "consult the
// edges": the Engine evaluates the node's outgoing edges in registration
// order and follows the first match.
type Next struct {
	// To names the next node to execute.
	To string

	// Terminal ends the run normally with the current state.
	Terminal bool
}

// Stop returns a Next that ends the run.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the named node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	greet := NodeFunc[MyState](func(ctx context.Context, s MyState) NodeResult[MyState] {
//	    return NodeResult[MyState]{
//	        Delta: MyState{Greeting: "hello " + s.Name},
//	        Route: Stop(),
//	    }
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError attributes an error to the node that produced it.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
