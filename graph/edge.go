package graph

// Edge is a possible transition between two nodes.
//
// Edges come in two forms:
//   - Unconditional: When is nil, the edge always matches.
//   - Conditional: the edge matches only if When(state) returns true.
//
// The Engine consults edges only when a node returns a zero Route. Edges are
// evaluated in the order they were registered and the first match wins, so a
// node's conditional edges should be registered before its catch-all edge.
//
// Type parameter S is the state type the predicate evaluates.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID.
	To string

	// When gates traversal. nil means the edge is unconditional.
	When Predicate[S]
}

// Predicate decides whether an edge should be traversed for a given state.
//
// Predicates should be pure: deterministic, no side effects, no I/O. Routing
// that needs external calls belongs in the node itself, which can return an
// explicit Route.
type Predicate[S any] func(state S) bool
