package graph

// EngineError represents an error from Engine configuration or the run loop
// itself, as opposed to an error produced by a node.
//
// Code is a stable machine-readable identifier:
//   - DUPLICATE_NODE: Add was called twice with the same node ID
//   - NODE_NOT_FOUND: StartAt, SetErrorNode, or a route named an unknown node
//   - NO_START_NODE: Run was called before StartAt
//   - MISSING_REDUCER: the Engine was built without a reducer
//   - MAX_HOPS_EXCEEDED: the run visited more nodes than MaxHops allows
//   - NO_ROUTE: a node finished without an explicit route and no edge matched
//   - NODE_TIMEOUT: a node overran its configured timeout (carried by NodeError)
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
