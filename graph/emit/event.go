// Package emit carries execution events out of the graph runtime.
//
// The Engine emits one Event per hop (start, completion, failure, fault
// diversion). Emitters route those events to a backend: a log stream,
// OpenTelemetry spans, an in-memory buffer for tests, or nowhere at all.
package emit

// Event is one observation from a workflow run.
type Event struct {
	// RunID identifies the run that produced this event.
	RunID string

	// Hop is the 1-based node invocation count at the time of the event.
	Hop int

	// Node is the ID of the node the event concerns.
	Node string

	// Msg names what happened: "node started", "node completed",
	// "node failed", "fault diverted".
	Msg string

	// Meta carries structured detail. Common keys:
	//   - "elapsed_ms": node execution duration
	//   - "error": error text for failures
	//   - "to": diversion target node
	//   - "tokens_total", "provider": language model usage, when a node
	//     reports it
	Meta map[string]any
}
