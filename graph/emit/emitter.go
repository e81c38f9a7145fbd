package emit

// Emitter receives execution events from the graph runtime.
//
// Implementations must be safe for concurrent use, must not block the run
// loop, and must not panic; a misbehaving observability backend should never
// take a request down with it. Delivery is best effort: an emitter that
// cannot forward an event drops it.
type Emitter interface {
	// Emit delivers one event. Errors are handled internally, never
	// surfaced to the caller.
	Emit(event Event)
}
