package emit

import "sync"

// BufferedEmitter stores events in memory, keyed by run ID.
//
// Tests use it to assert on event ordering and content after a run; it also
// serves ad hoc debugging. Everything stays in memory, so long-lived
// processes should Clear finished runs.
//
// Example:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, _ := graph.New(reducer, emitter)
//	_, _ = engine.Run(ctx, "run-001", initial)
//
//	for _, ev := range emitter.History("run-001") {
//	    fmt.Printf("hop %d %s: %s\n", ev.Hop, ev.Node, ev.Msg)
//	}
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter creates an empty buffer. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its run's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns all events for a run in emission order. The returned
// slice is a copy; callers may mutate it freely. Unknown runs yield an
// empty slice.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// Where returns the run's events that satisfy keep, in emission order.
//
//	failures := emitter.Where("run-001", func(ev Event) bool {
//	    return ev.Msg == "node failed"
//	})
func (b *BufferedEmitter) Where(runID string, keep func(Event) bool) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0)
	for _, event := range b.events[runID] {
		if keep(event) {
			result = append(result, event)
		}
	}
	return result
}

// Clear drops one run's events, or every run's when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
