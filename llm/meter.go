package llm

import (
	"sync"

	"github.com/finchat-labs/finflow/capability"
)

// Meter accumulates language model token usage across one request, with
// per-caller attribution. Nodes record after each completion:
//
//	out, err := caps.LM.Complete(ctx, prompt)
//	meter.Record("analyzer", out.Usage)
//
// All methods are safe for concurrent use and safe on a nil receiver, so a
// request without metering costs nothing.
type Meter struct {
	mu       sync.Mutex
	total    capability.Usage
	byCaller map[string]capability.Usage
	calls    int
}

// NewMeter creates an empty meter.
func NewMeter() *Meter {
	return &Meter{byCaller: make(map[string]capability.Usage)}
}

// Record adds one completion's usage under the caller's name.
func (m *Meter) Record(caller string, usage capability.Usage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.Prompt += usage.Prompt
	m.total.Completion += usage.Completion
	m.total.Total += usage.Total
	m.calls++

	u := m.byCaller[caller]
	u.Prompt += usage.Prompt
	u.Completion += usage.Completion
	u.Total += usage.Total
	m.byCaller[caller] = u
}

// Total returns the accumulated usage across all callers.
func (m *Meter) Total() capability.Usage {
	if m == nil {
		return capability.Usage{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Calls returns how many completions were recorded.
func (m *Meter) Calls() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ByCaller returns a copy of the per-caller breakdown.
func (m *Meter) ByCaller() map[string]capability.Usage {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]capability.Usage, len(m.byCaller))
	for caller, usage := range m.byCaller {
		out[caller] = usage
	}
	return out
}
