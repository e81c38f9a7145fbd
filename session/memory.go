package session

import (
	"context"
	"sync"
	"time"
)

// MemStore keeps turns in process memory. It backs tests and deployments
// that run without a database; history is lost on restart.
type MemStore struct {
	mu     sync.Mutex
	turns  map[string][]Entry
	closed bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{turns: make(map[string][]Entry)}
}

func (m *MemStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.turns[e.SessionID] = append(m.turns[e.SessionID], e)
	return nil
}

func (m *MemStore) Recent(ctx context.Context, sessionID string, n int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	all := m.turns[sessionID]
	if n <= 0 || len(all) == 0 {
		return []Entry{}, nil
	}
	if n > len(all) {
		n = len(all)
	}
	out := make([]Entry, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
