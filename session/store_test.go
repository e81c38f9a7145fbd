package session_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/finchat-labs/finflow/session"
)

// runStoreSuite exercises the Store contract against any implementation.
// Session IDs carry a per-run suffix so the suite can rerun against a
// persistent backend without seeing rows from earlier runs.
func runStoreSuite(t *testing.T, open func(t *testing.T) session.Store) {
	t.Helper()
	ctx := context.Background()
	sid := func(name string) string {
		return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
	}

	t.Run("append then recent in order", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		sess := sid("sess-order")
		turns := []session.Entry{
			{SessionID: sess, RequestID: "r1", Role: session.RoleUser, Text: "삼성전자 주가 알려줘"},
			{SessionID: sess, RequestID: "r1", Role: session.RoleAssistant, Text: "삼성전자의 현재 주가는 71,500원입니다."},
			{SessionID: sess, RequestID: "r2", Role: session.RoleUser, Text: "그럼 어제보다 올랐어?"},
		}
		for _, e := range turns {
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("Append(%q) error: %v", e.Text, err)
			}
		}

		got, err := s.Recent(ctx, sess, 10)
		if err != nil {
			t.Fatalf("Recent error: %v", err)
		}
		if len(got) != len(turns) {
			t.Fatalf("Recent returned %d turns, want %d", len(got), len(turns))
		}
		for i, e := range got {
			if e.Text != turns[i].Text || e.Role != turns[i].Role {
				t.Errorf("turn %d = {%s %q}, want {%s %q}", i, e.Role, e.Text, turns[i].Role, turns[i].Text)
			}
			if e.CreatedAt.IsZero() {
				t.Errorf("turn %d has zero CreatedAt", i)
			}
		}
	})

	t.Run("recent caps at n newest", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		sess := sid("sess-cap")
		for i := 0; i < 8; i++ {
			e := session.Entry{
				SessionID: sess,
				RequestID: fmt.Sprintf("r%d", i),
				Role:      session.RoleUser,
				Text:      fmt.Sprintf("question %d", i),
			}
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("Append %d error: %v", i, err)
			}
		}

		got, err := s.Recent(ctx, sess, 3)
		if err != nil {
			t.Fatalf("Recent error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Recent returned %d turns, want 3", len(got))
		}
		for i, want := range []string{"question 5", "question 6", "question 7"} {
			if got[i].Text != want {
				t.Errorf("turn %d = %q, want %q", i, got[i].Text, want)
			}
		}
	})

	t.Run("unknown session is empty not error", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		got, err := s.Recent(ctx, sid("never-seen"), 5)
		if err != nil {
			t.Fatalf("Recent error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Recent returned %d turns, want 0", len(got))
		}
	})

	t.Run("non-positive n is empty", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		sess := sid("sess-n")
		if err := s.Append(ctx, session.Entry{SessionID: sess, Role: session.RoleUser, Text: "hi"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
		got, err := s.Recent(ctx, sess, 0)
		if err != nil {
			t.Fatalf("Recent error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Recent(0) returned %d turns, want 0", len(got))
		}
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		sessA, sessB := sid("sess-a"), sid("sess-b")
		if err := s.Append(ctx, session.Entry{SessionID: sessA, Role: session.RoleUser, Text: "for a"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
		if err := s.Append(ctx, session.Entry{SessionID: sessB, Role: session.RoleUser, Text: "for b"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}

		got, err := s.Recent(ctx, sessA, 10)
		if err != nil {
			t.Fatalf("Recent error: %v", err)
		}
		if len(got) != 1 || got[0].Text != "for a" {
			t.Errorf("session a sees %v, want only its own turn", got)
		}
	})

	t.Run("explicit created_at survives round trip", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		sess := sid("sess-ts")
		at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
		if err := s.Append(ctx, session.Entry{SessionID: sess, Role: session.RoleUser, Text: "hi", CreatedAt: at}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
		got, err := s.Recent(ctx, sess, 1)
		if err != nil {
			t.Fatalf("Recent error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Recent returned %d turns, want 1", len(got))
		}
		if !got[0].CreatedAt.UTC().Equal(at) {
			t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt.UTC(), at)
		}
	})

	t.Run("closed store rejects operations", func(t *testing.T) {
		s := open(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close error: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("double Close error: %v", err)
		}
		if err := s.Append(ctx, session.Entry{SessionID: "x", Role: session.RoleUser, Text: "late"}); !errors.Is(err, session.ErrClosed) {
			t.Errorf("Append after Close = %v, want ErrClosed", err)
		}
		if _, err := s.Recent(ctx, "x", 1); !errors.Is(err, session.ErrClosed) {
			t.Errorf("Recent after Close = %v, want ErrClosed", err)
		}
	})

	t.Run("concurrent appends all land", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		const writers = 16
		sess := sid("sess-conc")
		var wg sync.WaitGroup
		wg.Add(writers)
		for i := 0; i < writers; i++ {
			go func(i int) {
				defer wg.Done()
				e := session.Entry{
					SessionID: sess,
					RequestID: fmt.Sprintf("r%d", i),
					Role:      session.RoleUser,
					Text:      fmt.Sprintf("q%d", i),
				}
				if err := s.Append(ctx, e); err != nil {
					t.Errorf("Append %d error: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		got, err := s.Recent(ctx, sess, writers)
		if err != nil {
			t.Fatalf("Recent error: %v", err)
		}
		if len(got) != writers {
			t.Errorf("Recent returned %d turns, want %d", len(got), writers)
		}
	})
}

func TestMemStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) session.Store {
		return session.NewMemStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) session.Store {
		path := filepath.Join(t.TempDir(), "sessions.db")
		s, err := session.NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("NewSQLiteStore(%q) error: %v", path, err)
		}
		return s
	})
}

func TestSQLiteStorePing(t *testing.T) {
	s, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "ping.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Ping after Close = %v, want ErrClosed", err)
	}
}

func TestMemStoreCancelledContext(t *testing.T) {
	s := session.NewMemStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Append(ctx, session.Entry{SessionID: "x", Role: session.RoleUser, Text: "hi"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Append with cancelled ctx = %v, want context.Canceled", err)
	}
	if _, err := s.Recent(ctx, "x", 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Recent with cancelled ctx = %v, want context.Canceled", err)
	}
}
