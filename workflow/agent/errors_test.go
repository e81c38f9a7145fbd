package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/finchat-labs/finflow/capability"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Kind("")},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("quote: %w", context.DeadlineExceeded), KindTimeout},
		{"cancelled", context.Canceled, KindCancelled},
		{"unlisted symbol", capability.ErrSymbolUnlisted, KindSymbolNotFound},
		{"wrapped unlisted", fmt.Errorf("fetch: %w", capability.ErrSymbolUnlisted), KindSymbolNotFound},
		{"transient fault", capability.TransientFault("rate limited", nil), KindTransientExternal},
		{"permanent fault", capability.PermanentFault("invalid api key", nil), KindPermanentExternal},
		{"failure keeps kind", &Failure{Kind: KindNoContext, Message: "nothing indexed"}, KindNoContext},
		{"status 429", errors.New("unexpected status 429"), KindTransientExternal},
		{"status 503", errors.New("upstream returned 503"), KindTransientExternal},
		{"connection refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), KindTransientExternal},
		{"client timeout", errors.New("Client.Timeout exceeded while awaiting headers"), KindTransientExternal},
		{"unknown", errors.New("slice index out of range"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(capability.TransientFault("503", nil)) {
		t.Error("transient fault should be transient")
	}
	if IsTransient(capability.PermanentFault("bad key", nil)) {
		t.Error("permanent fault should not be transient")
	}
	if IsTransient(context.DeadlineExceeded) {
		t.Error("deadline should not be transient, retrying a dead context is useless")
	}
}

func TestFailureError(t *testing.T) {
	f := &Failure{Kind: KindTimeout, Node: "news", Message: "feed stalled"}
	if got, want := f.Error(), "news: timeout: feed stalled"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	f = &Failure{Kind: KindInternal, Message: "boom"}
	if got, want := f.Error(), "internal: boom"; got != want {
		t.Errorf("Error() without node = %q, want %q", got, want)
	}
}

func TestFailureFrom(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		f := FailureFrom("executor", errors.New("boom"))
		if f.Kind != KindInternal || f.Node != "executor" || f.Recoverable {
			t.Errorf("unexpected failure: %+v", f)
		}
	})

	t.Run("classified error", func(t *testing.T) {
		f := FailureFrom("executor", fmt.Errorf("stage: %w", context.DeadlineExceeded))
		if f.Kind != KindTimeout {
			t.Errorf("Kind = %q, want %q", f.Kind, KindTimeout)
		}
	})

	t.Run("existing failure keeps kind and message", func(t *testing.T) {
		orig := &Failure{Kind: KindSymbolNotFound, Message: "no such symbol", Recoverable: true}
		f := FailureFrom("executor", orig)
		if f.Kind != KindSymbolNotFound || f.Message != "no such symbol" {
			t.Errorf("failure not preserved: %+v", f)
		}
		if f.Recoverable {
			t.Error("diverted failure must be unrecoverable")
		}
		if f.Node != "executor" {
			t.Errorf("Node = %q, want executor", f.Node)
		}
		if !orig.Recoverable {
			t.Error("original failure mutated")
		}
	})
}
