package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finchat-labs/finflow/capability"
)

// Kind classifies a failure for routing and for user-facing messaging.
type Kind string

// Failure kinds. Worker agents report the first six; the orchestrator adds
// the rest when it aborts a run.
const (
	KindInvalidInput        Kind = "invalid_input"
	KindSymbolNotFound      Kind = "symbol_not_found"
	KindNoContext           Kind = "no_context"
	KindTransientExternal   Kind = "transient_external"
	KindPermanentExternal   Kind = "permanent_external"
	KindTimeout             Kind = "timeout"
	KindCancelled           Kind = "cancelled"
	KindRequiredAgentFailed Kind = "required_agent_failed"
	KindRenderFailed        Kind = "render_failed"
	KindInternal            Kind = "internal"
)

// Failure is a classified error. Recoverable failures are recorded and the
// run continues; unrecoverable ones divert the run to the error path.
type Failure struct {
	Kind        Kind
	Node        string
	Message     string
	Recoverable bool
}

func (f *Failure) Error() string {
	if f.Node != "" {
		return fmt.Sprintf("%s: %s: %s", f.Node, f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Classify maps an arbitrary error to a failure kind. Typed errors win:
// an existing Failure keeps its kind, context errors map to timeout and
// cancelled, and capability errors carry their own classification. Anything
// left is fingerprinted by message, then falls through to internal.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, capability.ErrSymbolUnlisted) {
		return KindSymbolNotFound
	}
	var fault *capability.Fault
	if errors.As(err, &fault) {
		if fault.Transient {
			return KindTransientExternal
		}
		return KindPermanentExternal
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "too many requests", "rate limit",
		"500", "502", "503", "504", "bad gateway", "service unavailable",
		"connection", "timeout", "temporar",
	} {
		if strings.Contains(msg, marker) {
			return KindTransientExternal
		}
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Classify(err) == KindTransientExternal
}

// FailureFrom converts an error that aborted a run into an unrecoverable
// Failure attributed to node. An error that already is a Failure keeps its
// kind and message; its node is filled in when empty.
func FailureFrom(node string, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		out := *f
		if out.Node == "" {
			out.Node = node
		}
		out.Recoverable = false
		return &out
	}
	return &Failure{
		Kind:        Classify(err),
		Node:        node,
		Message:     err.Error(),
		Recoverable: false,
	}
}
