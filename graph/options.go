package graph

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxHops bounds a run to 32 node invocations. The deepest legal
	// pipeline (a complex query with an error diversion) stays well under
	// this, so hitting the bound always indicates a wiring bug rather than a
	// long request.
	DefaultMaxHops = 32

	// DefaultNodeTimeout applies to every node without a WithNodeTimeout
	// override.
	DefaultNodeTimeout = 30 * time.Second
)

// Options holds resolved Engine configuration. Construct it through New and
// the With* options rather than directly; New fills in defaults.
type Options struct {
	// MaxHops limits how many node invocations a single run may perform,
	// counting diversions to the error node. 0 disables the guard.
	MaxHops int

	// DefaultNodeTimeout is the per-node execution budget used when
	// NodeTimeouts has no entry for the node. 0 disables timeouts for
	// nodes without an explicit entry.
	DefaultNodeTimeout time.Duration

	// NodeTimeouts overrides the execution budget for specific nodes.
	NodeTimeouts map[string]time.Duration

	// Metrics receives run and node observations when non-nil.
	Metrics *Metrics
}

// Option configures an Engine at construction time.
type Option func(*engineConfig) error

// engineConfig collects options before they are applied, so invalid values
// can be rejected from New instead of surfacing mid-run.
type engineConfig struct {
	opts Options
}

// WithMaxHops overrides the hop guard. A run that exceeds the limit fails
// with EngineError code MAX_HOPS_EXCEEDED.
func WithMaxHops(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return &EngineError{Message: fmt.Sprintf("max hops must be positive, got %d", n)}
		}
		cfg.opts.MaxHops = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the execution budget for nodes that have no
// per-node override. Pass 0 to run such nodes without a timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return &EngineError{Message: fmt.Sprintf("default node timeout must not be negative, got %v", d)}
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithNodeTimeout sets the execution budget for one node, taking precedence
// over the default. A node that overruns it fails with a NodeError of code
// NODE_TIMEOUT wrapping context.DeadlineExceeded.
func WithNodeTimeout(nodeID string, d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if nodeID == "" {
			return &EngineError{Message: "node ID for timeout cannot be empty"}
		}
		if d <= 0 {
			return &EngineError{Message: fmt.Sprintf("node timeout must be positive, got %v", d)}
		}
		cfg.opts.NodeTimeouts[nodeID] = d
		return nil
	}
}

// WithMetrics attaches a Prometheus metrics collector. Without it the Engine
// records nothing.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	engine, err := graph.New(reducer, emitter, graph.WithMetrics(metrics))
func WithMetrics(m *Metrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = m
		return nil
	}
}
