package workflow

import (
	"fmt"
	"time"

	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/graph/emit"
	"github.com/finchat-labs/finflow/session"
	"github.com/finchat-labs/finflow/workflow/agent"
)

const (
	// DefaultPoolSize is the number of worker goroutines shared by all
	// concurrent requests.
	DefaultPoolSize = 8

	// DefaultRequestTimeout bounds one Orchestrate call end to end.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultDataTimeout is tight: a quote lookup that takes longer than
	// this is effectively down and the retry budget is better spent on a
	// fresh attempt.
	DefaultDataTimeout = 10 * time.Second

	// DefaultVisualizationTimeout covers chart rendering.
	DefaultVisualizationTimeout = 20 * time.Second

	// DefaultNewsTopK caps the news items returned to the user.
	DefaultNewsTopK = 10

	// DefaultKnowledgeTopK caps retrieved reference passages.
	DefaultKnowledgeTopK = 3

	// DefaultKnowledgeMinScore is the similarity floor under which a
	// retrieved passage is considered noise.
	DefaultKnowledgeMinScore = 0.3

	// DefaultDedupThreshold is the title similarity at which two news
	// items count as the same story.
	DefaultDedupThreshold = 0.9

	// DefaultHistoryDepth is how many stored turns feed query analysis.
	DefaultHistoryDepth = 5
)

// Config collects everything tunable about a Workflow. Construct it through
// New and the With* options; New starts from defaultConfig.
type Config struct {
	// PoolSize is the worker goroutine count of the shared agent pool.
	PoolSize int

	// AgentTimeouts bounds individual agent dispatches by worker name.
	// Agents without an entry run under the executor's fallback timeout.
	AgentTimeouts map[string]time.Duration

	// RequestTimeout bounds a whole request including planning, agent
	// execution, and response synthesis.
	RequestTimeout time.Duration

	// MaxHops is forwarded to the engine's hop guard.
	MaxHops int

	// NewsTopK and NewsMinScore tune the news agent's ranking cut.
	NewsTopK     int
	NewsMinScore float64

	// KnowledgeTopK and KnowledgeMinScore tune retrieval for the knowledge
	// and analysis agents.
	KnowledgeTopK     int
	KnowledgeMinScore float64

	// DedupThreshold tunes news title deduplication.
	DedupThreshold float64

	// Thresholds maps confidence scores to letter grades.
	Thresholds Thresholds

	// Retry applies to transient collaborator failures inside agents.
	Retry agent.Retry

	// HistoryDepth is how many recent session turns the analyzer sees.
	// Zero disables history loading.
	HistoryDepth int

	// Emitter receives engine events. Defaults to the null emitter.
	Emitter emit.Emitter

	// Metrics, when set, records engine runs to Prometheus.
	Metrics *graph.Metrics

	// Sessions persists conversation turns. Nil runs without history.
	Sessions session.Store
}

func defaultConfig() Config {
	return Config{
		PoolSize: DefaultPoolSize,
		AgentTimeouts: map[string]time.Duration{
			agent.NameData:          DefaultDataTimeout,
			agent.NameVisualization: DefaultVisualizationTimeout,
		},
		RequestTimeout:    DefaultRequestTimeout,
		MaxHops:           graph.DefaultMaxHops,
		NewsTopK:          DefaultNewsTopK,
		KnowledgeTopK:     DefaultKnowledgeTopK,
		KnowledgeMinScore: DefaultKnowledgeMinScore,
		DedupThreshold:    DefaultDedupThreshold,
		Thresholds:        DefaultThresholds,
		HistoryDepth:      DefaultHistoryDepth,
		Emitter:           emit.NewNullEmitter(),
	}
}

// Option configures a Workflow at construction time.
type Option func(*Config) error

// WithWorkerPoolSize sets how many agent dispatches run concurrently across
// all requests.
func WithWorkerPoolSize(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("worker pool size must be positive, got %d", n)
		}
		cfg.PoolSize = n
		return nil
	}
}

// WithAgentTimeout overrides the dispatch budget for one worker agent.
func WithAgentTimeout(name string, d time.Duration) Option {
	return func(cfg *Config) error {
		if name == "" {
			return fmt.Errorf("agent name for timeout cannot be empty")
		}
		if d <= 0 {
			return fmt.Errorf("agent timeout must be positive, got %v", d)
		}
		cfg.AgentTimeouts[name] = d
		return nil
	}
}

// WithRequestTimeout bounds one request end to end.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %v", d)
		}
		cfg.RequestTimeout = d
		return nil
	}
}

// WithMaxHops overrides the engine hop guard.
func WithMaxHops(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("max hops must be positive, got %d", n)
		}
		cfg.MaxHops = n
		return nil
	}
}

// WithNewsTopK caps how many news items a request returns.
func WithNewsTopK(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("news topK must be positive, got %d", n)
		}
		cfg.NewsTopK = n
		return nil
	}
}

// WithNewsMinScore filters archive hits below the similarity floor.
func WithNewsMinScore(v float64) Option {
	return func(cfg *Config) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("news min score must be in [0,1], got %v", v)
		}
		cfg.NewsMinScore = v
		return nil
	}
}

// WithKnowledgeTopK caps retrieved reference passages.
func WithKnowledgeTopK(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("knowledge topK must be positive, got %d", n)
		}
		cfg.KnowledgeTopK = n
		return nil
	}
}

// WithKnowledgeMinScore sets the similarity floor for usable passages.
func WithKnowledgeMinScore(v float64) Option {
	return func(cfg *Config) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("knowledge min score must be in [0,1], got %v", v)
		}
		cfg.KnowledgeMinScore = v
		return nil
	}
}

// WithDedupThreshold sets the news title similarity at which two items
// collapse into one.
func WithDedupThreshold(v float64) Option {
	return func(cfg *Config) error {
		if v <= 0 || v > 1 {
			return fmt.Errorf("dedup threshold must be in (0,1], got %v", v)
		}
		cfg.DedupThreshold = v
		return nil
	}
}

// WithThresholds replaces the grade boundaries. Values must descend from A's
// floor to D's and stay inside (0,1].
func WithThresholds(t Thresholds) Option {
	return func(cfg *Config) error {
		if t[0] > 1 || t[3] <= 0 {
			return fmt.Errorf("thresholds must stay in (0,1], got %v", t)
		}
		for i := 0; i < 3; i++ {
			if t[i] <= t[i+1] {
				return fmt.Errorf("thresholds must strictly descend, got %v", t)
			}
		}
		cfg.Thresholds = t
		return nil
	}
}

// WithRetry tunes the backoff applied to transient collaborator failures.
func WithRetry(r agent.Retry) Option {
	return func(cfg *Config) error {
		if r.Max < 0 {
			return fmt.Errorf("retry max must not be negative, got %d", r.Max)
		}
		cfg.Retry = r
		return nil
	}
}

// WithHistoryDepth sets how many stored turns feed the analyzer. Zero
// disables history.
func WithHistoryDepth(n int) Option {
	return func(cfg *Config) error {
		if n < 0 {
			return fmt.Errorf("history depth must not be negative, got %d", n)
		}
		cfg.HistoryDepth = n
		return nil
	}
}

// WithEmitter streams engine events to the given emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *Config) error {
		if e == nil {
			return fmt.Errorf("emitter cannot be nil")
		}
		cfg.Emitter = e
		return nil
	}
}

// WithMetrics records engine runs to the given Prometheus collector.
func WithMetrics(m *graph.Metrics) Option {
	return func(cfg *Config) error {
		cfg.Metrics = m
		return nil
	}
}

// WithSessionStore persists conversation turns and feeds recent history to
// query analysis.
func WithSessionStore(s session.Store) Option {
	return func(cfg *Config) error {
		cfg.Sessions = s
		return nil
	}
}
