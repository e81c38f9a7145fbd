package llm

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantFault     bool
	}{
		{name: "rate limit", err: errors.New("429 Too Many Requests"), wantTransient: true, wantFault: true},
		{name: "server error", err: errors.New("503 Service Unavailable"), wantTransient: true, wantFault: true},
		{name: "overloaded", err: errors.New("Overloaded"), wantTransient: true, wantFault: true},
		{name: "network", err: errors.New("dial tcp: connection refused"), wantTransient: true, wantFault: true},
		{name: "auth", err: errors.New("401 Unauthorized: invalid API key"), wantTransient: false, wantFault: true},
		{name: "quota", err: errors.New("insufficient_quota: billing hard limit reached"), wantTransient: false, wantFault: true},
		{name: "unknown", err: errors.New("model does not exist"), wantTransient: false, wantFault: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyAPIError("test", tt.err)

			var fault *capability.Fault
			if errors.As(got, &fault) != tt.wantFault {
				t.Fatalf("classifyAPIError(%v) = %v, fault = %v", tt.err, got, tt.wantFault)
			}
			if fault != nil && fault.Transient != tt.wantTransient {
				t.Errorf("Transient = %v, want %v", fault.Transient, tt.wantTransient)
			}
			if fault != nil && !errors.Is(got, tt.err) {
				t.Error("fault should wrap the original error")
			}
		})
	}

	t.Run("context errors pass through", func(t *testing.T) {
		for _, err := range []error{context.Canceled, context.DeadlineExceeded} {
			if got := classifyAPIError("test", err); got != err {
				t.Errorf("classifyAPIError(%v) = %v, want identity", err, got)
			}
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		if got := classifyAPIError("test", nil); got != nil {
			t.Errorf("classifyAPIError(nil) = %v", got)
		}
	})
}

func TestConstructorValidation(t *testing.T) {
	if _, err := NewOpenAI("", "gpt-4o"); err == nil {
		t.Error("NewOpenAI should reject an empty API key")
	}
	if _, err := NewAnthropic("", "claude-3-5-sonnet-20241022"); err == nil {
		t.Error("NewAnthropic should reject an empty API key")
	}
	if _, err := NewGoogle(context.Background(), "", ""); err == nil {
		t.Error("NewGoogle should reject an empty API key")
	}
}

func TestProviderNames(t *testing.T) {
	openai, err := NewOpenAI("sk-test", "")
	if err != nil {
		t.Fatal(err)
	}
	if openai.Name() != "openai" {
		t.Errorf("Name() = %q", openai.Name())
	}

	anthropic, err := NewAnthropic("sk-ant-test", "")
	if err != nil {
		t.Fatal(err)
	}
	if anthropic.Name() != "anthropic" {
		t.Errorf("Name() = %q", anthropic.Name())
	}

	fake := &Fake{}
	if fake.Name() != "fake" {
		t.Errorf("Name() = %q", fake.Name())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	t.Run("no keys", func(t *testing.T) {
		if _, err := FromEnv(context.Background()); err == nil {
			t.Error("FromEnv should fail without any API key")
		}
	})

	t.Run("openai key selects openai", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		provider, err := FromEnv(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if provider.Name() != "openai" {
			t.Errorf("provider = %q, want openai", provider.Name())
		}
	})
}

func TestMeter(t *testing.T) {
	t.Run("accumulates by caller", func(t *testing.T) {
		meter := NewMeter()
		meter.Record("analyzer", capability.Usage{Prompt: 100, Completion: 20, Total: 120})
		meter.Record("analyzer", capability.Usage{Prompt: 50, Completion: 10, Total: 60})
		meter.Record("combiner", capability.Usage{Prompt: 200, Completion: 80, Total: 280})

		total := meter.Total()
		if total.Total != 460 || total.Prompt != 350 || total.Completion != 110 {
			t.Errorf("Total() = %+v", total)
		}
		if meter.Calls() != 3 {
			t.Errorf("Calls() = %d, want 3", meter.Calls())
		}

		byCaller := meter.ByCaller()
		if byCaller["analyzer"].Total != 180 {
			t.Errorf("analyzer total = %d, want 180", byCaller["analyzer"].Total)
		}
		if byCaller["combiner"].Total != 280 {
			t.Errorf("combiner total = %d, want 280", byCaller["combiner"].Total)
		}
	})

	t.Run("nil receiver is inert", func(t *testing.T) {
		var meter *Meter
		meter.Record("x", capability.Usage{Total: 10})
		if meter.Total().Total != 0 || meter.Calls() != 0 || meter.ByCaller() != nil {
			t.Error("nil meter should record nothing")
		}
	})

	t.Run("concurrent recording", func(t *testing.T) {
		meter := NewMeter()
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					meter.Record("agent", capability.Usage{Total: 1})
				}
			}()
		}
		wg.Wait()

		if meter.Total().Total != 200 {
			t.Errorf("Total() = %d, want 200", meter.Total().Total)
		}
	})
}

func TestOpenAICompleteIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	provider, err := NewOpenAI(apiKey, "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := provider.Complete(ctx, capability.Prompt{
		User:      "Reply with the single word: pong",
		MaxTokens: 10,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out.Text == "" {
		t.Error("Complete() returned empty text")
	}
	if out.Usage.Total == 0 {
		t.Error("Complete() returned no usage")
	}
}
