// Package llm adapts hosted language model APIs (OpenAI, Anthropic, Google
// Gemini) to the capability.LanguageModel interface.
//
// Every adapter classifies API failures into capability.Fault values so the
// retry policy upstream can tell rate limits and server hiccups apart from
// bad credentials, without matching provider-specific error strings itself.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/finchat-labs/finflow/capability"
)

// Provider is a language model with an identity, for logging and usage
// attribution.
type Provider interface {
	capability.LanguageModel
	Name() string
}

// Default models per provider. Constructors accept overrides.
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultGoogleModel    = "gemini-2.0-flash-exp"
)

// FromEnv builds a provider from whichever API key the environment carries,
// preferring Gemini, then OpenAI, then Anthropic. Each provider uses its
// default model; construct one directly to pick another.
func FromEnv(ctx context.Context) (Provider, error) {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		return NewGoogle(ctx, key, DefaultGoogleModel)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return NewOpenAI(key, DefaultOpenAIModel)
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return NewAnthropic(key, DefaultAnthropicModel)
	}
	return nil, errors.New("no API key found: set GOOGLE_API_KEY, OPENAI_API_KEY, or ANTHROPIC_API_KEY")
}

// classifyAPIError maps a provider API error onto a capability.Fault.
//
// Context errors pass through untouched so cancellation keeps its identity.
// Rate limits, server errors, and network trouble come back transient;
// authentication and quota failures come back permanent, as does anything
// unrecognized. The matching is on error text because the SDKs do not share
// a structured error surface.
func classifyAPIError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "429"),
		strings.Contains(lower, "too many requests"):
		return capability.TransientFault(provider+" rate limited", err)

	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "billing"):
		return capability.PermanentFault(provider+" quota exhausted", err)

	case strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "incorrect api key"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "403"),
		strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "authentication"),
		strings.Contains(lower, "permission"):
		return capability.PermanentFault(provider+" authentication failed", err)

	case strings.Contains(lower, "500"),
		strings.Contains(lower, "502"),
		strings.Contains(lower, "503"),
		strings.Contains(lower, "504"),
		strings.Contains(lower, "internal server error"),
		strings.Contains(lower, "bad gateway"),
		strings.Contains(lower, "service unavailable"),
		strings.Contains(lower, "overloaded"):
		return capability.TransientFault(provider+" server error", err)

	case strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "reset by peer"):
		return capability.TransientFault(provider+" network error", err)
	}

	return capability.PermanentFault(fmt.Sprintf("%s request failed", provider), err)
}
