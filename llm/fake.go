package llm

import "github.com/finchat-labs/finflow/capability"

// Fake is a scripted Provider for tests: capability.FakeLM with an
// identity. Tests that only need a LanguageModel can use FakeLM directly.
type Fake struct {
	capability.FakeLM
}

// Name returns "fake".
func (f *Fake) Name() string { return "fake" }

var _ Provider = (*Fake)(nil)
