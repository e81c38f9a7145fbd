package capability

import "errors"

// ErrSymbolUnlisted reports a quote request for a symbol the data source
// does not list. Wrap it so errors.Is still matches:
//
//	fmt.Errorf("quote %s: %w", symbol, capability.ErrSymbolUnlisted)
var ErrSymbolUnlisted = errors.New("symbol not listed")

// Fault is a collaborator failure tagged as transient or permanent, so the
// retry policy can act on it without matching error strings.
type Fault struct {
	// Transient marks failures worth retrying: rate limits, timeouts,
	// dropped connections. Permanent failures (auth, bad request, safety
	// refusal) stay false.
	Transient bool

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (f *Fault) Error() string {
	if f.Cause != nil {
		return f.Message + ": " + f.Cause.Error()
	}
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// TransientFault wraps err as a retryable failure.
func TransientFault(message string, err error) *Fault {
	return &Fault{Transient: true, Message: message, Cause: err}
}

// PermanentFault wraps err as a failure retrying cannot fix.
func PermanentFault(message string, err error) *Fault {
	return &Fault{Message: message, Cause: err}
}
