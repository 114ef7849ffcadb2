package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure for the fallback orchestrator.
type Kind int

const (
	// KindTerminal means the provider cannot serve this request now: bad
	// symbol, malformed response, timeout, or a non-rate-limit HTTP failure.
	// The orchestrator moves to the next provider immediately.
	KindTerminal Kind = iota

	// KindRateLimited means the provider throttled us. The orchestrator
	// backs off and retries the same provider within its retry budget
	// before falling through.
	KindRateLimited
)

func (k Kind) String() string {
	if k == KindRateLimited {
		return "rate_limited"
	}
	return "terminal"
}

// Error is a classified failure from one provider.
type Error struct {
	Provider string
	Kind     Kind
	Status   int // HTTP status when applicable, 0 otherwise
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Terminal wraps err as a terminal failure for the named provider.
func Terminal(provider string, status int, err error) *Error {
	return &Error{Provider: provider, Kind: KindTerminal, Status: status, Err: err}
}

// RateLimited wraps err as a retryable rate-limit failure.
func RateLimited(provider string, status int, err error) *Error {
	return &Error{Provider: provider, Kind: KindRateLimited, Status: status, Err: err}
}

// IsRateLimited reports whether err is a provider rate-limit failure.
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindRateLimited
}
