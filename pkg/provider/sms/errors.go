package sms

import (
	"errors"
	"fmt"
	"time"
)

// ErrKind is the closed classification of provider failures. Every known
// provider error token maps to exactly one kind at the client boundary;
// downstream logic switches on the kind, never on response text.
type ErrKind int

const (
	// KindUpstream covers unknown tokens, malformed payloads and 5xx responses.
	KindUpstream ErrKind = iota
	// KindRateLimited marks throttling; the dispatcher retries these internally.
	KindRateLimited
	// KindInvalidRequest covers bad credentials, unknown actions and bad targets.
	KindInvalidRequest
	// KindNoInventory means the provider has no numbers for the request.
	KindNoInventory
	// KindInsufficientProviderFunds means our provider account ran dry.
	KindInsufficientProviderFunds
	// KindTimeout marks a call that exceeded its deadline.
	KindTimeout
)

// String returns the kind's name.
func (k ErrKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	case KindNoInventory:
		return "no_inventory"
	case KindInsufficientProviderFunds:
		return "insufficient_provider_funds"
	case KindTimeout:
		return "timeout"
	default:
		return "upstream"
	}
}

// ProviderError is the typed error returned for every provider failure.
type ProviderError struct {
	Kind       ErrKind
	Token      string        // the raw provider token, for logs only
	RetryAfter time.Duration // zero unless the provider supplied one
	Severe     bool          // severe throttling; dispatcher opens a global cooldown
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("provider error %s (%s)", e.Kind, e.Token)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider error %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("provider error %s", e.Kind)
}

// Unwrap returns the wrapped transport error, if any.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the dispatcher may retry the request.
func (e *ProviderError) IsRetryable() bool { return e.Kind == KindRateLimited }

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the error kind, defaulting to KindUpstream for foreign errors.
func KindOf(err error) ErrKind {
	if pe, ok := AsProviderError(err); ok {
		return pe.Kind
	}
	return KindUpstream
}
