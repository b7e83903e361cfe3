package shipment

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the shipment domain. Callback classification hinges
// on the first two: ErrInvalidCallback is permanent (retrying the same
// payload fails verification again), ErrCommunication is transient and
// drives the retry queue.
var (
	// ErrInvalidCallback indicates the callback failed authenticity or
	// shape verification.
	ErrInvalidCallback = errors.New("invalid callback")

	// ErrCommunication indicates a transient failure reaching the provider.
	ErrCommunication = errors.New("provider communication failed")

	// ErrShipmentNotFound indicates the referenced shipment does not exist.
	ErrShipmentNotFound = errors.New("shipment not found")

	// ErrProviderNotFound indicates the requested provider slug is not registered.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrOrderNotFound indicates the originating order could not be resolved.
	ErrOrderNotFound = errors.New("order not found")

	// ErrStaleShipment indicates an optimistic-concurrency conflict on save.
	ErrStaleShipment = errors.New("shipment version conflict")
)

// InvalidTransitionError reports an illegal state change, naming the
// current state, the attempted event, and the allowed source states.
type InvalidTransitionError struct {
	Current Status
	Event   Event
	Allowed []Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("cannot %s from %s", e.Event, e.Current)
	}
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot %s from %s (allowed from: %s)",
		e.Event, e.Current, strings.Join(allowed, ", "))
}

// ProviderError represents a provider-domain error that is neither a
// verification failure nor a communication failure.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ProviderError.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// WithCause adds a cause to the error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithRetryable marks the error as retryable.
func (e *ProviderError) WithRetryable(retryable bool) *ProviderError {
	e.Retryable = retryable
	return e
}

// IsRetryable returns true if the error represents a transient condition
// worth replaying through the retry queue.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrCommunication) {
		return true
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}
