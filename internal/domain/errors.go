package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrRateLimited           = errors.New("rate limited")
	ErrInsufficientCredit    = errors.New("insufficient credit")
	ErrCredentialUnavailable = errors.New("credential unavailable")
	ErrProviderTransient     = errors.New("provider transient failure")
	ErrProviderTerminal      = errors.New("provider terminal failure")
	ErrPersistence           = errors.New("persistence failure")
	ErrNoJob                 = errors.New("no job available")
	ErrAlreadyResolved       = errors.New("reservation already resolved")
	ErrNoPendingUnit         = errors.New("no pending unit")
	ErrUnavailable           = errors.New("temporarily unavailable")
)

// RateLimitError reports a rejected admission with the time until the oldest
// counted event leaves the window.
type RateLimitError struct {
	Subject    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): retry after %s", e.Subject, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds the countdown up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// InsufficientCreditError carries the spendable balance at rejection time.
type InsufficientCreditError struct {
	UserID    string
	Required  int64
	Available int64
	Threshold int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

// ProviderErrorClass distinguishes provider failures for retry decisions.
type ProviderErrorClass string

const (
	ProviderClassTransient     ProviderErrorClass = "transient"
	ProviderClassValidation    ProviderErrorClass = "validation"
	ProviderClassContentPolicy ProviderErrorClass = "content_policy"
	ProviderClassAuth          ProviderErrorClass = "auth"
)

// ProviderError is a classified failure returned by the generation provider.
type ProviderError struct {
	Class      ProviderErrorClass
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Class, e.Message)
}

func (e *ProviderError) Unwrap() []error {
	sentinel := ErrProviderTerminal
	if e.Class == ProviderClassTransient {
		sentinel = ErrProviderTransient
	}
	if e.Err != nil {
		return []error{sentinel, e.Err}
	}
	return []error{sentinel}
}

// Retryable reports whether the failure may succeed on another attempt.
func (e *ProviderError) Retryable() bool {
	return e.Class == ProviderClassTransient
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderTransient)
}

// IsAuthFailure reports whether err is an authentication-class provider failure.
func IsAuthFailure(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Class == ProviderClassAuth
}

// PersistenceError wraps a datastore failure that happened after the provider
// produced a valid result. The raw result is kept so it can be returned.
type PersistenceError struct {
	Result GenerationResult
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist result %s: %v", e.Result.URL, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
