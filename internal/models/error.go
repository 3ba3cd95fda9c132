package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication taxonomy. InvalidCredentials deliberately covers both
	// unknown email and wrong password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not active")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrStoreUnavailable   = errors.New("backing store unavailable")
	ErrValidationFailed   = errors.New("validation failed")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// LockoutError reports an active lockout and how long until it lifts.
// Unwraps to ErrAccountLocked so callers match with errors.Is.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account is temporarily locked, retry in %ds", int(e.RetryAfter.Seconds()))
}

func (e *LockoutError) Unwrap() error { return ErrAccountLocked }

// RateLimitError reports an exhausted rate-limit window.
// Unwraps to ErrRateLimitExceeded.
type RateLimitError struct {
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", int(e.RetryAfter.Seconds()))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }
