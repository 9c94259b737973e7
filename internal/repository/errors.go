package repository

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Handlers map a failure to a status by testing these with
// errors.Is; everything that matches none of them is an internal error.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrNotFound     = errors.New("not found")
	ErrGone         = errors.New("gone")
)

// Account errors.
var (
	ErrMissingField      = fmt.Errorf("%w: missing required field", ErrValidation)
	ErrWeakPassword      = fmt.Errorf("%w: password too short", ErrValidation)
	ErrDuplicateUsername = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrDuplicateEmail    = fmt.Errorf("%w: email already registered", ErrConflict)

	// ErrInvalidCredentials is the only authentication failure callers need
	// to surface. The two specific causes wrap it so telemetry can still
	// tell them apart.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrAccountNotFound    = fmt.Errorf("%w: unknown account", ErrInvalidCredentials)
	ErrBadCredential      = fmt.Errorf("%w: wrong password", ErrInvalidCredentials)
)

// Session errors.
var (
	ErrSessionNotFound = fmt.Errorf("%w: session not found", ErrUnauthorized)
	ErrSessionExpired  = fmt.Errorf("%w: session expired", ErrUnauthorized)
)

// Resource errors.
var (
	ErrInvalidName      = fmt.Errorf("%w: invalid resource name", ErrValidation)
	ErrInvalidTTL       = fmt.Errorf("%w: invalid ttl", ErrValidation)
	ErrInvalidUpload    = fmt.Errorf("%w: invalid upload", ErrValidation)
	ErrDuplicateName    = fmt.Errorf("%w: resource name already taken", ErrConflict)
	ErrResourceNotFound = fmt.Errorf("%w: resource not found", ErrNotFound)
	ErrResourceExpired  = fmt.Errorf("%w: resource expired", ErrGone)
	ErrPayloadMissing   = fmt.Errorf("%w: resource payload missing", ErrNotFound)
)

// RateLimitedError carries how long the caller should wait before retrying.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Action, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) hold for every RateLimitedError.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }
