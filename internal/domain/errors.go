package domain

import "errors"

var (
	// ErrValidation marks payload or parameter validation failures. Never retryable.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups of missing records.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks state transitions rejected because the record moved on.
	ErrConflict = errors.New("conflict")

	// ErrRateLimited marks per-user dispatch budget exhaustion. Not retryable
	// within the current window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrConfig marks a missing or inactive integration config. Operator-actionable,
	// never retryable.
	ErrConfig = errors.New("integration config error")
)
