package domain

import (
	"fmt"
	"strings"
	"time"
)

// AttemptStatus represents the lifecycle state of a delivery attempt record.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
	AttemptRetry   AttemptStatus = "retry"
)

func (s AttemptStatus) String() string { return string(s) }

func (s AttemptStatus) IsValid() bool {
	switch s {
	case AttemptPending, AttemptSuccess, AttemptFailed, AttemptRetry:
		return true
	}
	return false
}

// IsTerminal reports whether the status may never change again.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSuccess || s == AttemptFailed
}

func ParseAttemptStatusFromString(s string) (AttemptStatus, error) {
	st := AttemptStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid attempt status %q", ErrValidation, s)
	}
	return st, nil
}

// AttemptRecord is the durable audit row for one logical registration
// delivery. AttemptCount increases monotonically across retries; a record
// transitions pending -> success, or pending -> retry* -> success|failed, and
// never leaves a terminal state.
type AttemptRecord struct {
	ID             string
	UserID         string
	Status         AttemptStatus
	Payload        RegistrationPayload
	Response       *string
	ErrorMessage   *string
	AttemptCount   int
	NextEligibleAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AttemptsRemaining reports how many attempts are left under the given policy.
func (a *AttemptRecord) AttemptsRemaining(maxAttempts int) int {
	remaining := maxAttempts - a.AttemptCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Ready reports whether a retry record is eligible for re-dispatch.
func (a *AttemptRecord) Ready(now time.Time) bool {
	if a.Status != AttemptRetry {
		return false
	}
	return a.NextEligibleAt == nil || !a.NextEligibleAt.After(now)
}

func (a *AttemptRecord) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: invalid attempt status %q", ErrValidation, a.Status)
	}
	if a.AttemptCount < 1 {
		return fmt.Errorf("%w: attempt_count must be >= 1", ErrValidation)
	}
	return nil
}
