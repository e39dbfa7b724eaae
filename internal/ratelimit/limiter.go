package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/institutovalente/registry-bridge/internal/domain"
	"go.uber.org/zap"
)

// Limiter gates how many deliveries a single user identity may trigger inside
// the rate window.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Policy decides what happens when the limiter's backing store is
// unavailable. Fail-closed surfaces a rate-limit error to the caller;
// fail-open lets the dispatch through and logs the incident.
type Policy string

const (
	FailClosed Policy = "fail_closed"
	FailOpen   Policy = "fail_open"
)

func (p Policy) IsValid() bool {
	return p == FailClosed || p == FailOpen
}

func ParsePolicyFromString(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid rate limit policy %q", s)
	}
	return p, nil
}

var _ Limiter = (*PolicyLimiter)(nil)

// PolicyLimiter wraps a Limiter and applies the configured failure policy to
// backing-store errors, so callers always get a consistent answer instead of
// a silently inconsistent one.
type PolicyLimiter struct {
	inner  Limiter
	policy Policy
	logger *zap.Logger
}

func NewPolicyLimiter(inner Limiter, policy Policy, logger *zap.Logger) (*PolicyLimiter, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner limiter is required")
	}
	if !policy.IsValid() {
		policy = FailClosed
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PolicyLimiter{
		inner:  inner,
		policy: policy,
		logger: logger,
	}, nil
}

func (l *PolicyLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	allowed, err := l.inner.Allow(ctx, userID)
	if err == nil {
		return allowed, nil
	}

	if l.policy == FailOpen {
		l.logger.Warn("rate limiter store unavailable, failing open",
			zap.String("userId", userID),
			zap.Error(err),
		)
		return true, nil
	}

	return false, fmt.Errorf("%w: rate limiter unavailable: %v", domain.ErrRateLimited, err)
}
