package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxRequests = 5
	defaultWindow      = time.Minute
)

var _ Limiter = (*MemoryLimiter)(nil)

// MemoryLimiter is an in-process sliding-window limiter. It serves sandbox
// deployments and tests where no Redis is available.
type MemoryLimiter struct {
	mu          sync.Mutex
	requests    map[string][]time.Time
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	if maxRequests <= 0 {
		maxRequests = defaultMaxRequests
	}
	if window <= 0 {
		window = defaultWindow
	}

	return &MemoryLimiter{
		requests:    make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID string) (bool, error) {
	key := strings.TrimSpace(userID)
	if key == "" {
		return false, fmt.Errorf("user id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.requests[key][:0]
	for _, ts := range l.requests[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxRequests {
		l.requests[key] = kept
		return false, nil
	}

	l.requests[key] = append(kept, now)
	return true, nil
}

// Cleanup drops identities whose whole window has expired and returns how
// many were removed.
func (l *MemoryLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for key, timestamps := range l.requests {
		live := false
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.requests, key)
			removed++
		}
	}
	return removed
}
