package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}

func TestRedisRateLimiterWindow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newRedisRateLimiter(rdb, 2, time.Minute, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third call inside the window should be rejected")
	}

	now = now.Add(61 * time.Second)
	allowed, err = limiter.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("call after the window slid should be allowed")
	}
}

func TestRedisRateLimiterPerUserIsolation(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newRedisRateLimiter(rdb, 1, time.Minute, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Allow(user-1) error = %v", err)
	}
	if !allowed {
		t.Fatal("user-1 first request should be allowed")
	}

	allowed, err = limiter.Allow(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("Allow(user-2) error = %v", err)
	}
	if !allowed {
		t.Fatal("user-2 should not be affected by user-1's budget")
	}

	allowed, err = limiter.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Allow(user-1) error = %v", err)
	}
	if allowed {
		t.Fatal("user-1 second request should be rejected")
	}
}

func TestRedisRateLimiterConcurrentBudget(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	limiter, err := NewRedisRateLimiter(rdb, 10, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := limiter.Allow(context.Background(), "user-1")
			if err != nil {
				t.Errorf("Allow() error = %v", err)
				return
			}
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowedCount != 10 {
		t.Fatalf("allowed = %d, want exactly 10", allowedCount)
	}
}

func TestRedisRateLimiterRejectsEmptyUser(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	limiter, err := NewRedisRateLimiter(rdb, 1, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestNewRedisRateLimiterRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, 1, time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
}
