package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/institutovalente/registry-bridge/internal/domain"
	"github.com/institutovalente/registry-bridge/internal/repository"
	"go.uber.org/zap"
)

const defaultStatsCacheTTL = 30 * time.Second

// StatsService aggregates delivery statistics with a short-lived cache so
// dashboard polling does not translate into repeated aggregate queries.
type StatsService struct {
	attempts repository.AttemptRepository
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time

	mu       sync.Mutex
	cached   *domain.IntegrationStats
	cachedAt time.Time
}

func NewStatsService(attempts repository.AttemptRepository, cacheTTL time.Duration, logger *zap.Logger) (*StatsService, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultStatsCacheTTL
	}

	return &StatsService{
		attempts: attempts,
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}, nil
}

// Stats returns the aggregated delivery statistics. Results are cached for
// the configured TTL; concurrent callers within the window share one query.
func (s *StatsService) Stats(ctx context.Context) (*domain.IntegrationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != nil && now.Sub(s.cachedAt) < s.cacheTTL {
		stats := *s.cached
		return &stats, nil
	}

	stats, err := s.compute(ctx, now)
	if err != nil {
		return nil, err
	}

	s.cached = stats
	s.cachedAt = now

	out := *stats
	return &out, nil
}

// Invalidate drops the cached snapshot so the next read recomputes.
func (s *StatsService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

func (s *StatsService) compute(ctx context.Context, now time.Time) (*domain.IntegrationStats, error) {
	allTime, err := s.attempts.CountByStatus(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	since := now.UTC().Add(-24 * time.Hour)
	last24h, err := s.attempts.CountByStatus(ctx, &since)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent attempts: %w", err)
	}

	var total, successful, failed, pending int64
	for status, count := range allTime {
		total += count
		switch status {
		case domain.AttemptSuccess:
			successful += count
		case domain.AttemptFailed:
			failed += count
		case domain.AttemptPending, domain.AttemptRetry:
			pending += count
		}
	}

	var recentTotal, recentSuccessful int64
	for status, count := range last24h {
		recentTotal += count
		if status == domain.AttemptSuccess {
			recentSuccessful += count
		}
	}

	return &domain.IntegrationStats{
		TotalAttempts:      total,
		SuccessfulSends:    successful,
		FailedSends:        failed,
		PendingRetries:     pending,
		SuccessRate:        domain.SuccessRate(successful, total),
		Last24hAttempts:    recentTotal,
		Last24hSuccessRate: domain.SuccessRate(recentSuccessful, recentTotal),
	}, nil
}
