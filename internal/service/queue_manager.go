package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/institutovalente/registry-bridge/internal/delivery"
	"github.com/institutovalente/registry-bridge/internal/domain"
	"github.com/institutovalente/registry-bridge/internal/observability"
	"github.com/institutovalente/registry-bridge/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultScanInterval   = 30 * time.Second
	defaultScanLimit      = 50
	defaultConcurrency    = 4
	defaultStaleThreshold = 5 * time.Minute
)

// QueueStats is the operational view exposed to callers.
type QueueStats struct {
	TotalItems      int64
	ReadyToProcess  int64
	FailedItems     int64
	AverageWaitTime time.Duration
}

// QueueManager owns the retry queue: it claims due attempt records, re-runs
// delivery through a bounded worker pool, and retires records whose attempts
// are exhausted. A periodic recovery sweep reclassifies pending rows
// abandoned by a crash.
type QueueManager struct {
	attempts       repository.AttemptRepository
	configs        repository.ConfigRepository
	client         delivery.Client
	logger         *zap.Logger
	metrics        *observability.Metrics
	concurrency    int
	scanInterval   time.Duration
	scanLimit      int
	staleThreshold time.Duration
	now            func() time.Time
}

type QueueManagerOptions struct {
	Concurrency    int
	ScanInterval   time.Duration
	ScanLimit      int
	StaleThreshold time.Duration
}

func NewQueueManager(
	attempts repository.AttemptRepository,
	configs repository.ConfigRepository,
	client delivery.Client,
	opts QueueManagerOptions,
	logger *zap.Logger,
) (*QueueManager, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config repository is required")
	}
	if client == nil {
		return nil, fmt.Errorf("delivery client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	scanInterval := opts.ScanInterval
	if scanInterval <= 0 {
		scanInterval = defaultScanInterval
	}
	scanLimit := opts.ScanLimit
	if scanLimit < 1 {
		scanLimit = defaultScanLimit
	}
	staleThreshold := opts.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = defaultStaleThreshold
	}

	return &QueueManager{
		attempts:       attempts,
		configs:        configs,
		client:         client,
		logger:         logger,
		concurrency:    concurrency,
		scanInterval:   scanInterval,
		scanLimit:      scanLimit,
		staleThreshold: staleThreshold,
		now:            time.Now,
	}, nil
}

func (m *QueueManager) SetMetrics(metrics *observability.Metrics) {
	if m == nil {
		return
	}
	m.metrics = metrics
}

// Start runs the periodic queue pass until context cancellation.
func (m *QueueManager) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Process already-due retries before the first ticker edge.
	if err := m.ProcessNow(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("initial queue pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.ProcessNow(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("queue pass failed", zap.Error(err))
			}
		}
	}
}

// ProcessNow runs one full queue pass: recover stale pending rows, claim due
// retries, and re-dispatch them through the worker pool.
func (m *QueueManager) ProcessNow(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	now := m.now().UTC()

	reclaimed, err := m.attempts.ReclaimStale(ctx, now.Add(-m.staleThreshold))
	if err != nil {
		m.logger.Error("stale pending recovery failed", zap.Error(err))
	} else if reclaimed > 0 {
		m.logger.Warn("reclaimed stale pending attempts", zap.Int64("count", reclaimed))
	}

	claimed, err := m.attempts.ClaimDue(ctx, now, m.scanLimit)
	if err != nil {
		return fmt.Errorf("failed to claim due retries: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	cfg, err := m.configs.GetActive(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		// Without an active config nothing can be delivered; push the claimed
		// rows back so they are retried once an operator fixes the config.
		m.releaseClaimed(ctx, claimed, msgConfigNotFound)
		return fmt.Errorf("%w: %s", domain.ErrConfig, msgConfigNotFound)
	}
	if err != nil {
		m.releaseClaimed(ctx, claimed, "config lookup failed")
		return fmt.Errorf("failed to load integration config: %w", err)
	}

	m.logger.Info("processing retry queue",
		zap.Int("claimed", len(claimed)),
		zap.Int("concurrency", m.concurrency),
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i := range claimed {
		record := claimed[i]
		g.Go(func() error {
			m.metrics.IncWorkerInFlight()
			defer m.metrics.DecWorkerInFlight()

			m.processRecord(groupCtx, *cfg, &record)
			return nil
		})
	}

	return g.Wait()
}

// processRecord re-runs delivery for one claimed record. The claim already
// bumped attempt_count, so the record carries the number of the attempt being
// made.
func (m *QueueManager) processRecord(ctx context.Context, cfg domain.IntegrationConfig, record *domain.AttemptRecord) {
	log := m.logger.With(
		zap.String("logId", record.ID),
		zap.String("userId", record.UserID),
		zap.Int("attempt", record.AttemptCount),
	)

	sendStart := m.now()
	result, sendErr := m.client.Deliver(ctx, cfg, record.Payload)
	m.metrics.ObserveDeliveryDuration(m.now().Sub(sendStart))

	if sendErr == nil {
		body := ""
		if result != nil {
			body = result.Body
		}
		if err := m.attempts.MarkSuccess(ctx, record.ID, body); err != nil {
			log.Error("failed to mark retried attempt success", zap.Error(err))
			return
		}
		m.metrics.IncDeliverySucceeded()
		log.Info("retried registration delivered")
		return
	}

	retryable := delivery.IsRetryable(sendErr)
	exhausted := record.AttemptCount >= cfg.RetryAttempts

	if retryable && !exhausted {
		nextEligibleAt := m.now().UTC().Add(RetryDelay(cfg.RetryDelay, record.AttemptCount))
		if err := m.attempts.MarkRetry(ctx, record.ID, sendErr.Error(), nextEligibleAt); err != nil {
			log.Error("failed to reschedule retry", zap.Error(err))
			return
		}
		m.metrics.IncRetryScheduled()
		log.Warn("retry failed, rescheduled",
			zap.Time("nextEligibleAt", nextEligibleAt),
			zap.Error(sendErr),
		)
		return
	}

	if err := m.attempts.MarkFailed(ctx, record.ID, sendErr.Error()); err != nil {
		log.Error("failed to mark retried attempt failed", zap.Error(err))
		return
	}
	reason := "permanent_error"
	if retryable {
		reason = "retry_exhausted"
	}
	m.metrics.IncDeliveryFailed(reason)
	log.Warn("retry failed permanently",
		zap.String("reason", reason),
		zap.Error(sendErr),
	)
}

// releaseClaimed puts claimed records back into retry state after a pass-level
// failure, so the claim does not strand them in pending. No delivery happened
// for these rows, so the release also reverts the attempt_count bump the claim
// applied; an outage between claiming and delivering must not consume retry
// budget.
func (m *QueueManager) releaseClaimed(ctx context.Context, claimed []domain.AttemptRecord, reason string) {
	nextEligibleAt := m.now().UTC().Add(m.scanInterval)
	for i := range claimed {
		if err := m.attempts.Release(ctx, claimed[i].ID, reason, nextEligibleAt); err != nil {
			m.logger.Error("failed to release claimed attempt",
				zap.String("logId", claimed[i].ID),
				zap.Error(err),
			)
		}
	}
}

// Stats returns the current retry-queue snapshot.
func (m *QueueManager) Stats(ctx context.Context) (*QueueStats, error) {
	snapshot, err := m.attempts.QueueSnapshot(ctx, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to read queue snapshot: %w", err)
	}

	m.metrics.SetQueueDepth(snapshot.TotalItems)

	return &QueueStats{
		TotalItems:      snapshot.TotalItems,
		ReadyToProcess:  snapshot.ReadyToProcess,
		FailedItems:     snapshot.FailedItems,
		AverageWaitTime: snapshot.AverageWait,
	}, nil
}
