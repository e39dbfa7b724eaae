package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/institutovalente/registry-bridge/internal/delivery"
	"github.com/institutovalente/registry-bridge/internal/domain"
	"github.com/institutovalente/registry-bridge/internal/observability"
	"github.com/institutovalente/registry-bridge/internal/ratelimit"
	"github.com/institutovalente/registry-bridge/internal/repository"
	"go.uber.org/zap"
)

// User-facing messages kept verbatim from the partner integration contract.
const (
	msgRateLimitExceeded = "Limite de tentativas excedido. Tente novamente mais tarde"
	msgConfigNotFound    = "Configuração da integração não encontrada"
	msgConfigInactive    = "Integração está desativada"
)

// SendResult is the synchronous answer to one sendUserData call. It describes
// only the current attempt; backgrounded retries are observable through the
// stats and queue endpoints.
type SendResult struct {
	Success bool
	Data    string
	Error   string
	LogID   string
}

// IntegrationService owns the synchronous dispatch path: validate, gate,
// deliver once, and absorb retryable failures into the retry queue.
type IntegrationService struct {
	attempts repository.AttemptRepository
	configs  repository.ConfigRepository
	client   delivery.Client
	limiter  ratelimit.Limiter
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewIntegrationService(
	attempts repository.AttemptRepository,
	configs repository.ConfigRepository,
	client delivery.Client,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
) (*IntegrationService, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config repository is required")
	}
	if client == nil {
		return nil, fmt.Errorf("delivery client is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IntegrationService{
		attempts: attempts,
		configs:  configs,
		client:   client,
		limiter:  limiter,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *IntegrationService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SendUserData forwards one registration to the partner. Validation and
// rate-limit rejections resolve at this boundary without touching the attempt
// log or the delivery client; delivery failures are recorded and, when
// retryable, scheduled for background retry.
func (s *IntegrationService) SendUserData(ctx context.Context, payload domain.RegistrationPayload, userID string) (*SendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.metrics.IncRateLimited()
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, msgRateLimitExceeded)
	}

	cfg, err := s.resolveActiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	record := &domain.AttemptRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       domain.AttemptPending,
		Payload:      payload,
		AttemptCount: 1,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}
	if err := s.attempts.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create attempt record: %w", err)
	}

	outcome := s.dispatch(ctx, *cfg, record)
	return outcome, nil
}

// dispatch runs one delivery for the given record and applies the resulting
// state transition. The record's attempt count must already reflect the
// attempt being made.
func (s *IntegrationService) dispatch(ctx context.Context, cfg domain.IntegrationConfig, record *domain.AttemptRecord) *SendResult {
	log := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("logId", record.ID),
		zap.String("userId", record.UserID),
		zap.Int("attempt", record.AttemptCount),
	)

	sendStart := s.now()
	result, sendErr := s.client.Deliver(ctx, cfg, record.Payload)
	s.metrics.ObserveDeliveryDuration(s.now().Sub(sendStart))

	if sendErr == nil {
		body := ""
		if result != nil {
			body = result.Body
		}
		if err := s.attempts.MarkSuccess(ctx, record.ID, body); err != nil {
			log.Error("failed to mark attempt success", zap.Error(err))
		}
		s.metrics.IncDeliverySucceeded()
		log.Info("registration delivered")

		return &SendResult{
			Success: true,
			Data:    body,
			LogID:   record.ID,
		}
	}

	retryable := delivery.IsRetryable(sendErr)
	exhausted := record.AttemptCount >= cfg.RetryAttempts

	if retryable && !exhausted {
		nextEligibleAt := s.now().UTC().Add(RetryDelay(cfg.RetryDelay, record.AttemptCount))
		if err := s.attempts.MarkRetry(ctx, record.ID, sendErr.Error(), nextEligibleAt); err != nil {
			log.Error("failed to schedule retry", zap.Error(err))
		}
		s.metrics.IncRetryScheduled()
		log.Warn("delivery failed, retry scheduled",
			zap.Time("nextEligibleAt", nextEligibleAt),
			zap.Error(sendErr),
		)
	} else {
		if err := s.attempts.MarkFailed(ctx, record.ID, sendErr.Error()); err != nil {
			log.Error("failed to mark attempt failed", zap.Error(err))
		}
		reason := "permanent_error"
		if retryable {
			reason = "retry_exhausted"
		}
		s.metrics.IncDeliveryFailed(reason)
		log.Warn("delivery failed permanently",
			zap.String("reason", reason),
			zap.Error(sendErr),
		)
	}

	return &SendResult{
		Success: false,
		Error:   sendErr.Error(),
		LogID:   record.ID,
	}
}

// resolveActiveConfig loads the single active config once per dispatch so the
// whole call chain sees one consistent configuration.
func (s *IntegrationService) resolveActiveConfig(ctx context.Context) (*domain.IntegrationConfig, error) {
	cfg, err := s.configs.GetActive(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfig, msgConfigNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load integration config: %w", err)
	}
	if !cfg.IsActive {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfig, msgConfigInactive)
	}
	return cfg, nil
}

// GetAttempt exposes a single audit row.
func (s *IntegrationService) GetAttempt(ctx context.Context, id string) (*domain.AttemptRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: attempt id is required", domain.ErrValidation)
	}
	return s.attempts.GetByID(ctx, strings.TrimSpace(id))
}

// ListAttempts exposes the audit log for dashboards.
func (s *IntegrationService) ListAttempts(ctx context.Context, params repository.ListAttemptsParams) ([]domain.AttemptRecord, int64, error) {
	return s.attempts.List(ctx, params)
}
