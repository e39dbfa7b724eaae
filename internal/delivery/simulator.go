package delivery

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/institutovalente/registry-bridge/internal/domain"
	"go.uber.org/zap"
)

// Outcome names a simulated partner response class.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeNetworkError    Outcome = "network_error"
	OutcomeServerError     Outcome = "server_error"
	OutcomeValidationError Outcome = "validation_error"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeNetworkError, OutcomeServerError, OutcomeValidationError:
		return true
	}
	return false
}

// SimulatorConfig controls the simulated partner behaviour.
type SimulatorConfig struct {
	Enabled       bool
	MockResponses bool
	Delay         time.Duration
	FailureRate   float64
	LogRequests   bool
}

var _ Client = (*Simulator)(nil)
var _ Prober = (*Simulator)(nil)

// Simulator is a swappable delivery client that reproduces partner failure
// modes deterministically. Its results have the same shape as HTTPClient
// results so the retry classifier exercises identically in tests and in
// sandbox mode.
type Simulator struct {
	mu     sync.Mutex
	cfg    SimulatorConfig
	forced Outcome

	logger    *zap.Logger
	randFloat func() float64
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewSimulator(cfg SimulatorConfig, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Simulator{
		cfg:       cfg,
		logger:    logger,
		randFloat: rand.Float64,
		sleep:     sleepWithContext,
	}
}

// Configure replaces the simulator configuration.
func (s *Simulator) Configure(cfg SimulatorConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	if cfg.LogRequests {
		s.logger.Info("simulator configured",
			zap.Bool("mockResponses", cfg.MockResponses),
			zap.Duration("delay", cfg.Delay),
			zap.Float64("failureRate", cfg.FailureRate),
		)
	}
}

// ForceOutcome pins the next deliveries to a fixed response class until
// ClearForcedOutcome is called.
func (s *Simulator) ForceOutcome(outcome Outcome) error {
	if !outcome.IsValid() {
		return fmt.Errorf("unknown simulated outcome %q", outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = outcome
	return nil
}

func (s *Simulator) ClearForcedOutcome() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = ""
}

func (s *Simulator) Deliver(ctx context.Context, cfg domain.IntegrationConfig, payload domain.RegistrationPayload) (*Result, error) {
	s.mu.Lock()
	simCfg := s.cfg
	outcome := s.forced
	s.mu.Unlock()

	if !simCfg.Enabled || !simCfg.MockResponses {
		return nil, &Error{
			Kind:      KindConfig,
			Message:   "simulator is not enabled (MOCK)",
			Retryable: false,
		}
	}

	if simCfg.Delay > 0 {
		if err := s.sleep(ctx, simCfg.Delay); err != nil {
			return nil, &Error{
				Kind:      KindNetwork,
				Message:   "simulated delivery canceled (MOCK)",
				Retryable: false,
				Cause:     err,
			}
		}
	}

	if outcome == "" {
		if s.randFloat() < simCfg.FailureRate {
			outcome = OutcomeServerError
		} else {
			outcome = OutcomeSuccess
		}
	}

	if simCfg.LogRequests {
		s.logger.Info("simulated partner call",
			zap.String("outcome", string(outcome)),
			zap.String("endpoint", cfg.TargetEndpoint()),
			zap.String("email", maskEmail(payload.Email)),
		)
	}

	switch outcome {
	case OutcomeSuccess:
		return &Result{
			StatusCode: http.StatusCreated,
			Body:       `{"id":"mock-instituto-123","status":"created","message":"Usuário cadastrado com sucesso no Instituto (MOCK)"}`,
		}, nil
	case OutcomeNetworkError:
		return nil, &Error{
			Kind:      KindNetwork,
			Message:   "Erro de conexão com a API do Instituto (MOCK)",
			Retryable: true,
		}
	case OutcomeValidationError:
		return nil, &Error{
			Kind:       KindValidation,
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "Dados inválidos: CPF já cadastrado (MOCK)",
			Retryable:  false,
		}
	default:
		return nil, &Error{
			Kind:       KindServer,
			StatusCode: http.StatusInternalServerError,
			Message:    "Erro interno do servidor do Instituto (MOCK)",
			Retryable:  true,
		}
	}
}

// Probe reports reachability the same way the simulator answers deliveries.
func (s *Simulator) Probe(ctx context.Context, cfg domain.IntegrationConfig) error {
	s.mu.Lock()
	simCfg := s.cfg
	outcome := s.forced
	s.mu.Unlock()

	if !simCfg.Enabled || !simCfg.MockResponses {
		return fmt.Errorf("simulator is not enabled (MOCK)")
	}
	if outcome == OutcomeNetworkError || outcome == OutcomeServerError {
		return &Error{
			Kind:      KindNetwork,
			Message:   "simulated partner unreachable (MOCK)",
			Retryable: true,
		}
	}
	return nil
}

func maskEmail(email string) string {
	if len(email) <= 2 {
		return "***"
	}
	return email[:2] + "***"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
