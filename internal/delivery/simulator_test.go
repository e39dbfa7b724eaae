package delivery

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestSimulator(cfg SimulatorConfig) *Simulator {
	sim := NewSimulator(cfg, zap.NewNop())
	sim.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return sim
}

func TestSimulatorForcedOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome       Outcome
		wantRetryable bool
	}{
		{OutcomeNetworkError, true},
		{OutcomeServerError, true},
		{OutcomeValidationError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			t.Parallel()

			sim := newTestSimulator(SimulatorConfig{Enabled: true, MockResponses: true})
			if err := sim.ForceOutcome(tt.outcome); err != nil {
				t.Fatalf("ForceOutcome() error = %v", err)
			}

			_, err := sim.Deliver(context.Background(), testConfig("https://sandbox.instituto.example"), testPayload())
			if err == nil {
				t.Fatal("Deliver() expected error")
			}

			var deliveryErr *Error
			if !errors.As(err, &deliveryErr) {
				t.Fatalf("error type = %T, want *Error, same shape as HTTPClient", err)
			}
			if !strings.Contains(deliveryErr.Message, "MOCK") {
				t.Fatalf("message = %q, must identify the simulated source", deliveryErr.Message)
			}
			if IsRetryable(err) != tt.wantRetryable {
				t.Fatalf("IsRetryable() = %v, want %v", IsRetryable(err), tt.wantRetryable)
			}
		})
	}
}

func TestSimulatorForcedSuccess(t *testing.T) {
	t.Parallel()

	sim := newTestSimulator(SimulatorConfig{Enabled: true, MockResponses: true, FailureRate: 1})
	if err := sim.ForceOutcome(OutcomeSuccess); err != nil {
		t.Fatalf("ForceOutcome() error = %v", err)
	}

	result, err := sim.Deliver(context.Background(), testConfig("https://sandbox.instituto.example"), testPayload())
	if err != nil {
		t.Fatalf("Deliver() unexpected error: %v", err)
	}
	if !strings.Contains(result.Body, "MOCK") {
		t.Fatalf("body = %q, must identify the simulated source", result.Body)
	}
}

func TestSimulatorFailureRate(t *testing.T) {
	t.Parallel()

	sim := newTestSimulator(SimulatorConfig{Enabled: true, MockResponses: true, FailureRate: 1})
	sim.randFloat = func() float64 { return 0.5 }

	if _, err := sim.Deliver(context.Background(), testConfig("https://sandbox.instituto.example"), testPayload()); err == nil {
		t.Fatal("failureRate=1 must always fail")
	}

	sim.Configure(SimulatorConfig{Enabled: true, MockResponses: true, FailureRate: 0})
	if _, err := sim.Deliver(context.Background(), testConfig("https://sandbox.instituto.example"), testPayload()); err != nil {
		t.Fatalf("failureRate=0 must always succeed, got %v", err)
	}
}

func TestSimulatorDisabled(t *testing.T) {
	t.Parallel()

	sim := newTestSimulator(SimulatorConfig{Enabled: false})
	_, err := sim.Deliver(context.Background(), testConfig("https://sandbox.instituto.example"), testPayload())
	if err == nil {
		t.Fatal("disabled simulator must refuse deliveries")
	}
	if IsRetryable(err) {
		t.Fatal("disabled simulator error must not be retryable")
	}
}

func TestSimulatorClearForcedOutcome(t *testing.T) {
	t.Parallel()

	sim := newTestSimulator(SimulatorConfig{Enabled: true, MockResponses: true, FailureRate: 0})
	if err := sim.ForceOutcome(OutcomeNetworkError); err != nil {
		t.Fatalf("ForceOutcome() error = %v", err)
	}
	sim.ClearForcedOutcome()

	if _, err := sim.Deliver(context.Background(), testConfig("https://sandbox.instituto.example"), testPayload()); err != nil {
		t.Fatalf("Deliver() after clear should roll the failure rate, got %v", err)
	}
}

func TestSimulatorRejectsUnknownOutcome(t *testing.T) {
	t.Parallel()

	sim := newTestSimulator(SimulatorConfig{Enabled: true, MockResponses: true})
	if err := sim.ForceOutcome("teapot"); err == nil {
		t.Fatal("ForceOutcome() expected error for unknown outcome")
	}
}

func TestGeneratedRegistrationsAreValid(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		payload := GenerateRegistration(rng)
		if err := payload.Validate(); err != nil {
			t.Fatalf("generated registration %d invalid: %v", i, err)
		}
	}
}

func TestGeneratedInvalidRegistrationsFailValidation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		payload := GenerateInvalidRegistration(rng)
		if err := payload.Validate(); err == nil {
			t.Fatalf("invalid registration %d unexpectedly passed: %+v", i, payload)
		}
	}
}
