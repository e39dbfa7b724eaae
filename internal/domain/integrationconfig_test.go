package domain

import (
	"errors"
	"testing"
	"time"
)

func validConfig() IntegrationConfig {
	return IntegrationConfig{
		ID:              "cfg-1",
		Endpoint:        "https://api.instituto.example/users",
		SandboxEndpoint: "https://sandbox.instituto.example/users",
		Method:          MethodPost,
		AuthType:        AuthAPIKey,
		APIKey:          "key-123",
		IsSandbox:       false,
		IsActive:        true,
		RetryAttempts:   3,
		RetryDelay:      5 * time.Second,
	}
}

func TestIntegrationConfigValidateOK(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestIntegrationConfigValidateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*IntegrationConfig)
	}{
		{"empty endpoint", func(c *IntegrationConfig) { c.Endpoint = "" }},
		{"bad endpoint", func(c *IntegrationConfig) { c.Endpoint = "not a url" }},
		{"bad scheme", func(c *IntegrationConfig) { c.Endpoint = "ftp://instituto.example" }},
		{"bad sandbox endpoint", func(c *IntegrationConfig) { c.SandboxEndpoint = "::::" }},
		{"bad method", func(c *IntegrationConfig) { c.Method = "DELETE" }},
		{"bad auth type", func(c *IntegrationConfig) { c.AuthType = "oauth" }},
		{"retry attempts too low", func(c *IntegrationConfig) { c.RetryAttempts = 0 }},
		{"retry attempts too high", func(c *IntegrationConfig) { c.RetryAttempts = 11 }},
		{"retry delay too low", func(c *IntegrationConfig) { c.RetryDelay = 500 * time.Millisecond }},
		{"retry delay too high", func(c *IntegrationConfig) { c.RetryDelay = 10 * time.Minute }},
		{"api key missing", func(c *IntegrationConfig) { c.APIKey = "" }},
		{"bearer token missing", func(c *IntegrationConfig) {
			c.AuthType = AuthBearer
			c.BearerToken = ""
		}},
		{"basic credentials missing", func(c *IntegrationConfig) {
			c.AuthType = AuthBasic
			c.BasicUsername = "user"
			c.BasicPassword = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestIntegrationConfigTargetEndpoint(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.TargetEndpoint(); got != cfg.Endpoint {
		t.Fatalf("TargetEndpoint() = %q, want production endpoint", got)
	}

	cfg.IsSandbox = true
	if got := cfg.TargetEndpoint(); got != cfg.SandboxEndpoint {
		t.Fatalf("TargetEndpoint() = %q, want sandbox endpoint", got)
	}

	cfg.SandboxEndpoint = ""
	if got := cfg.TargetEndpoint(); got != cfg.Endpoint {
		t.Fatalf("TargetEndpoint() = %q, want fallback to production endpoint", got)
	}
}

func TestAttemptStatusTerminal(t *testing.T) {
	t.Parallel()

	if !AttemptSuccess.IsTerminal() || !AttemptFailed.IsTerminal() {
		t.Fatal("success and failed must be terminal")
	}
	if AttemptPending.IsTerminal() || AttemptRetry.IsTerminal() {
		t.Fatal("pending and retry must not be terminal")
	}
}

func TestAttemptRecordReady(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	rec := AttemptRecord{Status: AttemptRetry, NextEligibleAt: &past}
	if !rec.Ready(now) {
		t.Fatal("record with past next_eligible_at should be ready")
	}

	rec.NextEligibleAt = &soon
	if rec.Ready(now) {
		t.Fatal("record with future next_eligible_at should not be ready")
	}

	rec.Status = AttemptPending
	rec.NextEligibleAt = &past
	if rec.Ready(now) {
		t.Fatal("non-retry record should never be ready")
	}
}

func TestParseAttemptStatusFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseAttemptStatusFromString("  RETRY ")
	if err != nil {
		t.Fatalf("ParseAttemptStatusFromString() error = %v", err)
	}
	if got != AttemptRetry {
		t.Fatalf("status = %s, want retry", got)
	}

	if _, err := ParseAttemptStatusFromString("bogus"); !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
