package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/institutovalente/registry-bridge/internal/domain"
)

func testConfig(endpoint string) domain.IntegrationConfig {
	return domain.IntegrationConfig{
		ID:            "cfg-1",
		Endpoint:      endpoint,
		Method:        domain.MethodPost,
		AuthType:      domain.AuthAPIKey,
		APIKey:        "key-123",
		IsActive:      true,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Second,
	}
}

func testPayload() domain.RegistrationPayload {
	return domain.RegistrationPayload{
		Name:      "Maria da Silva",
		Email:     "maria@exemplo.com",
		Phone:     "11999998888",
		CPF:       "52998224725",
		Origin:    domain.OriginVisaoItinerante,
		Consent:   true,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHTTPClientDeliverSuccess(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotAPIKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotAPIKey = r.Header.Get("X-API-Key")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"instituto-1"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)
	result, err := client.Deliver(context.Background(), testConfig(server.URL), testPayload())
	if err != nil {
		t.Fatalf("Deliver() unexpected error: %v", err)
	}

	if result.StatusCode != http.StatusCreated {
		t.Fatalf("StatusCode = %d, want %d", result.StatusCode, http.StatusCreated)
	}
	if gotAPIKey != "key-123" {
		t.Fatalf("X-API-Key = %q, want key-123", gotAPIKey)
	}
	if gotBody["nome"] != "Maria da Silva" {
		t.Fatalf("nome = %v, want Maria da Silva", gotBody["nome"])
	}
	if gotBody["cpf"] != "52998224725" {
		t.Fatalf("cpf = %v", gotBody["cpf"])
	}
	if gotBody["consentimento_data_sharing"] != true {
		t.Fatalf("consentimento_data_sharing = %v, want true", gotBody["consentimento_data_sharing"])
	}
}

func TestHTTPClientDeliverUsesConfiguredMethod(t *testing.T) {
	t.Parallel()

	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Method = domain.MethodPut

	client := NewHTTPClient(5 * time.Second)
	if _, err := client.Deliver(context.Background(), cfg, testPayload()); err != nil {
		t.Fatalf("Deliver() unexpected error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("method = %s, want PUT", gotMethod)
	}
}

func TestHTTPClientDeliverSandboxRouting(t *testing.T) {
	t.Parallel()

	production := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("production endpoint must not be called in sandbox mode")
	}))
	defer production.Close()

	var sandboxHits int
	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sandboxHits++
		w.WriteHeader(http.StatusOK)
	}))
	defer sandbox.Close()

	cfg := testConfig(production.URL)
	cfg.SandboxEndpoint = sandbox.URL
	cfg.IsSandbox = true

	client := NewHTTPClient(5 * time.Second)
	if _, err := client.Deliver(context.Background(), cfg, testPayload()); err != nil {
		t.Fatalf("Deliver() unexpected error: %v", err)
	}
	if sandboxHits != 1 {
		t.Fatalf("sandbox hits = %d, want 1", sandboxHits)
	}
}

func TestHTTPClientDeliverAuthSchemes(t *testing.T) {
	t.Parallel()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)

	cfg := testConfig(server.URL)
	cfg.AuthType = domain.AuthBearer
	cfg.BearerToken = "tok-1"
	if _, err := client.Deliver(context.Background(), cfg, testPayload()); err != nil {
		t.Fatalf("Deliver() bearer error: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q, want Bearer tok-1", gotAuth)
	}

	cfg = testConfig(server.URL)
	cfg.AuthType = domain.AuthBasic
	cfg.BasicUsername = "user"
	cfg.BasicPassword = "pass"
	if _, err := client.Deliver(context.Background(), cfg, testPayload()); err != nil {
		t.Fatalf("Deliver() basic error: %v", err)
	}
	// base64("user:pass")
	if gotAuth != "Basic dXNlcjpwYXNz" {
		t.Fatalf("Authorization = %q, want Basic dXNlcjpwYXNz", gotAuth)
	}
}

func TestHTTPClientDeliverServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)
	_, err := client.Deliver(context.Background(), testConfig(server.URL), testPayload())
	if err == nil {
		t.Fatal("Deliver() expected error")
	}

	var deliveryErr *Error
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if deliveryErr.Kind != KindServer {
		t.Fatalf("Kind = %s, want server_error", deliveryErr.Kind)
	}
	if deliveryErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("StatusCode = %d, want 503", deliveryErr.StatusCode)
	}
	if !IsRetryable(err) {
		t.Fatal("5xx must be retryable")
	}
}

func TestHTTPClientDeliverRejectionIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)
	_, err := client.Deliver(context.Background(), testConfig(server.URL), testPayload())
	if err == nil {
		t.Fatal("Deliver() expected error")
	}
	if IsRetryable(err) {
		t.Fatal("4xx rejection must not be retryable")
	}

	var deliveryErr *Error
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if deliveryErr.Kind != KindValidation {
		t.Fatalf("Kind = %s, want validation_error", deliveryErr.Kind)
	}
}

func TestHTTPClientDeliverNetworkErrorIsRetryable(t *testing.T) {
	t.Parallel()

	// Closed server forces connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := NewHTTPClient(time.Second)
	_, err := client.Deliver(context.Background(), testConfig(endpoint), testPayload())
	if err == nil {
		t.Fatal("Deliver() expected error")
	}
	if !IsRetryable(err) {
		t.Fatal("transport failure must be retryable")
	}

	var deliveryErr *Error
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if deliveryErr.Kind != KindNetwork {
		t.Fatalf("Kind = %s, want network_error", deliveryErr.Kind)
	}
}

func TestHTTPClientDeliverInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://instituto.example")
	cfg.RetryAttempts = 0

	client := NewHTTPClient(time.Second)
	_, err := client.Deliver(context.Background(), cfg, testPayload())
	if err == nil {
		t.Fatal("Deliver() expected error")
	}
	if IsRetryable(err) {
		t.Fatal("config errors must not be retryable")
	}
}

func TestHTTPClientProbe(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)
	if err := client.Probe(context.Background(), testConfig(server.URL)); err != nil {
		t.Fatalf("Probe() unexpected error: %v", err)
	}
	if gotPath != "/health" {
		t.Fatalf("probe path = %q, want /health", gotPath)
	}
}

func TestHTTPClientProbeFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)
	if err := client.Probe(context.Background(), testConfig(server.URL)); err == nil {
		t.Fatal("Probe() expected error")
	}
}
