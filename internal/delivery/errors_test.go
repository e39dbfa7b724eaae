package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
		{"network error", &Error{Kind: KindNetwork, Retryable: true}, true},
		{"server 500", &Error{Kind: KindServer, StatusCode: 500, Retryable: true}, true},
		{"rate limit 429", &Error{Kind: KindRateLimit, StatusCode: 429, Retryable: true}, true},
		{"validation 422", &Error{Kind: KindValidation, StatusCode: 422, Retryable: false}, false},
		{"auth 401", &Error{Kind: KindAuth, StatusCode: 401, Retryable: false}, false},
		{"config error", &Error{Kind: KindConfig, Retryable: false}, false},
		{"wrapped delivery error", fmt.Errorf("dispatch: %w", &Error{Kind: KindServer, Retryable: true}), true},
		{"net timeout", fmt.Errorf("dial: %w", timeoutNetError{timeout: true}), true},
		{"net non-timeout", fmt.Errorf("dial: %w", timeoutNetError{timeout: false}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutNetError struct {
	timeout bool
}

func (e timeoutNetError) Error() string   { return "net: connection failed" }
func (e timeoutNetError) Timeout() bool   { return e.timeout }
func (e timeoutNetError) Temporary() bool { return false }

func TestKindFromStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
		{http.StatusNotFound, KindNetwork},
	}

	for _, tt := range tests {
		if got := KindFromStatus(tt.status); got != tt.want {
			t.Errorf("KindFromStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestRetryableStatus(t *testing.T) {
	t.Parallel()

	retryable := []int{429, 500, 502, 503, 599}
	for _, status := range retryable {
		if !retryableStatus(status) {
			t.Errorf("retryableStatus(%d) = false, want true", status)
		}
	}

	permanent := []int{400, 401, 403, 404, 422}
	for _, status := range permanent {
		if retryableStatus(status) {
			t.Errorf("retryableStatus(%d) = true, want false", status)
		}
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := &Error{
		Kind:       KindServer,
		StatusCode: 503,
		Message:    "maintenance",
		Cause:      errors.New("upstream down"),
	}

	got := err.Error()
	for _, want := range []string{"server_error", "status=503", "maintenance", "upstream down"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Error() = %q, missing %q", got, want)
		}
	}
}
