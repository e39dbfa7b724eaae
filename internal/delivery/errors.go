package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a delivery failure.
type Kind string

const (
	KindNetwork    Kind = "network_error"
	KindAuth       Kind = "auth_error"
	KindValidation Kind = "validation_error"
	KindRateLimit  Kind = "rate_limit"
	KindServer     Kind = "server_error"
	KindConfig     Kind = "config_error"
)

// Error classifies partner call failures as retryable/permanent.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("delivery %s", e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsRetryable is the single retry decision for the whole pipeline: it reports
// whether a failed delivery may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var deliveryErr *Error
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// KindFromStatus maps a partner HTTP status to a failure kind.
func KindFromStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindAuth
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return KindValidation
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimit
	case statusCode >= http.StatusInternalServerError:
		return KindServer
	}
	return KindNetwork
}

// retryableStatus reports whether a partner HTTP status is worth retrying:
// 429 and all 5xx, nothing else.
func retryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		(statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
