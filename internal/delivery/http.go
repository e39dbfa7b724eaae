package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/institutovalente/registry-bridge/internal/domain"
)

const (
	defaultDeliveryTimeout = 30 * time.Second
	probeTimeout           = 10 * time.Second
)

var _ Client = (*HTTPClient)(nil)
var _ Prober = (*HTTPClient)(nil)

// HTTPClient delivers registrations to the partner API over HTTP.
type HTTPClient struct {
	client *resty.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &HTTPClient{client: client}
}

func NewHTTPClientWithClient(client *resty.Client) (*HTTPClient, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDeliveryTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPClient{client: client}, nil
}

// Deliver executes one partner call using the given config. Transport
// failures come back as retryable network errors; HTTP failures are
// classified by status.
func (c *HTTPClient) Deliver(ctx context.Context, cfg domain.IntegrationConfig, payload domain.RegistrationPayload) (*Result, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("delivery client is not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, &Error{
			Kind:      KindConfig,
			Message:   "invalid integration config",
			Retryable: false,
			Cause:     err,
		}
	}

	request := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(authHeaders(cfg)).
		SetBody(payload)

	response, err := request.Execute(cfg.Method.String(), cfg.TargetEndpoint())
	if err != nil {
		return nil, &Error{
			Kind:      KindNetwork,
			Message:   "Erro de conexão com a API do Instituto",
			Retryable: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &Error{
			Kind:      KindNetwork,
			Message:   "partner returned empty response",
			Retryable: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Result{
			StatusCode: statusCode,
			Body:       responseBody,
		}, nil
	}

	return nil, &Error{
		Kind:       KindFromStatus(statusCode),
		StatusCode: statusCode,
		Message:    statusErrorMessage(statusCode, responseBody),
		Retryable:  retryableStatus(statusCode),
	}
}

// Probe issues a GET against the target endpoint health path to report
// partner reachability. It never writes an attempt record.
func (c *HTTPClient) Probe(ctx context.Context, cfg domain.IntegrationConfig) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("delivery client is not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	endpoint := strings.TrimRight(cfg.TargetEndpoint(), "/") + "/health"
	response, err := c.client.R().
		SetContext(probeCtx).
		SetHeaders(authHeaders(cfg)).
		Get(endpoint)
	if err != nil {
		return &Error{
			Kind:      KindNetwork,
			Message:   "partner health probe failed",
			Retryable: true,
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &Error{
		Kind:       KindFromStatus(statusCode),
		StatusCode: statusCode,
		Message:    statusErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Retryable:  retryableStatus(statusCode),
	}
}

func authHeaders(cfg domain.IntegrationConfig) map[string]string {
	headers := make(map[string]string, 1)

	switch cfg.AuthType {
	case domain.AuthAPIKey:
		headers["X-API-Key"] = cfg.APIKey
	case domain.AuthBearer:
		headers["Authorization"] = "Bearer " + cfg.BearerToken
	case domain.AuthBasic:
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.BasicUsername + ":" + cfg.BasicPassword))
		headers["Authorization"] = "Basic " + credentials
	}

	return headers
}

func statusErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("partner returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
