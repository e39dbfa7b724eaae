package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AuthType selects how the delivery client authenticates against the partner.
type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

func (a AuthType) String() string { return string(a) }

func (a AuthType) IsValid() bool {
	switch a {
	case AuthAPIKey, AuthBearer, AuthBasic:
		return true
	}
	return false
}

func ParseAuthTypeFromString(s string) (AuthType, error) {
	a := AuthType(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: invalid auth type %q", ErrValidation, s)
	}
	return a, nil
}

// HTTPMethod is the verb used for partner dispatch. The partner contract only
// allows POST and PUT.
type HTTPMethod string

const (
	MethodPost HTTPMethod = "POST"
	MethodPut  HTTPMethod = "PUT"
)

func (m HTTPMethod) String() string { return string(m) }

func (m HTTPMethod) IsValid() bool {
	return m == MethodPost || m == MethodPut
}

func ParseHTTPMethodFromString(s string) (HTTPMethod, error) {
	m := HTTPMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid method %q", ErrValidation, s)
	}
	return m, nil
}

// Retry policy bounds from the partner integration contract.
const (
	MinRetryAttempts = 1
	MaxRetryAttempts = 10
	MinRetryDelay    = time.Second
	MaxRetryDelay    = 5 * time.Minute
	MaxEndpointLen   = 500
)

// IntegrationConfig holds the partner endpoint, auth method and retry policy.
// At most one config is active at a time; dispatch resolves it once and passes
// it explicitly through the call chain.
type IntegrationConfig struct {
	ID              string
	Endpoint        string
	SandboxEndpoint string
	Method          HTTPMethod
	AuthType        AuthType
	APIKey          string
	BearerToken     string
	BasicUsername   string
	BasicPassword   string
	IsSandbox       bool
	IsActive        bool
	RetryAttempts   int
	RetryDelay      time.Duration
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TargetEndpoint returns the endpoint dispatch should hit, preferring the
// sandbox endpoint when sandbox mode is on and one is configured.
func (c *IntegrationConfig) TargetEndpoint() string {
	if c.IsSandbox && strings.TrimSpace(c.SandboxEndpoint) != "" {
		return c.SandboxEndpoint
	}
	return c.Endpoint
}

func (c *IntegrationConfig) Validate() error {
	if err := validateEndpoint(c.Endpoint, "endpoint"); err != nil {
		return err
	}
	if strings.TrimSpace(c.SandboxEndpoint) != "" {
		if err := validateEndpoint(c.SandboxEndpoint, "sandbox_endpoint"); err != nil {
			return err
		}
	}
	if !c.Method.IsValid() {
		return fmt.Errorf("%w: invalid method %q", ErrValidation, c.Method)
	}
	if !c.AuthType.IsValid() {
		return fmt.Errorf("%w: invalid auth type %q", ErrValidation, c.AuthType)
	}
	if c.RetryAttempts < MinRetryAttempts || c.RetryAttempts > MaxRetryAttempts {
		return fmt.Errorf("%w: retry_attempts must be between %d and %d", ErrValidation, MinRetryAttempts, MaxRetryAttempts)
	}
	if c.RetryDelay < MinRetryDelay || c.RetryDelay > MaxRetryDelay {
		return fmt.Errorf("%w: retry_delay must be between %s and %s", ErrValidation, MinRetryDelay, MaxRetryDelay)
	}

	switch c.AuthType {
	case AuthAPIKey:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("%w: api_key is required for auth type api_key", ErrValidation)
		}
	case AuthBearer:
		if strings.TrimSpace(c.BearerToken) == "" {
			return fmt.Errorf("%w: bearer_token is required for auth type bearer", ErrValidation)
		}
	case AuthBasic:
		if strings.TrimSpace(c.BasicUsername) == "" || strings.TrimSpace(c.BasicPassword) == "" {
			return fmt.Errorf("%w: basic credentials are required for auth type basic", ErrValidation)
		}
	}

	return nil
}

func validateEndpoint(endpoint string, field string) error {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if len(trimmed) > MaxEndpointLen {
		return fmt.Errorf("%w: %s must have at most %d characters", ErrValidation, field, MaxEndpointLen)
	}
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%w: %s must be a valid http(s) URL", ErrValidation, field)
	}
	return nil
}
