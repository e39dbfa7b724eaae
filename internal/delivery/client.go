package delivery

import (
	"context"

	"github.com/institutovalente/registry-bridge/internal/domain"
)

// Client is the outbound partner delivery port. The resolved integration
// config is passed explicitly so dispatch never depends on hidden state.
type Client interface {
	Deliver(ctx context.Context, cfg domain.IntegrationConfig, payload domain.RegistrationPayload) (*Result, error)
}

// Prober issues a lightweight reachability check against the partner without
// touching the attempt log.
type Prober interface {
	Probe(ctx context.Context, cfg domain.IntegrationConfig) error
}

// Result stores partner call metadata for audit and persistence.
type Result struct {
	StatusCode int
	Body       string
}
