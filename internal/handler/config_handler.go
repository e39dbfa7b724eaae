package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/institutovalente/registry-bridge/internal/delivery"
	"github.com/institutovalente/registry-bridge/internal/domain"
)

const secretPlaceholder = "********"

type ConfigStore interface {
	GetActive(ctx context.Context) (*domain.IntegrationConfig, error)
	Save(ctx context.Context, cfg *domain.IntegrationConfig) error
}

type ConfigHandler struct {
	store  ConfigStore
	prober delivery.Prober
}

func NewConfigHandler(store ConfigStore, prober delivery.Prober) (*ConfigHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("config store is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	return &ConfigHandler{store: store, prober: prober}, nil
}

func RegisterConfigRoutes(router fiber.Router, store ConfigStore, prober delivery.Prober) error {
	h, err := NewConfigHandler(store, prober)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/integration/config", h.GetConfig)
	v1.Put("/integration/config", h.PutConfig)
	v1.Post("/integration/config/test", h.TestConfig)

	return nil
}

type putConfigRequest struct {
	Endpoint        string `json:"endpoint"`
	SandboxEndpoint string `json:"sandbox_endpoint"`
	Method          string `json:"method"`
	AuthType        string `json:"auth_type"`
	APIKey          string `json:"api_key"`
	BearerToken     string `json:"bearer_token"`
	BasicUsername   string `json:"basic_username"`
	BasicPassword   string `json:"basic_password"`
	IsSandbox       bool   `json:"is_sandbox"`
	IsActive        bool   `json:"is_active"`
	RetryAttempts   int    `json:"retry_attempts"`
	RetryDelayMs    int64  `json:"retry_delay_ms"`
}

// configResponse never carries credential values, only whether they are set.
type configResponse struct {
	ID              string    `json:"id"`
	Endpoint        string    `json:"endpoint"`
	SandboxEndpoint string    `json:"sandbox_endpoint,omitempty"`
	Method          string    `json:"method"`
	AuthType        string    `json:"auth_type"`
	APIKey          string    `json:"api_key,omitempty"`
	BearerToken     string    `json:"bearer_token,omitempty"`
	BasicUsername   string    `json:"basic_username,omitempty"`
	BasicPassword   string    `json:"basic_password,omitempty"`
	IsSandbox       bool      `json:"is_sandbox"`
	IsActive        bool      `json:"is_active"`
	RetryAttempts   int       `json:"retry_attempts"`
	RetryDelayMs    int64     `json:"retry_delay_ms"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	cfg, err := h.store.GetActive(c.Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toConfigResponse(cfg))
}

func (h *ConfigHandler) PutConfig(c *fiber.Ctx) error {
	var req putConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToDomainConfig(req)
	if err != nil {
		return toHTTPError(err)
	}

	// Upsert semantics: a matching active row keeps its identity so history
	// stays attached to it.
	if existing, getErr := h.store.GetActive(c.Context()); getErr == nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	if err := h.store.Save(c.Context(), cfg); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toConfigResponse(cfg))
}

func (h *ConfigHandler) TestConfig(c *fiber.Ctx) error {
	cfg, err := h.store.GetActive(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.prober.Probe(c.Context(), *cfg); err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"reachable": false,
			"error":     err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reachable": true,
	})
}

func requestToDomainConfig(req putConfigRequest) (*domain.IntegrationConfig, error) {
	method, err := domain.ParseHTTPMethodFromString(req.Method)
	if err != nil {
		return nil, err
	}
	authType, err := domain.ParseAuthTypeFromString(req.AuthType)
	if err != nil {
		return nil, err
	}

	cfg := &domain.IntegrationConfig{
		Endpoint:        strings.TrimSpace(req.Endpoint),
		SandboxEndpoint: strings.TrimSpace(req.SandboxEndpoint),
		Method:          method,
		AuthType:        authType,
		APIKey:          strings.TrimSpace(req.APIKey),
		BearerToken:     strings.TrimSpace(req.BearerToken),
		BasicUsername:   strings.TrimSpace(req.BasicUsername),
		BasicPassword:   req.BasicPassword,
		IsSandbox:       req.IsSandbox,
		IsActive:        req.IsActive,
		RetryAttempts:   req.RetryAttempts,
		RetryDelay:      time.Duration(req.RetryDelayMs) * time.Millisecond,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toConfigResponse(cfg *domain.IntegrationConfig) configResponse {
	if cfg == nil {
		return configResponse{}
	}

	resp := configResponse{
		ID:              cfg.ID,
		Endpoint:        cfg.Endpoint,
		SandboxEndpoint: cfg.SandboxEndpoint,
		Method:          cfg.Method.String(),
		AuthType:        cfg.AuthType.String(),
		BasicUsername:   cfg.BasicUsername,
		IsSandbox:       cfg.IsSandbox,
		IsActive:        cfg.IsActive,
		RetryAttempts:   cfg.RetryAttempts,
		RetryDelayMs:    cfg.RetryDelay.Milliseconds(),
		CreatedAt:       cfg.CreatedAt,
		UpdatedAt:       cfg.UpdatedAt,
	}

	if cfg.APIKey != "" {
		resp.APIKey = secretPlaceholder
	}
	if cfg.BearerToken != "" {
		resp.BearerToken = secretPlaceholder
	}
	if cfg.BasicPassword != "" {
		resp.BasicPassword = secretPlaceholder
	}

	return resp
}
