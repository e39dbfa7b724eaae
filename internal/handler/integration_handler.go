package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/institutovalente/registry-bridge/internal/domain"
	"github.com/institutovalente/registry-bridge/internal/repository"
	"github.com/institutovalente/registry-bridge/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type DispatchService interface {
	SendUserData(ctx context.Context, payload domain.RegistrationPayload, userID string) (*service.SendResult, error)
	GetAttempt(ctx context.Context, id string) (*domain.AttemptRecord, error)
	ListAttempts(ctx context.Context, params repository.ListAttemptsParams) ([]domain.AttemptRecord, int64, error)
}

type QueueService interface {
	ProcessNow(ctx context.Context) error
	Stats(ctx context.Context) (*service.QueueStats, error)
}

type StatsProvider interface {
	Stats(ctx context.Context) (*domain.IntegrationStats, error)
}

type IntegrationHandler struct {
	dispatch DispatchService
	queue    QueueService
	stats    StatsProvider
}

func NewIntegrationHandler(dispatch DispatchService, queue QueueService, stats StatsProvider) (*IntegrationHandler, error) {
	if dispatch == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("queue service is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("stats provider is required")
	}
	return &IntegrationHandler{dispatch: dispatch, queue: queue, stats: stats}, nil
}

func RegisterIntegrationRoutes(router fiber.Router, dispatch DispatchService, queue QueueService, stats StatsProvider) error {
	h, err := NewIntegrationHandler(dispatch, queue, stats)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/registrations", h.CreateRegistration)
	v1.Get("/integration/stats", h.GetStats)
	v1.Get("/integration/queue/stats", h.GetQueueStats)
	v1.Post("/integration/queue/process", h.ProcessQueue)
	v1.Get("/integration/attempts", h.ListAttempts)
	v1.Get("/integration/attempts/:id", h.GetAttempt)

	return nil
}

type createRegistrationRequest struct {
	UserID       string `json:"user_id"`
	Registration struct {
		Name      string    `json:"nome"`
		Email     string    `json:"email"`
		Phone     string    `json:"telefone"`
		CPF       string    `json:"cpf"`
		Origin    string    `json:"origem_cadastro"`
		Consent   bool      `json:"consentimento_data_sharing"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"registration"`
}

type sendResultResponse struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	LogID   string `json:"log_id"`
}

type attemptResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Status         string     `json:"status"`
	Response       *string    `json:"response,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	AttemptCount   int        `json:"attempt_count"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type listAttemptsResponse struct {
	Data []attemptResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type queueStatsResponse struct {
	TotalItems         int64   `json:"total_items"`
	ReadyToProcess     int64   `json:"ready_to_process"`
	FailedItems        int64   `json:"failed_items"`
	AverageWaitSeconds float64 `json:"average_wait_seconds"`
}

func (h *IntegrationHandler) CreateRegistration(c *fiber.Ctx) error {
	var req createRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	userID := strings.TrimSpace(c.Get("X-User-ID"))
	if userID == "" {
		userID = strings.TrimSpace(req.UserID)
	}

	payload := domain.RegistrationPayload{
		Name:      req.Registration.Name,
		Email:     req.Registration.Email,
		Phone:     req.Registration.Phone,
		CPF:       req.Registration.CPF,
		Origin:    req.Registration.Origin,
		Consent:   req.Registration.Consent,
		CreatedAt: req.Registration.CreatedAt,
	}
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now().UTC()
	}

	result, err := h.dispatch.SendUserData(c.Context(), payload, userID)
	if err != nil {
		return toHTTPError(err)
	}

	status := fiber.StatusCreated
	if !result.Success {
		// The attempt is recorded and possibly queued for retry; the partner
		// has not accepted it yet.
		status = fiber.StatusAccepted
	}

	return c.Status(status).JSON(sendResultResponse{
		Success: result.Success,
		Data:    result.Data,
		Error:   result.Error,
		LogID:   result.LogID,
	})
}

func (h *IntegrationHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.stats.Stats(c.Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *IntegrationHandler) GetQueueStats(c *fiber.Ctx) error {
	stats, err := h.queue.Stats(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(queueStatsResponse{
		TotalItems:         stats.TotalItems,
		ReadyToProcess:     stats.ReadyToProcess,
		FailedItems:        stats.FailedItems,
		AverageWaitSeconds: stats.AverageWaitTime.Seconds(),
	})
}

func (h *IntegrationHandler) ProcessQueue(c *fiber.Ctx) error {
	if err := h.queue.ProcessNow(c.Context()); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "processed",
	})
}

func (h *IntegrationHandler) GetAttempt(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	attempt, err := h.dispatch.GetAttempt(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toAttemptResponse(attempt))
}

func (h *IntegrationHandler) ListAttempts(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	attempts, total, err := h.dispatch.ListAttempts(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]attemptResponse, 0, len(attempts))
	for i := range attempts {
		responses = append(responses, toAttemptResponse(&attempts[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listAttemptsResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListAttemptsParams, error) {
	params := repository.ListAttemptsParams{
		UserID:   strings.TrimSpace(c.Query("userId")),
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListAttemptsParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListAttemptsParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseAttemptStatusFromString(rawStatus)
		if err != nil {
			return repository.ListAttemptsParams{}, err
		}
		params.Status = &status
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListAttemptsParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListAttemptsParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toAttemptResponse(a *domain.AttemptRecord) attemptResponse {
	if a == nil {
		return attemptResponse{}
	}

	return attemptResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		Status:         a.Status.String(),
		Response:       a.Response,
		ErrorMessage:   a.ErrorMessage,
		AttemptCount:   a.AttemptCount,
		NextEligibleAt: a.NextEligibleAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
