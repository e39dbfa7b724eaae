package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/institutovalente/registry-bridge/internal/domain"
)

// toHTTPError maps domain sentinel errors onto HTTP statuses. Validation
// failures carry the user-facing Portuguese message.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, validationMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, sentinelDetail(err, domain.ErrRateLimited))
	case errors.Is(err, domain.ErrConfig):
		return fiber.NewError(fiber.StatusServiceUnavailable, sentinelDetail(err, domain.ErrConfig))
	default:
		return err
	}
}

func validationMessage(err error) string {
	return "Dados inválidos: " + sentinelDetail(err, domain.ErrValidation)
}

// sentinelDetail strips the internal sentinel prefix, leaving the detail the
// caller is meant to see.
func sentinelDetail(err error, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if rest, ok := strings.CutPrefix(msg, prefix); ok {
		return rest
	}
	return msg
}
