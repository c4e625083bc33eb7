package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/hr-qa/backend/pkg/errors"
	"github.com/hr-qa/backend/pkg/logger"
)

// statusFor inspects the whole chain, so a query failure caused by an
// unreachable backend still answers 503.
func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return fiber.StatusBadRequest
	case apperrors.IsBackendUnavailable(err):
		return fiber.StatusServiceUnavailable
	case apperrors.IsAuthentication(err):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError logs err and writes it as {"error", "code"}. Backend details
// stay in the log.
func respondError(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	}

	body := fiber.Map{"error": msg, "code": apperrors.CodeOf(err)}
	if se, ok := err.(*apperrors.StandardError); ok && status == fiber.StatusBadRequest {
		body["error"] = se.Message
	}
	return c.Status(status).JSON(body)
}

func validationError(msg string) error {
	return apperrors.NewValidationError(msg)
}
