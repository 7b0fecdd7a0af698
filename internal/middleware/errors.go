package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/phoneauth/phoneauth/internal/apperr"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindRateExceeded:
		return http.StatusTooManyRequests
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error as {"error": {"kind", "message", ...}}.
// Causes of internal and upstream errors are logged, never returned.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fiber.Map{
				"kind":    kindForStatus(fe.Code),
				"message": fe.Message,
			}})
		}

		e := apperr.As(err)
		if e.Kind == apperr.KindInternal || e.Kind == apperr.KindUpstream {
			logger.Error("request failed",
				slog.String("kind", string(e.Kind)),
				slog.String("path", c.Path()),
				slog.String("request_id", RequestIDFrom(c)),
				slog.Any("error", e.Err),
			)
		}
		body := fiber.Map{"kind": e.Kind, "message": e.Message}
		for k, v := range e.Fields {
			body[k] = v
		}
		return c.Status(StatusFor(e.Kind)).JSON(fiber.Map{"error": body})
	}
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(apperr.KindValidation)
	case http.StatusUnauthorized, http.StatusForbidden:
		return string(apperr.KindAuth)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return string(apperr.KindNotFound)
	case http.StatusConflict:
		return string(apperr.KindConflict)
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if code >= 500 {
		return string(apperr.KindInternal)
	}
	return "error"
}
