package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/phoneauth/phoneauth/internal/apperr"
	"github.com/phoneauth/phoneauth/internal/auth"
)

const subjectKey = "subject"

// TokenValidator turns a bearer token into the subject it was minted for.
type TokenValidator func(token string) (auth.Subject, error)

// Bearer requires an Authorization: Bearer header accepted by validate and
// stores the resulting subject for handlers.
func Bearer(validate TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return apperr.Auth("missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if token == "" {
			return apperr.Auth("missing bearer token")
		}
		sub, err := validate(token)
		if err != nil {
			return err
		}
		c.Locals(subjectKey, sub)
		return c.Next()
	}
}

// SubjectFrom returns the subject stored by Bearer.
func SubjectFrom(c *fiber.Ctx) (auth.Subject, bool) {
	sub, ok := c.Locals(subjectKey).(auth.Subject)
	return sub, ok && sub.UserID != ""
}
