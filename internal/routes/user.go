package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/phoneauth/phoneauth/internal/credentials"
	"github.com/phoneauth/phoneauth/internal/middleware"
)

// RegisterUserRoutes wires endpoints that require an access token.
func RegisterUserRoutes(r fiber.Router, h *credentials.Handler, svc *credentials.Service, l limiters) {
	group := r.Group("/user", middleware.Bearer(svc.AuthenticateAccess))
	group.Get("/profile", l.auth, h.Profile)
	group.Post("/send-change-otp", l.otp, h.SendChangeOTP)
	group.Post("/change-password", l.auth, h.ChangePassword)
}
