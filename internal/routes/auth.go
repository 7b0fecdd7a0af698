package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/phoneauth/phoneauth/internal/credentials"
	"github.com/phoneauth/phoneauth/internal/middleware"
)

// RegisterAuthRoutes wires the public credential endpoints.
func RegisterAuthRoutes(r fiber.Router, h *credentials.Handler, svc *credentials.Service, l limiters) {
	group := r.Group("/auth")
	group.Post("/send-otp", l.otp, l.idempotency, h.SendOTP)
	group.Post("/register", l.auth, h.Register)
	group.Post("/login", l.auth, h.Login)
	group.Post("/verify-otp", l.auth, h.VerifyOTP)
	group.Post("/reset-password", l.auth, middleware.Bearer(svc.AuthenticateReset), h.ResetPassword)
	group.Post("/refresh-token", l.auth, h.Refresh)
	group.Post("/logout", l.auth, h.Logout)
}
