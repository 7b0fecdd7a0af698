package credentials

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/phoneauth/phoneauth/internal/apperr"
	"github.com/phoneauth/phoneauth/internal/auth"
	"github.com/phoneauth/phoneauth/internal/middleware"
)

// Handler exposes the credential flows over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler constructs a credentials HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("request body must be valid JSON")
	}
	return nil
}

func subject(c *fiber.Ctx) (auth.Subject, error) {
	sub, ok := middleware.SubjectFrom(c)
	if !ok {
		return auth.Subject{}, apperr.Auth("missing bearer token")
	}
	return sub, nil
}

// SendOTP handles POST /auth/send-otp.
func (h *Handler) SendOTP(c *fiber.Ctx) error {
	var req SendOTPInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.SendOTP(c.UserContext(), req); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":   "verification code sent",
		"expiresIn": int64(h.svc.OTPTTL().Seconds()),
	})
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(sess)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(sess)
}

// VerifyOTP handles POST /auth/verify-otp and returns a reset token.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req VerifyOTPInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	token, err := h.svc.VerifyResetOTP(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"resetToken": token,
		"expiresIn":  int64(auth.ResetTTL.Seconds()),
	})
}

// ResetPassword handles POST /auth/reset-password behind the reset bearer.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	var req NewPasswordInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResetPassword(c.UserContext(), sub, req); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "password has been reset"})
}

// Refresh handles POST /auth/refresh-token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	access, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"accessToken": access,
		"expiresIn":   int64(h.svc.AccessTTL().Seconds()),
	})
}

// Logout handles POST /auth/logout. Malformed bodies are not an error.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var req refreshRequest
	_ = c.BodyParser(&req)
	if err := h.svc.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "logged out"})
}

// Profile handles GET /user/profile.
func (h *Handler) Profile(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	profile, err := h.svc.Profile(c.UserContext(), sub)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": profile})
}

// SendChangeOTP handles POST /user/send-change-otp.
func (h *Handler) SendChangeOTP(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	if err := h.svc.SendChangeOTP(c.UserContext(), sub); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":   "verification code sent",
		"expiresIn": int64(h.svc.OTPTTL().Seconds()),
	})
}

// ChangePassword handles POST /user/change-password. Any phone in the body
// is ignored.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	var req ChangePasswordInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.UserContext(), sub, req); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "password has been changed"})
}
