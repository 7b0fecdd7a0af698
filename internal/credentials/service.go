package credentials

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/phoneauth/phoneauth/internal/apperr"
	"github.com/phoneauth/phoneauth/internal/auth"
	"github.com/phoneauth/phoneauth/internal/identity"
	"github.com/phoneauth/phoneauth/internal/otp"
	"github.com/phoneauth/phoneauth/internal/phone"
)

const (
	codeLength      = 6
	minFullNameLen  = 3
	msgInvalidLogin = "invalid phone number or password"
	// MsgTooManyAttempts is the fixed message of every exhausted challenge.
	MsgTooManyAttempts = "too many failed attempts, request a new code"
)

// SendOTPInput requests a code for register or reset.
type SendOTPInput struct {
	Phone   string `json:"phoneNumber"`
	Purpose string `json:"type"`
}

// RegisterInput creates an account once its phone is proven.
type RegisterInput struct {
	FullName        string `json:"fullName"`
	Phone           string `json:"phoneNumber"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	OTP             string `json:"otp"`
}

// LoginInput is a phone/password pair.
type LoginInput struct {
	Phone    string `json:"phoneNumber"`
	Password string `json:"password"`
}

// VerifyOTPInput exchanges a reset code for a reset token.
type VerifyOTPInput struct {
	Phone string `json:"phoneNumber"`
	OTP   string `json:"otp"`
}

// NewPasswordInput carries a replacement password and its confirmation.
type NewPasswordInput struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePasswordInput is NewPasswordInput plus a change code.
type ChangePasswordInput struct {
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Session is returned by register and login.
type Session struct {
	auth.TokenPair
	User identity.Profile `json:"user"`
}

// Service sequences the OTP ledger, the account store and the token issuer
// for every credential flow, and is the only place their errors are turned
// into apperr kinds.
type Service struct {
	ledger      *otp.Ledger
	users       *identity.Service
	tokens      *auth.Issuer
	countryCode string
	logger      *slog.Logger
}

// NewService wires the orchestrator.
func NewService(ledger *otp.Ledger, users *identity.Service, tokens *auth.Issuer, countryCode string, logger *slog.Logger) *Service {
	return &Service{ledger: ledger, users: users, tokens: tokens, countryCode: countryCode, logger: logger}
}

// OTPTTL reports how long an issued code stays valid.
func (s *Service) OTPTTL() time.Duration { return s.ledger.TTL() }

// AccessTTL reports how long an access token stays valid.
func (s *Service) AccessTTL() time.Duration { return s.tokens.AccessTTL() }

// SendOTP issues a register or reset code. Change codes are only issued
// through SendChangeOTP.
func (s *Service) SendOTP(ctx context.Context, in SendOTPInput) (err error) {
	number, err := s.normalizePhone(in.Phone)
	if err != nil {
		return err
	}
	purpose, err := otp.ParsePurpose(strings.ToLower(strings.TrimSpace(in.Purpose)))
	if err != nil {
		return apperr.Validation("type must be register or reset")
	}
	defer func() { s.logFlow("send_otp", purpose, number, err) }()

	switch purpose {
	case otp.PurposeChange:
		return apperr.Auth("change codes require an authenticated session")
	case otp.PurposeRegister:
		registered, err := s.registered(ctx, number)
		if err != nil {
			return err
		}
		if registered {
			return apperr.Conflict("phone number already registered")
		}
	case otp.PurposeReset:
		registered, err := s.registered(ctx, number)
		if err != nil {
			return err
		}
		if !registered {
			return apperr.NotFound("no account for this phone number")
		}
	}
	return s.issue(ctx, number, purpose)
}

// SendChangeOTP issues a change code to the phone bound to the access token.
func (s *Service) SendChangeOTP(ctx context.Context, sub auth.Subject) (err error) {
	defer func() { s.logFlow("send_change_otp", otp.PurposeChange, sub.Phone, err) }()
	if sub.Phone == "" {
		return apperr.Auth("invalid or expired token")
	}
	return s.issue(ctx, sub.Phone, otp.PurposeChange)
}

// Register verifies the register code and creates the account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (sess Session, err error) {
	fullName := strings.TrimSpace(in.FullName)
	if utf8.RuneCountInString(fullName) < minFullNameLen {
		return Session{}, apperr.Validation("full name must be at least 3 characters")
	}
	number, err := s.normalizePhone(in.Phone)
	if err != nil {
		return Session{}, err
	}
	if err := validateNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return Session{}, err
	}
	if err := validateCode(in.OTP); err != nil {
		return Session{}, err
	}
	defer func() { s.logFlow("register", otp.PurposeRegister, number, err) }()

	registered, err := s.registered(ctx, number)
	if err != nil {
		return Session{}, err
	}
	if registered {
		return Session{}, apperr.Conflict("phone number already registered")
	}
	if err := s.verify(ctx, number, otp.PurposeRegister, in.OTP); err != nil {
		return Session{}, err
	}

	user, err := s.users.Create(ctx, fullName, number, in.Password)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicatePhone) {
			return Session{}, apperr.Conflict("phone number already registered")
		}
		return Session{}, s.accountErr(err)
	}
	return s.session(user)
}

// Login checks a phone/password pair. Unknown phones and wrong passwords
// produce the same error.
func (s *Service) Login(ctx context.Context, in LoginInput) (sess Session, err error) {
	if strings.TrimSpace(in.Phone) == "" || in.Password == "" {
		return Session{}, apperr.Validation("phone number and password are required")
	}
	number, err := s.normalizePhone(in.Phone)
	if err != nil {
		return Session{}, err
	}
	defer func() { s.logFlow("login", "", number, err) }()

	user, err := s.users.FindByPhone(ctx, number)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Session{}, apperr.Auth(msgInvalidLogin)
		}
		return Session{}, apperr.Internal(err)
	}
	if !s.users.VerifyPassword(user, in.Password) {
		return Session{}, apperr.Auth(msgInvalidLogin)
	}
	return s.session(user)
}

// VerifyResetOTP consumes a reset code and returns a reset token.
func (s *Service) VerifyResetOTP(ctx context.Context, in VerifyOTPInput) (token string, err error) {
	number, err := s.normalizePhone(in.Phone)
	if err != nil {
		return "", err
	}
	if err := validateCode(in.OTP); err != nil {
		return "", err
	}
	defer func() { s.logFlow("verify_reset_otp", otp.PurposeReset, number, err) }()

	if err := s.verify(ctx, number, otp.PurposeReset, in.OTP); err != nil {
		return "", err
	}
	user, err := s.users.FindByPhone(ctx, number)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return "", apperr.NotFound("no account for this phone number")
		}
		return "", apperr.Internal(err)
	}
	token, err = s.tokens.IssueResetToken(auth.Subject{UserID: user.ID, Phone: user.Phone})
	if err != nil {
		return "", apperr.Internal(err)
	}
	return token, nil
}

// ResetPassword sets a new password for the holder of a reset token.
func (s *Service) ResetPassword(ctx context.Context, sub auth.Subject, in NewPasswordInput) (err error) {
	if err := validateNewPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}
	defer func() { s.logFlow("reset_password", otp.PurposeReset, sub.Phone, err) }()

	user, err := s.users.FindByID(ctx, sub.UserID)
	if err != nil {
		return s.accountErr(err)
	}
	if err := s.users.SetPassword(ctx, user, in.NewPassword); err != nil {
		return s.accountErr(err)
	}
	return nil
}

// ChangePassword verifies a change code and sets a new password. The phone
// always comes from the access token.
func (s *Service) ChangePassword(ctx context.Context, sub auth.Subject, in ChangePasswordInput) (err error) {
	if err := validateCode(in.OTP); err != nil {
		return err
	}
	if err := validateNewPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}
	defer func() { s.logFlow("change_password", otp.PurposeChange, sub.Phone, err) }()

	if sub.Phone == "" {
		return apperr.Auth("invalid or expired token")
	}
	if err := s.verify(ctx, sub.Phone, otp.PurposeChange, in.OTP); err != nil {
		return err
	}
	user, err := s.users.FindByPhone(ctx, sub.Phone)
	if err != nil {
		return s.accountErr(err)
	}
	if err := s.users.SetPassword(ctx, user, in.NewPassword); err != nil {
		return s.accountErr(err)
	}
	return nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", apperr.Validation("refresh token is required")
	}
	access, err := s.tokens.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
		return access, nil
	case errors.Is(err, auth.ErrRevoked):
		return "", apperr.Auth("refresh token has been revoked")
	case errors.Is(err, auth.ErrInvalidToken):
		return "", apperr.Auth("invalid or expired refresh token")
	default:
		s.logger.Error("refresh failed", slog.Any("error", err))
		return "", apperr.Internal(err)
	}
}

// Logout revokes a refresh token. Tokens that do not parse are treated as
// already logged out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	err := s.tokens.Revoke(ctx, refreshToken)
	if err == nil || errors.Is(err, auth.ErrInvalidToken) {
		return nil
	}
	s.logger.Error("logout failed", slog.Any("error", err))
	return apperr.Internal(err)
}

// Profile returns the account behind an access token.
func (s *Service) Profile(ctx context.Context, sub auth.Subject) (identity.Profile, error) {
	user, err := s.users.FindByID(ctx, sub.UserID)
	if err != nil {
		return identity.Profile{}, s.accountErr(err)
	}
	return user.Public(), nil
}

// AuthenticateAccess validates an access token.
func (s *Service) AuthenticateAccess(token string) (auth.Subject, error) {
	sub, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return auth.Subject{}, apperr.Auth("invalid or expired token")
	}
	return sub, nil
}

// AuthenticateReset validates a reset token.
func (s *Service) AuthenticateReset(token string) (auth.Subject, error) {
	sub, err := s.tokens.ValidateResetToken(token)
	if err != nil {
		return auth.Subject{}, apperr.Auth("invalid or expired reset token")
	}
	return sub, nil
}

func (s *Service) issue(ctx context.Context, number string, purpose otp.Purpose) error {
	if _, err := s.ledger.Issue(ctx, number, purpose); err != nil {
		if errors.Is(err, otp.ErrProviderUnavailable) {
			return apperr.Upstream("verification provider unavailable, try again later", err)
		}
		return apperr.Internal(err)
	}
	return nil
}

func (s *Service) verify(ctx context.Context, number string, purpose otp.Purpose, code string) error {
	out, err := s.ledger.Verify(ctx, number, purpose, code)
	if err != nil {
		if errors.Is(err, otp.ErrProviderUnavailable) {
			return apperr.Upstream("verification provider unavailable, try again later", err)
		}
		return apperr.Internal(err)
	}
	switch out.Status {
	case otp.StatusVerified:
		return nil
	case otp.StatusRejected:
		return apperr.Auth("invalid verification code").WithField("attempts_remaining", out.AttemptsRemaining)
	case otp.StatusExhausted:
		return apperr.RateExceeded(MsgTooManyAttempts).WithField("reissue_required", true)
	default:
		return apperr.NotFound("verification code expired or not requested")
	}
}

func (s *Service) registered(ctx context.Context, number string) (bool, error) {
	_, err := s.users.FindByPhone(ctx, number)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, identity.ErrUserNotFound):
		return false, nil
	default:
		return false, apperr.Internal(err)
	}
}

func (s *Service) session(user identity.User) (Session, error) {
	pair, err := s.tokens.IssueSessionTokens(auth.Subject{UserID: user.ID, Phone: user.Phone})
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	return Session{TokenPair: pair, User: user.Public()}, nil
}

func (s *Service) accountErr(err error) error {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return apperr.NotFound("account not found")
	case errors.Is(err, identity.ErrPasswordTooShort):
		return apperr.Validation(identity.ErrPasswordTooShort.Error())
	case errors.Is(err, identity.ErrPasswordTooLong), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return apperr.Validation(identity.ErrPasswordTooLong.Error())
	default:
		return apperr.Internal(err)
	}
}

func (s *Service) normalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperr.Validation("phone number is required")
	}
	number, err := phone.Normalize(raw, s.countryCode)
	if err != nil {
		return "", apperr.Validation("phone number is invalid")
	}
	return number, nil
}

func (s *Service) logFlow(flow string, purpose otp.Purpose, number string, err error) {
	attrs := []any{slog.String("flow", flow), slog.String("phone", phone.Mask(number))}
	if purpose != "" {
		attrs = append(attrs, slog.String("purpose", string(purpose)))
	}
	if err == nil {
		s.logger.Info("credential flow completed", attrs...)
		return
	}
	kind := apperr.KindOf(err)
	attrs = append(attrs, slog.String("kind", string(kind)))
	if kind == apperr.KindInternal || kind == apperr.KindUpstream {
		attrs = append(attrs, slog.Any("error", err))
		s.logger.Error("credential flow failed", attrs...)
		return
	}
	s.logger.Warn("credential flow rejected", attrs...)
}

func validateNewPassword(password, confirm string) error {
	if utf8.RuneCountInString(password) < identity.MinPasswordLength {
		return apperr.Validation("password must be at least 6 characters")
	}
	if len(password) > identity.MaxPasswordBytes {
		return apperr.Validation(identity.ErrPasswordTooLong.Error())
	}
	if password != confirm {
		return apperr.Validation("passwords do not match")
	}
	return nil
}

func validateCode(code string) error {
	if len(code) != codeLength {
		return apperr.Validation("code must be 6 digits")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return apperr.Validation("code must be 6 digits")
		}
	}
	return nil
}
