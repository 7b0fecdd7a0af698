package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/phoneauth/phoneauth/internal/auth"
	"github.com/phoneauth/phoneauth/internal/config"
	"github.com/phoneauth/phoneauth/internal/credentials"
	"github.com/phoneauth/phoneauth/internal/identity"
	"github.com/phoneauth/phoneauth/internal/middleware"
	"github.com/phoneauth/phoneauth/internal/otp"
	"github.com/phoneauth/phoneauth/internal/sms"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Provider overrides the verification provider chosen from Cfg.
	Provider sms.Provider
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	svc, err := buildService(d)
	if err != nil {
		return err
	}
	h := credentials.NewHandler(svc)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.RateLimit(d.Cache, "global", d.Cfg.GlobalRateLimit, d.Cfg.GlobalRateWindow, middleware.ByIP, d.Logger))

	RegisterHealthRoutes(app, d)

	limits := limiters{
		otp:         middleware.RateLimit(d.Cache, "otp", d.Cfg.OTPRateLimit, d.Cfg.OTPRateWindow, middleware.ByPhone(d.Cfg.PhoneCountryCode), d.Logger),
		auth:        middleware.RateLimit(d.Cache, "auth", d.Cfg.AuthRateLimit, d.Cfg.AuthRateWindow, middleware.ByIP, d.Logger),
		idempotency: middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	}

	api := app.Group("/api")
	RegisterAuthRoutes(api, h, svc, limits)
	RegisterUserRoutes(api, h, svc, limits)

	return nil
}

type limiters struct {
	otp         fiber.Handler
	auth        fiber.Handler
	idempotency fiber.Handler
}

func buildService(d Deps) (*credentials.Service, error) {
	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}

	var (
		otpStore    otp.Store
		revocations auth.RevocationStore
		locker      auth.Locker
	)
	if d.Cache != nil {
		otpStore = otp.NewRedisStore(d.Cache)
		revocations = auth.NewRedisRevocationStore(d.Cache)
		locker = auth.NewRedisLocker(d.Cache)
	} else {
		otpStore = otp.NewMemoryStore()
		revocations = auth.NewMemoryRevocationStore(nil)
		locker = auth.NewMemoryLocker()
	}

	provider, err := selectProvider(d)
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewIssuer(auth.Config{
		AccessSecret:  d.Cfg.JWTSecret,
		RefreshSecret: d.Cfg.RefreshSecret,
		ResetSecret:   d.Cfg.ResetSecret,
		AccessTTL:     d.Cfg.AccessTokenTTL,
		RefreshTTL:    d.Cfg.RefreshTokenTTL,
		LockTTL:       d.Cfg.RefreshLockTTL,
	}, revocations, locker)
	if err != nil {
		return nil, err
	}

	ledger := otp.NewLedger(otpStore, provider, d.Cfg.OTPTTL(), d.Cfg.OTPProviderTimeout, d.Logger)
	users := identity.NewService(identityRepo)
	return credentials.NewService(ledger, users, issuer, d.Cfg.PhoneCountryCode, d.Logger), nil
}

func selectProvider(d Deps) (sms.Provider, error) {
	if d.Provider != nil {
		return d.Provider, nil
	}
	if d.Cfg.Infobip.Configured() {
		return sms.NewInfobipClient(sms.InfobipConfig{
			BaseURL:    d.Cfg.Infobip.BaseURL,
			APIKey:     d.Cfg.Infobip.APIKey,
			AppID:      d.Cfg.Infobip.AppID,
			MessageID:  d.Cfg.Infobip.MessageID,
			SenderFrom: d.Cfg.Infobip.SenderFrom,
		}), nil
	}
	if d.Cfg.IsDev() {
		d.Logger.Warn("infobip not configured, codes are written to the log")
		return sms.NewDevProvider(d.Logger), nil
	}
	return nil, fmt.Errorf("infobip credentials are required when APP_ENV=%s", d.Cfg.AppEnv)
}
