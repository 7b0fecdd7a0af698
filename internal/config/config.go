package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"PhoneAuth"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	JWTSecret       string        `env:"JWT_SECRET,required"`
	RefreshSecret   string        `env:"JWT_REFRESH_SECRET,required"`
	ResetSecret     string        `env:"JWT_RESET_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"JWT_EXPIRES_IN" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"8760h"`
	RefreshLockTTL  time.Duration `env:"REFRESH_LOCK_TTL" envDefault:"5s"`

	OTPExpireMinutes   int           `env:"OTP_EXPIRE_MINUTES" envDefault:"5"`
	OTPProviderTimeout time.Duration `env:"OTP_PROVIDER_TIMEOUT" envDefault:"10s"`
	PhoneCountryCode   string        `env:"PHONE_COUNTRY_CODE" envDefault:"84"`

	Infobip Infobip

	OTPRateLimit     int           `env:"OTP_RATE_LIMIT" envDefault:"3"`
	OTPRateWindow    time.Duration `env:"OTP_RATE_WINDOW" envDefault:"1m"`
	AuthRateLimit    int           `env:"AUTH_RATE_LIMIT" envDefault:"10"`
	AuthRateWindow   time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"15m"`
	GlobalRateLimit  int           `env:"GLOBAL_RATE_LIMIT" envDefault:"100"`
	GlobalRateWindow time.Duration `env:"GLOBAL_RATE_WINDOW" envDefault:"1m"`
}

// Infobip holds credentials for the Infobip 2FA API.
type Infobip struct {
	BaseURL    string `env:"INFOBIP_BASE_URL"`
	APIKey     string `env:"INFOBIP_API_KEY"`
	AppID      string `env:"INFOBIP_APP_ID"`
	MessageID  string `env:"INFOBIP_MESSAGE_ID"`
	SenderFrom string `env:"INFOBIP_SENDER_FROM"`
}

// Configured reports whether enough Infobip settings are present to send PINs.
func (i Infobip) Configured() bool {
	return i.BaseURL != "" && i.APIKey != "" && i.AppID != "" && i.MessageID != ""
}

// Load reads an optional .env file, then populates a Config from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse populates a Config from the current environment without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	if c.JWTSecret == c.RefreshSecret || c.JWTSecret == c.ResetSecret || c.RefreshSecret == c.ResetSecret {
		return fmt.Errorf("JWT_SECRET, JWT_REFRESH_SECRET and JWT_RESET_SECRET must be distinct")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.OTPExpireMinutes <= 0 {
		return fmt.Errorf("OTP_EXPIRE_MINUTES must be positive")
	}
	if c.OTPProviderTimeout <= 0 {
		return fmt.Errorf("OTP_PROVIDER_TIMEOUT must be positive")
	}
	if c.IsDev() {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if !c.Infobip.Configured() {
		return fmt.Errorf("INFOBIP_* settings must be set when APP_ENV=%s", c.AppEnv)
	}
	return nil
}

// OTPTTL returns the lifetime of an OTP challenge.
func (c Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPExpireMinutes) * time.Minute
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
