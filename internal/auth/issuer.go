package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLockTimeout is returned when the per-token lock stays busy.
var ErrLockTimeout = errors.New("refresh token is busy")

const lockPoll = 20 * time.Millisecond

// Config carries the secrets and lifetimes of the token issuer.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	ResetSecret   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	LockTTL       time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenPair is returned by every flow that starts a session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Issuer mints and validates access, refresh and reset tokens.
type Issuer struct {
	cfg         Config
	revocations RevocationStore
	locker      Locker
	now         func() time.Time
}

// NewIssuer validates cfg and returns an issuer.
func NewIssuer(cfg Config, revocations RevocationStore, locker Locker) (*Issuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.ResetSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret || cfg.AccessSecret == cfg.ResetSecret || cfg.RefreshSecret == cfg.ResetSecret {
		return nil, errors.New("token secrets must differ per token class")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{cfg: cfg, revocations: revocations, locker: locker, now: now}, nil
}

// IssueSessionTokens mints an access/refresh pair for sub.
func (i *Issuer) IssueSessionTokens(sub Subject) (TokenPair, error) {
	now := i.now()
	access, _, err := signHS256(sub, TokenAccess, []byte(i.cfg.AccessSecret), now, i.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, _, err := signHS256(sub, TokenRefresh, []byte(i.cfg.RefreshSecret), now, i.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(i.cfg.AccessTTL.Seconds())}, nil
}

// IssueResetToken mints a reset token valid for ResetTTL.
func (i *Issuer) IssueResetToken(sub Subject) (string, error) {
	token, _, err := signHS256(sub, TokenReset, []byte(i.cfg.ResetSecret), i.now(), ResetTTL)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return token, nil
}

// ValidateAccessToken returns the subject bound to an access token.
func (i *Issuer) ValidateAccessToken(token string) (Subject, error) {
	claims, err := parseHS256(token, TokenAccess, []byte(i.cfg.AccessSecret), i.now)
	if err != nil {
		return Subject{}, err
	}
	return Subject{UserID: claims.UserID, Phone: claims.Phone}, nil
}

// ValidateResetToken returns the subject bound to a reset token.
func (i *Issuer) ValidateResetToken(token string) (Subject, error) {
	claims, err := parseHS256(token, TokenReset, []byte(i.cfg.ResetSecret), i.now)
	if err != nil {
		return Subject{}, err
	}
	return Subject{UserID: claims.UserID, Phone: claims.Phone}, nil
}

// Refresh mints a new access token from a live refresh token. The refresh
// token itself is not rotated. Revocation is checked before validity, and
// both run under the token's lock so a concurrent Revoke is never overtaken.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (string, error) {
	digest := tokenDigest(refreshToken)
	var access string
	err := i.withLock(ctx, digest, func() error {
		revoked, err := i.revocations.IsRevoked(ctx, digest)
		if err != nil {
			return err
		}
		if revoked {
			return ErrRevoked
		}
		claims, err := parseHS256(refreshToken, TokenRefresh, []byte(i.cfg.RefreshSecret), i.now)
		if err != nil {
			return err
		}
		access, _, err = signHS256(Subject{UserID: claims.UserID, Phone: claims.Phone}, TokenAccess, []byte(i.cfg.AccessSecret), i.now(), i.cfg.AccessTTL)
		return err
	})
	if err != nil {
		return "", err
	}
	return access, nil
}

// Revoke adds a refresh token to the revocation ledger until its own
// expiry. Revoking twice is a no-op.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := parseHS256(refreshToken, TokenRefresh, []byte(i.cfg.RefreshSecret), i.now)
	if err != nil {
		return err
	}
	digest := tokenDigest(refreshToken)
	return i.withLock(ctx, digest, func() error {
		return i.revocations.Revoke(ctx, digest, claims.ExpiresAt.Time)
	})
}

// AccessTTL reports the lifetime of access tokens.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

func (i *Issuer) withLock(ctx context.Context, digest string, fn func() error) error {
	key := "refresh:" + digest
	deadline := time.Now().Add(i.cfg.LockTTL)
	for {
		token, ok, err := i.locker.TryLock(ctx, key, i.cfg.LockTTL)
		if err != nil {
			return err
		}
		if ok {
			defer func() {
				// a lease we fail to release expires after LockTTL
				_ = i.locker.Unlock(context.WithoutCancel(ctx), key, token)
			}()
			return fn()
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}
