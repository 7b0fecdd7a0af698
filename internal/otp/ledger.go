package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phoneauth/phoneauth/internal/phone"
	"github.com/phoneauth/phoneauth/internal/sms"
)

// Ledger issues and verifies OTP challenges. It keeps at most one live
// challenge per (phone, purpose) and enforces MaxAttempts locally.
type Ledger struct {
	store           Store
	provider        sms.Provider
	ttl             time.Duration
	providerTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewLedger constructs a ledger. ttl is the challenge lifetime and
// providerTimeout bounds every call to the provider.
func NewLedger(store Store, provider sms.Provider, ttl, providerTimeout time.Duration, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:           store,
		provider:        provider,
		ttl:             ttl,
		providerTimeout: providerTimeout,
		logger:          logger,
		now:             time.Now,
	}
}

// TTL returns the lifetime given to new challenges.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// Issue supersedes any challenge for (phone, purpose) and starts a new one.
// Nothing is persisted when the provider fails.
func (l *Ledger) Issue(ctx context.Context, number string, purpose Purpose) (Challenge, error) {
	if !purpose.Valid() {
		return Challenge{}, ErrInvalidPurpose
	}
	if err := l.store.Delete(ctx, number, purpose); err != nil {
		return Challenge{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, l.providerTimeout)
	ref, err := l.provider.SendChallenge(pctx, number)
	cancel()
	if err != nil || ref == "" {
		if err == nil {
			err = errors.New("empty provider reference")
		}
		l.logger.Warn("otp send failed",
			slog.String("purpose", string(purpose)),
			slog.String("phone", phone.Mask(number)),
			slog.Any("error", err),
		)
		return Challenge{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	c := Challenge{
		ID:                uuid.NewString(),
		Phone:             number,
		Purpose:           purpose,
		ProviderReference: ref,
		ExpiresAt:         l.now().Add(l.ttl).UTC(),
	}
	if err := l.store.Save(ctx, c); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// Verify checks code against the live challenge for (phone, purpose).
// Expired and absent challenges are both StatusNotFound.
func (l *Ledger) Verify(ctx context.Context, number string, purpose Purpose, code string) (Outcome, error) {
	c, err := l.store.Get(ctx, number, purpose)
	if errors.Is(err, ErrNotFound) {
		return Outcome{Status: StatusNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if c.Expired(l.now()) {
		// Redis has normally dropped it already; this covers the memory store.
		if err := l.store.Consume(ctx, c); err != nil && !errors.Is(err, ErrNotFound) {
			return Outcome{}, err
		}
		return Outcome{Status: StatusNotFound}, nil
	}

	pctx, cancel := context.WithTimeout(ctx, l.providerTimeout)
	ok, err := l.provider.CheckChallenge(pctx, c.ProviderReference, code)
	cancel()
	if err != nil {
		l.logger.Warn("otp check failed",
			slog.String("purpose", string(purpose)),
			slog.String("phone", phone.Mask(number)),
			slog.Any("error", err),
		)
		return Outcome{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if ok {
		if err := l.store.Consume(ctx, c); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Outcome{Status: StatusNotFound}, nil
			}
			return Outcome{}, err
		}
		return Outcome{Status: StatusVerified}, nil
	}

	n, err := l.store.RecordFailure(ctx, c, MaxAttempts)
	if errors.Is(err, ErrNotFound) {
		return Outcome{Status: StatusNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if n >= MaxAttempts {
		return Outcome{Status: StatusExhausted}, nil
	}
	return Outcome{Status: StatusRejected, AttemptsRemaining: MaxAttempts - n}, nil
}
