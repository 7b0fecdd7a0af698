package otp

import (
	"errors"
	"fmt"
	"time"
)

// MaxAttempts bounds failed verifications per challenge.
const MaxAttempts = 5

// Purpose scopes which flow may consume a challenge.
type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeReset    Purpose = "reset"
	PurposeChange   Purpose = "change"
)

var (
	// ErrNotFound means no live challenge exists for the (phone, purpose) slot,
	// or the challenge that was read has since been superseded or consumed.
	ErrNotFound = errors.New("otp challenge not found")

	// ErrProviderUnavailable means the verification provider failed, timed out
	// or returned no usable reference.
	ErrProviderUnavailable = errors.New("otp provider unavailable")

	// ErrInvalidPurpose is returned for purposes outside register/reset/change.
	ErrInvalidPurpose = errors.New("invalid otp purpose")
)

// ParsePurpose validates a caller-supplied purpose string.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, s)
	}
	return p, nil
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegister, PurposeReset, PurposeChange:
		return true
	}
	return false
}

// Challenge is the single outstanding OTP for a (phone, purpose) pair.
// Only the provider's opaque reference is kept, never the code.
type Challenge struct {
	ID                string
	Phone             string
	Purpose           Purpose
	ProviderReference string
	ExpiresAt         time.Time
	AttemptCount      int
}

// Expired reports whether the challenge has passed its expiry at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Status is the result of a verification attempt.
type Status int

const (
	StatusNotFound Status = iota
	StatusVerified
	StatusRejected
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusRejected:
		return "rejected"
	case StatusExhausted:
		return "exhausted"
	default:
		return "not_found"
	}
}

// Outcome describes a verification result. AttemptsRemaining is only
// meaningful for StatusRejected.
type Outcome struct {
	Status            Status
	AttemptsRemaining int
}
