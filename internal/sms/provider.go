// Package sms talks to the out-of-band verification provider that delivers
// one-time codes and checks them. The core never sees or stores raw codes
// from a real provider; it only keeps the opaque reference returned here.
package sms

import "context"

// Provider delivers a verification code to a phone and later checks a
// submitted code against the provider's record.
type Provider interface {
	// SendChallenge starts a delivery and returns an opaque reference.
	SendChallenge(ctx context.Context, phone string) (string, error)
	// CheckChallenge reports whether code matches the challenge behind reference.
	CheckChallenge(ctx context.Context, reference, code string) (bool, error)
}
