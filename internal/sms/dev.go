package sms

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/phoneauth/phoneauth/internal/phone"
)

const codeDigits = 6

// DevProvider is a local stand-in for the real provider. It generates codes
// itself and writes them to the logger so flows can be completed without an
// SMS gateway. Only code hashes are kept.
type DevProvider struct {
	logger *slog.Logger

	mu     sync.Mutex
	hashes map[string]string
	fixed  string
}

// NewDevProvider constructs a logging provider stub.
func NewDevProvider(logger *slog.Logger) *DevProvider {
	return &DevProvider{logger: logger, hashes: make(map[string]string)}
}

// SetCode makes every subsequent challenge use code. Tests use it to know
// the right answer.
func (p *DevProvider) SetCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixed = code
}

// SendChallenge generates a code, logs it and returns a fresh reference.
func (p *DevProvider) SendChallenge(_ context.Context, number string) (string, error) {
	p.mu.Lock()
	code := p.fixed
	p.mu.Unlock()
	if code == "" {
		var err error
		if code, err = generateCode(); err != nil {
			return "", err
		}
	}

	ref := uuid.NewString()
	p.mu.Lock()
	p.hashes[ref] = hashCode(code)
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("dev otp issued", "reference", ref, "phone", phone.Mask(number), "code", code)
	}
	return ref, nil
}

// CheckChallenge compares code with the stored hash in constant time.
// A successful check retires the reference.
func (p *DevProvider) CheckChallenge(_ context.Context, reference, code string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, ok := p.hashes[reference]
	if !ok {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(stored)) != 1 {
		return false, nil
	}
	delete(p.hashes, reference)
	return true, nil
}

func generateCode() (string, error) {
	b := make([]byte, codeDigits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, codeDigits)
	for i := range s {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}

func hashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}
