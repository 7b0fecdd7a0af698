package sms

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/phoneauth/phoneauth/internal/logging"
)

func TestDevProviderRoundTrip(t *testing.T) {
	p := NewDevProvider(logging.Discard())
	p.SetCode("654321")
	ctx := context.Background()

	ref, err := p.SendChallenge(ctx, "84912345678")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ok, _ := p.CheckChallenge(ctx, ref, "111111"); ok {
		t.Fatal("wrong code must not verify")
	}
	if ok, _ := p.CheckChallenge(ctx, ref, "654321"); !ok {
		t.Fatal("expected correct code to verify")
	}
	if ok, _ := p.CheckChallenge(ctx, ref, "654321"); ok {
		t.Fatal("reference must be retired after success")
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := generateCode()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != codeDigits {
		t.Fatalf("len = %d", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in %q", code)
		}
	}
}

func TestDevProviderMasksPhoneInLog(t *testing.T) {
	var buf bytes.Buffer
	p := NewDevProvider(logging.NewWithWriter(&buf, "info", "json"))
	if _, err := p.SendChallenge(context.Background(), "84912345678"); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "84912345678") {
		t.Fatalf("full phone number logged: %s", out)
	}
	if !strings.Contains(out, "********678") {
		t.Fatalf("expected masked phone in log: %s", out)
	}
}
