package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Auth("invalid token"))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth kind to match")
	}
	if errors.Is(err, ErrRateExceeded) {
		t.Fatalf("auth must not match rate_exceeded")
	}
	if !errors.Is(err, Auth("invalid token")) {
		t.Fatalf("expected identical message to match")
	}
	if errors.Is(err, Auth("other")) {
		t.Fatalf("different message must not match")
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected internal, got %s", got)
	}
	if got := KindOf(Conflict("dup")); got != KindConflict {
		t.Fatalf("expected conflict, got %s", got)
	}
}

func TestWithFieldCopies(t *testing.T) {
	base := Auth("invalid code")
	withField := base.WithField("attempts_remaining", 3)
	if base.Fields != nil {
		t.Fatalf("original error must not be mutated")
	}
	if withField.Fields["attempts_remaining"] != 3 {
		t.Fatalf("expected field on copy")
	}
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("db down"))
	if err.Message != "internal server error" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal kind")
	}
}
