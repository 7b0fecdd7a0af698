package otp

import "context"

// Store persists challenges, one slot per (phone, purpose). Implementations
// must make Save, RecordFailure and Consume atomic per slot.
type Store interface {
	// Save replaces whatever occupies the slot with c.
	Save(ctx context.Context, c Challenge) error
	// Get returns the slot's challenge or ErrNotFound. Expiry is left to callers.
	Get(ctx context.Context, phone string, purpose Purpose) (Challenge, error)
	// Delete empties the slot. Deleting an empty slot is not an error.
	Delete(ctx context.Context, phone string, purpose Purpose) error
	// RecordFailure increments the attempt count of c if c still occupies its
	// slot, deleting it once the count reaches max. Returns the new count, or
	// ErrNotFound if c was superseded or consumed.
	RecordFailure(ctx context.Context, c Challenge, max int) (int, error)
	// Consume deletes c if it still occupies its slot, else ErrNotFound.
	Consume(ctx context.Context, c Challenge) error
}
