package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byPhone map[string]User
	phoneOf map[string]string
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byPhone: make(map[string]User),
		phoneOf: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[user.Phone]; exists {
		return ErrDuplicatePhone
	}
	user.PasswordHash = append([]byte(nil), user.PasswordHash...)
	r.byPhone[user.Phone] = user
	r.phoneOf[user.ID] = user.Phone
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byPhone[phone]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	phone, ok := r.phoneOf[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.byPhone[phone], nil
}

func (r *memoryRepository) UpdatePasswordHash(_ context.Context, id string, hash []byte, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	phone, ok := r.phoneOf[id]
	if !ok {
		return ErrUserNotFound
	}
	user := r.byPhone[phone]
	user.PasswordHash = append([]byte(nil), hash...)
	user.UpdatedAt = updatedAt
	r.byPhone[phone] = user
	return nil
}
