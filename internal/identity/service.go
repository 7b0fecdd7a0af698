package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service manages accounts and their password secrets.
type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
}

// FindByPhone looks a user up by normalised phone number.
func (s *Service) FindByPhone(ctx context.Context, phone string) (User, error) {
	return s.repo.FindByPhone(ctx, phone)
}

// FindByID looks a user up by id.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Create hashes password and stores a new account. A concurrent insert for
// the same phone yields ErrDuplicatePhone and nothing is written.
func (s *Service) Create(ctx context.Context, fullName, phone, password string) (User, error) {
	hash, err := s.hash(password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user := User{
		ID:           uuid.New().String(),
		FullName:     fullName,
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// VerifyPassword reports whether candidate matches the stored hash.
func (s *Service) VerifyPassword(user User, candidate string) bool {
	if len(user.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(candidate)) == nil
}

// SetPassword replaces the stored hash for user.
func (s *Service) SetPassword(ctx context.Context, user User, newPassword string) error {
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordHash(ctx, user.ID, hash, s.now().UTC())
}

func (s *Service) hash(password string) ([]byte, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword([]byte(password), s.cost)
}
