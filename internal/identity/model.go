package identity

import (
	"errors"
	"time"
)

const (
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
	// MaxPasswordBytes is the longest password bcrypt accepts.
	MaxPasswordBytes = 72
)

var (
	// ErrDuplicatePhone is returned when the phone number is already registered.
	ErrDuplicatePhone = errors.New("phone number already registered")
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordTooShort is returned for passwords under MinPasswordLength.
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	// ErrPasswordTooLong is returned for passwords over MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// User is a registered account. Phone is immutable once created.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Phone        string    `json:"phoneNumber"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is the outward view of a user.
type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Phone    string `json:"phoneNumber"`
}

// Public strips everything but the identifying fields.
func (u User) Public() Profile {
	return Profile{ID: u.ID, FullName: u.FullName, Phone: u.Phone}
}
