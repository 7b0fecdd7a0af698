package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType separates the three token classes. Each class is signed with
// its own secret and carries its type in the "typ" claim.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	TokenReset   TokenType = "reset"
)

// ResetTTL is the fixed lifetime of a password reset token.
const ResetTTL = 5 * time.Minute

var (
	// ErrInvalidToken covers bad signatures, expiry, wrong class and malformed input.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrRevoked is returned when a refresh token has been logged out.
	ErrRevoked = errors.New("refresh token revoked")
)

// Claims is the payload carried by every token.
type Claims struct {
	UserID string    `json:"uid"`
	Phone  string    `json:"phone,omitempty"`
	Type   TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Subject identifies the account a session is minted for.
type Subject struct {
	UserID string
	Phone  string
}

func signHS256(sub Subject, typ TokenType, secret []byte, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := issuedAt.Add(ttl)
	claims := Claims{
		UserID: sub.UserID,
		Phone:  sub.Phone,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// parseHS256 verifies signature, expiry and class. Any failure is ErrInvalidToken.
func parseHS256(token string, typ TokenType, secret []byte, now func() time.Time) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
