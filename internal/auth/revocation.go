package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records refresh tokens that must be refused until they
// would have expired anyway. Keys are token digests, never raw tokens.
type RevocationStore interface {
	Revoke(ctx context.Context, digest string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, digest string) (bool, error)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const revokedPrefix = "revoked:v1:"

// RedisRevocationStore keeps one key per revoked token, expiring with it.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore builds a Redis-backed revocation ledger.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// Revoke is idempotent; revoking an already revoked token is not an error.
func (s *RedisRevocationStore) Revoke(ctx context.Context, digest string, expiresAt time.Time) error {
	err := s.client.SetArgs(ctx, revokedPrefix+digest, 1, redis.SetArgs{Mode: "NX", ExpireAt: expiresAt}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether digest is in the ledger.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, digest string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedPrefix+digest).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

type memoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore builds an in-process revocation ledger. Entries
// lapse by now, which should be the issuer's clock; nil means time.Now.
func NewMemoryRevocationStore(now func() time.Time) RevocationStore {
	if now == nil {
		now = time.Now
	}
	return &memoryRevocationStore{revoked: make(map[string]time.Time), now: now}
}

func (s *memoryRevocationStore) Revoke(_ context.Context, digest string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[digest]; !ok {
		s.revoked[digest] = expiresAt
	}
	return nil
}

func (s *memoryRevocationStore) IsRevoked(_ context.Context, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[digest]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.revoked, digest)
		return false, nil
	}
	return true, nil
}
