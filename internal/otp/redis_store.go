package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "otp:v1:"

// Both scripts compare the stored challenge id with the caller's, so a
// verify that raced with a re-issue never touches the newer challenge.
var (
	recordFailureScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then
  return -1
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if n >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
end
return n
`)

	consumeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)
)

// RedisStore keeps each challenge in a hash whose key expires at the
// challenge's expiresAt, so stale challenges vanish without a sweeper.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed challenge store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func slotKey(phone string, purpose Purpose) string {
	return keyPrefix + string(purpose) + ":" + phone
}

// Save atomically supersedes the slot.
func (s *RedisStore) Save(ctx context.Context, c Challenge) error {
	key := slotKey(c.Phone, c.Purpose)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"id", c.ID,
			"ref", c.ProviderReference,
			"attempts", c.AttemptCount,
			"expires_at", c.ExpiresAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, c.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp challenge: %w", err)
	}
	return nil
}

// Get loads the slot's challenge.
func (s *RedisStore) Get(ctx context.Context, phone string, purpose Purpose) (Challenge, error) {
	fields, err := s.client.HGetAll(ctx, slotKey(phone, purpose)).Result()
	if err != nil {
		return Challenge{}, fmt.Errorf("load otp challenge: %w", err)
	}
	if len(fields) == 0 || fields["id"] == "" {
		return Challenge{}, ErrNotFound
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return Challenge{}, fmt.Errorf("decode otp attempts: %w", err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return Challenge{}, fmt.Errorf("decode otp expiry: %w", err)
	}
	return Challenge{
		ID:                fields["id"],
		Phone:             phone,
		Purpose:           purpose,
		ProviderReference: fields["ref"],
		ExpiresAt:         time.UnixMilli(expiresMs).UTC(),
		AttemptCount:      attempts,
	}, nil
}

// Delete empties the slot.
func (s *RedisStore) Delete(ctx context.Context, phone string, purpose Purpose) error {
	if err := s.client.Del(ctx, slotKey(phone, purpose)).Err(); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}

// RecordFailure increments attempts with a single server-side script.
func (s *RedisStore) RecordFailure(ctx context.Context, c Challenge, max int) (int, error) {
	n, err := recordFailureScript.Run(ctx, s.client, []string{slotKey(c.Phone, c.Purpose)}, c.ID, max).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("record otp failure: %w", err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// Consume deletes c if it is still current.
func (s *RedisStore) Consume(ctx context.Context, c Challenge) error {
	n, err := consumeScript.Run(ctx, s.client, []string{slotKey(c.Phone, c.Purpose)}, c.ID).Int()
	if err != nil {
		return fmt.Errorf("consume otp challenge: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
