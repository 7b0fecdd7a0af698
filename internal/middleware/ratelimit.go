package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/phoneauth/phoneauth/internal/phone"
)

const rateLimitPrefix = "rl:v1:"

// RateKeyFunc picks the identity a request is counted against.
type RateKeyFunc func(c *fiber.Ctx) string

// ByIP counts requests per client address.
func ByIP(c *fiber.Ctx) string { return "ip:" + c.IP() }

// ByPhone counts requests per normalised phoneNumber in the JSON body, then
// per authenticated phone, then per client address. Numbers that do not
// normalise are counted against the client address.
func ByPhone(countryCode string) RateKeyFunc {
	return func(c *fiber.Ctx) string {
		var req struct {
			Phone string `json:"phoneNumber"`
		}
		if len(c.Body()) > 0 {
			_ = c.BodyParser(&req)
		}
		if raw := strings.TrimSpace(req.Phone); raw != "" {
			if number, err := phone.Normalize(raw, countryCode); err == nil {
				return "phone:" + number
			}
			return ByIP(c)
		}
		if sub, ok := SubjectFrom(c); ok && sub.Phone != "" {
			return "phone:" + sub.Phone
		}
		return ByIP(c)
	}
}

// RateLimit enforces a fixed window of limit requests per key. It is a
// no-op without Redis and fails open on cache errors.
func RateLimit(cache *redis.Client, name string, limit int, window time.Duration, keyFn RateKeyFunc, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || limit <= 0 {
			return c.Next()
		}
		key := rateLimitPrefix + name + ":" + keyFn(c)
		ctx := c.UserContext()

		var (
			incr *redis.IntCmd
			pttl *redis.DurationCmd
		)
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pttl = pipe.PTTL(ctx, key)
			return nil
		})
		if err != nil {
			logger.Warn("rate limit lookup failed", slog.String("limiter", name), slog.Any("error", err))
			return c.Next()
		}

		// A counter without an expiry, whether new or left behind by an
		// earlier failure, gets one here.
		ttl := pttl.Val()
		if ttl < 0 {
			if err := cache.Expire(ctx, key, window).Err(); err != nil {
				logger.Warn("rate limit expiry failed", slog.String("limiter", name), slog.Any("error", err))
				cache.Del(ctx, key)
				return c.Next()
			}
			ttl = window
		}
		if incr.Val() > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Round(time.Second).Seconds())))
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
