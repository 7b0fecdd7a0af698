package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/phoneauth/phoneauth/internal/apperr"
	"github.com/phoneauth/phoneauth/internal/auth"
	"github.com/phoneauth/phoneauth/internal/logging"
)

func newApp() *fiber.App {
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	app.Use(RequestID())
	app.Use(Audit(logger))
	return app
}

func decodeError(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var payload struct {
		Error map[string]any `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error
}

func TestErrorHandlerRendersKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.Validation("bad"), 400, "validation"},
		{apperr.Conflict("dup"), 409, "conflict"},
		{apperr.NotFound("gone"), 404, "not_found"},
		{apperr.Auth("no"), 401, "auth"},
		{apperr.RateExceeded("slow down").WithField("reissue_required", true), 429, "rate_exceeded"},
		{apperr.Upstream("provider", errors.New("boom")), 502, "upstream"},
		{errors.New("db exploded"), 500, "internal"},
	}
	for _, tc := range cases {
		app := newApp()
		app.Get("/", func(c *fiber.Ctx) error { return tc.err })

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.kind, tc.status, resp.StatusCode)
		}
		body := decodeError(t, resp.Body)
		if body["kind"] != tc.kind {
			t.Fatalf("expected kind %s got %v", tc.kind, body["kind"])
		}
		if tc.kind == "internal" && strings.Contains(body["message"].(string), "exploded") {
			t.Fatalf("internal cause leaked: %v", body["message"])
		}
		if tc.kind == "rate_exceeded" && body["reissue_required"] != true {
			t.Fatalf("expected reissue_required marker, got %v", body)
		}
	}
}

func TestBearer(t *testing.T) {
	validate := func(token string) (auth.Subject, error) {
		if token != "good" {
			return auth.Subject{}, apperr.Auth("invalid or expired token")
		}
		return auth.Subject{UserID: "u1", Phone: "84912345678"}, nil
	}
	app := newApp()
	app.Get("/me", Bearer(validate), func(c *fiber.Ctx) error {
		sub, ok := SubjectFrom(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.SendString(sub.UserID)
	})

	for _, tc := range []struct {
		header string
		status int
	}{
		{"", 401},
		{"Basic abc", 401},
		{"Bearer ", 401},
		{"Bearer bad", 401},
		{"Bearer good", 200},
		{"bearer good", 200},
	} {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("header %q: expected %d got %d", tc.header, tc.status, resp.StatusCode)
		}
	}
}

func TestRateLimitByPhone(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := newApp()
	app.Post("/otp", RateLimit(cache, "otp", 3, time.Minute, ByPhone("84"), logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(phone string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/otp", strings.NewReader(`{"phoneNumber":"`+phone+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 3; i++ {
		if got := send("0912345678"); got != 200 {
			t.Fatalf("request %d: expected 200 got %d", i+1, got)
		}
	}
	if got := send("0912345678"); got != 429 {
		t.Fatalf("expected 429 after limit, got %d", got)
	}
	if got := send("0987654321"); got != 200 {
		t.Fatalf("other phone must have its own window, got %d", got)
	}

	mr.FastForward(61 * time.Second)
	if got := send("0912345678"); got != 200 {
		t.Fatalf("window should reset, got %d", got)
	}
}

func TestRateLimitByPhoneIgnoresFormatting(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := newApp()
	app.Post("/otp", RateLimit(cache, "otp", 3, time.Minute, ByPhone("84"), logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	variants := []string{"0922222222", "84922222222", "+84922222222", "0922 222 222", "0922-222-222", "(0922)222222"}
	allowed := 0
	for _, v := range variants {
		req := httptest.NewRequest(fiber.MethodPost, "/otp", strings.NewReader(`{"phoneNumber":"`+v+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode == fiber.StatusOK {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("formatting variants must share one window, %d of %d allowed", allowed, len(variants))
	}
	if !mr.Exists(rateLimitPrefix + "otp:phone:84922222222") {
		t.Fatalf("expected counter keyed by the normalised number")
	}
}

func TestRateLimitWithoutRedisIsNoop(t *testing.T) {
	app := newApp()
	app.Get("/", RateLimit(nil, "auth", 1, time.Minute, ByIP, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("expected 200 got %d", resp.StatusCode)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "req-42" {
		t.Fatalf("expected request id in locals, got %q", body)
	}
}

func TestRateLimitRepairsCounterWithoutExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := newApp()
	app.Get("/", RateLimit(cache, "auth", 1, time.Minute, func(*fiber.Ctx) string { return "fixed" }, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// a counter stranded over the limit with no ttl
	key := rateLimitPrefix + "auth:fixed"
	if err := mr.Set(key, "5"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.StatusCode)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("counter must get the window as ttl, got %v", ttl)
	}

	mr.FastForward(61 * time.Second)
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("limit must lift after the window, got %d", resp.StatusCode)
	}
}
