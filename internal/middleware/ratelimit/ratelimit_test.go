package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(t *testing.T, perMinute int) (*RateLimiter, *clock) {
	t.Helper()
	rl := New(Config{RequestsPerMinute: perMinute})
	t.Cleanup(rl.Stop)
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	rl.now = c.now
	return rl, c
}

func TestAllowDrainsAndRefills(t *testing.T) {
	rl, c := newLimiter(t, 60)

	for i := 0; i < 60; i++ {
		ok, _ := rl.Allow("a")
		require.True(t, ok, "request %d", i)
	}
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "buckets are per key")

	c.t = c.t.Add(time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
}

func TestEvictIdle(t *testing.T) {
	rl, c := newLimiter(t, 10)
	rl.Allow("a")

	c.t = c.t.Add(11 * time.Minute)
	rl.evictIdle()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Empty(t, rl.buckets)
}

func TestMiddlewareRejectsWithRetryAfter(t *testing.T) {
	rl, _ := newLimiter(t, 1)
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Client-ID", "tester")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Client-ID", "tester")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}
