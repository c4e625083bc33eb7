package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Check is one dependency probed by the readiness endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	engine  Engine
	checks  []Check
	timeout time.Duration
	started time.Time
}

func NewHealthHandler(engine Engine, timeout time.Duration, checks ...Check) *HealthHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthHandler{
		engine:  engine,
		checks:  checks,
		timeout: timeout,
		started: time.Now(),
	}
}

// Health is a liveness check; it never touches a backend.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	mode := "full"
	if !h.engine.AIAvailable() {
		mode = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":         "healthy",
		"ai_available":   h.engine.AIAvailable(),
		"mode":           mode,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// Ready pings every dependency concurrently and answers 503 if any fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, check := range h.checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()
			status := "ok"
			if err := check.Ping(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			results[check.Name] = status
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	ready := true
	for _, status := range results {
		if status != "ok" {
			ready = false
		}
	}

	code := fiber.StatusOK
	if !ready {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"ready": ready, "checks": results})
}
