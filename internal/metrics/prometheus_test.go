package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestSetAIAvailable(t *testing.T) {
	SetAIAvailable(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(AIAvailable))
	SetAIAvailable(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(AIAvailable))
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	Init()
	QueryTotal.WithLabelValues("count_query", "success").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `hrqa_query_total{intent="count_query",status="success"}`)
}

func TestHTTPMiddlewareCountsByRoute(t *testing.T) {
	app := fiber.New()
	app.Use(HTTPMiddleware())
	app.Get("/api/v1/employee-count", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadGateway, "down") })

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/v1/employee-count", "200"))
	_, err := app.Test(httptest.NewRequest("GET", "/api/v1/employee-count?department=IT", nil))
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/v1/employee-count", "200")))

	_, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequests.WithLabelValues("/boom", "502")))
}
