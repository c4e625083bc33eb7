package metrics

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hrqa_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrqa_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"intent", "status"},
	)

	HandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrqa_handler_errors_total",
			Help: "Query handler failures caught by the router",
		},
		[]string{"handler"},
	)

	RetrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hrqa_retrieval_results_count",
			Help:    "Number of documents returned per retrieval call",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"mode"},
	)

	BackendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrqa_backend_errors_total",
			Help: "Errors returned by external backends",
		},
		[]string{"backend"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrqa_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	AIAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hrqa_ai_available",
			Help: "1 when the language model passed the startup probe",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrqa_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrqa_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrqa_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(HandlerErrors)
		prometheus.MustRegister(RetrievalResults)
		prometheus.MustRegister(BackendErrors)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(AIAvailable)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(HTTPRequests)
	})
}

// SetAIAvailable publishes the probe outcome as a gauge.
func SetAIAvailable(available bool) {
	if available {
		AIAvailable.Set(1)
		return
	}
	AIAvailable.Set(0)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// HTTPMiddleware counts requests by matched route pattern and status code.
func HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		code := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
		}
		HTTPRequests.WithLabelValues(c.Route().Path, strconv.Itoa(code)).Inc()
		return err
	}
}
