package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/middleware/validation"
	"github.com/hr-qa/backend/internal/pipeline"
	"github.com/hr-qa/backend/internal/query"
	"github.com/hr-qa/backend/internal/retrieval"
	"github.com/hr-qa/backend/pkg/logger"
)

// Engine is the query engine surface the HTTP layer depends on.
type Engine interface {
	ProcessQuery(ctx context.Context, text string) query.ResultEnvelope
	CountEmployees(ctx context.Context, entities query.EntitySet) (int, error)
	AnalyticsSummary(ctx context.Context, entities query.EntitySet) (query.Record, string, error)
	Compare(ctx context.Context, groupBy pipeline.GroupBy, entities query.EntitySet) ([]query.Record, string, error)
	AIAvailable() bool
}

type Searcher interface {
	TextSearch(ctx context.Context, query string, topK int, filter retrieval.Filter) []map[string]interface{}
}

// Counters is a shared request counter store. It is optional.
type Counters interface {
	IncrementMetric(ctx context.Context, name string) error
	GetMetric(ctx context.Context, name string) (int64, error)
}

const queriesCounter = "queries"

type QueryHandler struct {
	engine         Engine
	searcher       Searcher
	counters       Counters
	maxQueryLength int
}

func NewQueryHandler(engine Engine, searcher Searcher, counters Counters, maxQueryLength int) *QueryHandler {
	return &QueryHandler{
		engine:         engine,
		searcher:       searcher,
		counters:       counters,
		maxQueryLength: maxQueryLength,
	}
}

// HandleQuery answers POST /api/v1/query with the result envelope. Engine
// failures are reported inside the envelope, so the status is always 200
// once the request is valid.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	req, err := h.request(c)
	if err != nil {
		return respondError(c, "invalid request", err)
	}

	env := h.engine.ProcessQuery(c.UserContext(), req.Query)
	h.count(c.UserContext())

	return c.JSON(env)
}

// HandleSearch runs lexical search directly, bypassing intent routing.
func (h *QueryHandler) HandleSearch(c *fiber.Ctx) error {
	req, err := h.request(c)
	if err != nil {
		return respondError(c, "invalid request", err)
	}

	entities := query.ExtractEntities(req.Query)
	filter := retrieval.Filter{Department: entities.Department, Role: entities.Role}
	results := h.searcher.TextSearch(c.UserContext(), retrieval.NormalizePlurals(req.Query), req.TopK, filter)

	return c.JSON(fiber.Map{
		"query":    req.Query,
		"entities": entities,
		"results":  results,
		"count":    len(results),
	})
}

// EmployeeCount answers GET /api/v1/employee-count?department=&role=&location=.
func (h *QueryHandler) EmployeeCount(c *fiber.Ctx) error {
	entities := entitiesFromQuery(c)

	n, err := h.engine.CountEmployees(c.UserContext(), entities)
	if err != nil {
		return respondError(c, "failed to count employees", err)
	}

	return c.JSON(fiber.Map{
		"count":      n,
		"department": entities.Department,
		"role":       entities.Role,
		"location":   entities.Location,
		"response":   query.Synthesize(query.IntentCount, entities, nil, n),
	})
}

func (h *QueryHandler) request(c *fiber.Ctx) (validation.QueryRequest, error) {
	if req, ok := c.Locals(validation.LocalsKey).(validation.QueryRequest); ok {
		return req, nil
	}

	var req validation.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return req, validationError("invalid JSON body")
	}
	if verr := validation.Check(req, h.maxQueryLength); verr != nil {
		return req, verr
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	return req, nil
}

func (h *QueryHandler) count(ctx context.Context) {
	if h.counters == nil {
		return
	}
	if err := h.counters.IncrementMetric(ctx, queriesCounter); err != nil {
		logger.Warn("Failed to increment query counter", zap.Error(err))
	}
}

func entitiesFromQuery(c *fiber.Ctx) query.EntitySet {
	return query.EntitySet{
		Department: c.Query("department"),
		Role:       c.Query("role"),
		Location:   c.Query("location"),
		Skills:     []string{},
	}
}
