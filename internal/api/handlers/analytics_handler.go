package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hr-qa/backend/internal/pipeline"
	"github.com/hr-qa/backend/internal/search/elastic"
	"github.com/hr-qa/backend/internal/storage/models"
)

// Index is the search-index surface used for suggestions and facets.
type Index interface {
	Suggest(ctx context.Context, prefix string, topK int) ([]string, error)
	Facets(ctx context.Context, fields []string) (map[string][]elastic.FacetValue, error)
}

// History summarizes recorded queries. It is optional.
type History interface {
	PerformanceSummary(ctx context.Context, topN int) (*models.PerformanceSummary, error)
}

const (
	defaultSuggestions = 5
	maxSuggestions     = 20
	topQueries         = 10
)

var defaultFacetFields = []string{"department", "role", "location"}

type AnalyticsHandler struct {
	engine   Engine
	index    Index
	history  History
	counters Counters
}

func NewAnalyticsHandler(engine Engine, index Index, history History, counters Counters) *AnalyticsHandler {
	return &AnalyticsHandler{
		engine:   engine,
		index:    index,
		history:  history,
		counters: counters,
	}
}

// Summary answers GET /api/v1/analytics/summary with head count, rating and
// salary statistics for the filtered employees.
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	summary, text, err := h.engine.AnalyticsSummary(c.UserContext(), entitiesFromQuery(c))
	if err != nil {
		return respondError(c, "failed to compute analytics", err)
	}
	return c.JSON(fiber.Map{"summary": summary, "response": text})
}

// Departments answers GET /api/v1/analytics/departments?group_by=department|role.
func (h *AnalyticsHandler) Departments(c *fiber.Ctx) error {
	groupBy := pipeline.GroupBy(c.Query("group_by", string(pipeline.GroupByDepartment)))
	if groupBy != pipeline.GroupByDepartment && groupBy != pipeline.GroupByRole {
		return respondError(c, "invalid request", validationError("group_by must be department or role"))
	}

	groups, text, err := h.engine.Compare(c.UserContext(), groupBy, entitiesFromQuery(c))
	if err != nil {
		return respondError(c, "failed to compare groups", err)
	}
	return c.JSON(fiber.Map{"group_by": groupBy, "groups": groups, "response": text})
}

func (h *AnalyticsHandler) Suggestions(c *fiber.Ctx) error {
	prefix := strings.TrimSpace(c.Query("q"))
	if prefix == "" || h.index == nil {
		return c.JSON(fiber.Map{"suggestions": []string{}})
	}

	limit := c.QueryInt("limit", defaultSuggestions)
	if limit <= 0 || limit > maxSuggestions {
		limit = defaultSuggestions
	}

	suggestions, err := h.index.Suggest(c.UserContext(), prefix, limit)
	if err != nil {
		return respondError(c, "failed to load suggestions", err)
	}
	return c.JSON(fiber.Map{"suggestions": suggestions})
}

func (h *AnalyticsHandler) Facets(c *fiber.Ctx) error {
	if h.index == nil {
		return c.JSON(fiber.Map{"facets": fiber.Map{}})
	}

	fields := defaultFacetFields
	if raw := c.Query("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}

	facets, err := h.index.Facets(c.UserContext(), fields)
	if err != nil {
		return respondError(c, "failed to load facets", err)
	}
	return c.JSON(fiber.Map{"facets": facets})
}

// Stats answers GET /api/v1/stats from the query history store.
func (h *AnalyticsHandler) Stats(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "query history is disabled"})
	}

	summary, err := h.history.PerformanceSummary(c.UserContext(), topQueries)
	if err != nil {
		return respondError(c, "failed to summarize query history", err)
	}

	body := fiber.Map{"performance": summary, "ai_available": h.engine.AIAvailable()}
	if h.counters != nil {
		if n, err := h.counters.GetMetric(c.UserContext(), queriesCounter); err == nil {
			body["api_queries"] = n
		}
	}
	return c.JSON(body)
}
