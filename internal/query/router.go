package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/pipeline"
	"github.com/hr-qa/backend/internal/retrieval"
	apperrors "github.com/hr-qa/backend/pkg/errors"
)

// handlerResult is what a handler hands back to the router.
type handlerResult struct {
	results []Record
	count   int
	aiUsed  bool
}

type handlerFunc func(ctx context.Context, text string, entities EntitySet) (handlerResult, error)

// QueryPlan binds a classified query to the one handler that will answer it.
type QueryPlan struct {
	Intent   Intent
	Entities EntitySet
	Handler  string

	run handlerFunc
}

const (
	handlerCount     = "count"
	handlerRanking   = "ranking"
	handlerAnalytics = "analytics"
	handlerSearch    = "search"
	handlerNone      = "unroutable"
)

// Plan selects the handler for intent. Every Intent value has a case; an
// out-of-range value gets a handler that fails with a QueryExecutionError.
func (e *Engine) Plan(intent Intent, entities EntitySet) QueryPlan {
	plan := QueryPlan{Intent: intent, Entities: entities}
	switch intent {
	case IntentCount:
		plan.Handler, plan.run = handlerCount, e.handleCount
	case IntentRanking:
		plan.Handler, plan.run = handlerRanking, e.handleRanking
	case IntentAnalytics:
		plan.Handler, plan.run = handlerAnalytics, e.handleAnalytics
	case IntentEmployeeSearch, IntentSkillSearch, IntentDepartmentInfo, IntentComparison, IntentGeneralInfo:
		plan.Handler, plan.run = handlerSearch, e.handleSearch
	default:
		plan.Handler, plan.run = handlerNone, unroutable(intent)
	}
	return plan
}

func unroutable(intent Intent) handlerFunc {
	return func(context.Context, string, EntitySet) (handlerResult, error) {
		return handlerResult{}, apperrors.NewQueryExecutionError(fmt.Sprintf("no handler for %s", intent), nil)
	}
}

// execute runs the plan's handler and converts any failure, including a
// panic, into a QueryExecutionError.
func (e *Engine) execute(ctx context.Context, plan QueryPlan, text string) (res handlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewQueryExecutionError(fmt.Sprintf("%s handler panicked: %v", plan.Handler, r), nil)
		}
	}()

	res, err = plan.run(ctx, text, plan.Entities)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeUnknown {
			err = apperrors.NewQueryExecutionError(plan.Handler+" handler failed", err)
		}
		return handlerResult{}, err
	}
	if res.results == nil {
		res.results = []Record{}
	}
	if res.count < 0 {
		res.count = 0
	}
	return res, nil
}

func filterOf(entities EntitySet) pipeline.Filter {
	return pipeline.Filter{
		Department: entities.Department,
		Role:       entities.Role,
		Location:   entities.Location,
	}
}

func (e *Engine) aggregate(ctx context.Context, plan pipeline.Plan) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	docs, err := e.store.Aggregate(ctx, plan.Collection, plan.Stages)
	if err != nil {
		return nil, apperrors.NewQueryExecutionError("aggregation failed", err)
	}
	return docs, nil
}

func (e *Engine) handleCount(ctx context.Context, _ string, entities EntitySet) (handlerResult, error) {
	n, err := e.countEmployees(ctx, entities)
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{results: []Record{}, count: n}, nil
}

func (e *Engine) countEmployees(ctx context.Context, entities EntitySet) (int, error) {
	docs, err := e.aggregate(ctx, e.builder.Count(filterOf(entities)))
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	return int(num(docs[0], pipeline.CountAlias)), nil
}

func (e *Engine) handleRanking(ctx context.Context, _ string, entities EntitySet) (handlerResult, error) {
	plan, err := e.builder.Ranking(filterOf(entities), string(entities.SortField), entities.SortOrder == SortAsc)
	if err != nil {
		return handlerResult{}, apperrors.NewQueryExecutionError("cannot build ranking plan", err)
	}

	docs, err := e.aggregate(ctx, plan)
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{results: docs, count: len(docs)}, nil
}

func (e *Engine) handleAnalytics(ctx context.Context, _ string, entities EntitySet) (handlerResult, error) {
	docs, err := e.aggregate(ctx, e.builder.Analytics(filterOf(entities)))
	if err != nil {
		return handlerResult{}, err
	}
	if len(docs) == 0 {
		return handlerResult{results: []Record{}}, nil
	}
	return handlerResult{results: docs[:1], count: int(num(docs[0], "count"))}, nil
}

// handleSearch uses hybrid retrieval while the language model is available
// and plain text search otherwise.
func (e *Engine) handleSearch(ctx context.Context, text string, entities EntitySet) (handlerResult, error) {
	normalized := retrieval.NormalizePlurals(strings.TrimSpace(text))
	if normalized == "" {
		return handlerResult{results: []Record{}}, nil
	}

	filter := retrieval.Filter{Department: entities.Department, Role: entities.Role}

	if e.aiAvailable() && e.embedder != nil {
		vector := e.embedder.Embed(ctx, normalized)
		docs := e.searcher.HybridSearch(ctx, normalized, vector, e.topK, filter)
		return handlerResult{results: docs, count: len(docs), aiUsed: true}, nil
	}

	docs := e.searcher.TextSearch(ctx, normalized, e.topK, filter)
	e.log.Debug("Text search completed", zap.Int("results", len(docs)))
	return handlerResult{results: docs, count: len(docs)}, nil
}
