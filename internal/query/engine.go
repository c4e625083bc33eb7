package query

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/metrics"
	"github.com/hr-qa/backend/internal/pipeline"
	"github.com/hr-qa/backend/internal/retrieval"
	"github.com/hr-qa/backend/internal/storage/models"
	"github.com/hr-qa/backend/pkg/logger"
	"github.com/hr-qa/backend/pkg/utils"
)

// DocumentStore runs aggregation pipelines against a named collection.
type DocumentStore interface {
	Aggregate(ctx context.Context, collection string, stages mongo.Pipeline) ([]map[string]interface{}, error)
}

// Searcher is the retrieval facade. Implementations return an empty slice
// instead of an error when the backend fails.
type Searcher interface {
	TextSearch(ctx context.Context, query string, topK int, filter retrieval.Filter) []map[string]interface{}
	HybridSearch(ctx context.Context, query string, embedding []float32, topK int, filter retrieval.Filter) []map[string]interface{}
}

// Embedder returns a fixed-dimension vector, all zeros on failure.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Availability reports whether the language model answered the startup probe.
type Availability interface {
	Available() bool
}

// IntentModel asks a language model to pick one of labels for text.
type IntentModel interface {
	ClassifyIntent(ctx context.Context, text string, labels []string) (string, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type HistoryRecorder interface {
	InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error
}

const (
	defaultTopK         = 5
	defaultStoreTimeout = 15 * time.Second
	defaultCacheTTL     = 300 * time.Second
	intentTimeout       = 10 * time.Second
)

type Engine struct {
	store    DocumentStore
	searcher Searcher
	ai       Availability
	embedder Embedder
	intents  IntentModel
	cache    Cache
	history  HistoryRecorder
	builder  *pipeline.Builder

	aiIntent     bool
	topK         int
	storeTimeout time.Duration
	cacheTTL     time.Duration
	log          *zap.Logger
}

type Option func(*Engine)

func WithEmbedder(embedder Embedder) Option {
	return func(e *Engine) { e.embedder = embedder }
}

// WithIntentModel enables the AI-enriched intent path. It is only consulted
// while the language model is available; the rule classifier is the fallback.
func WithIntentModel(model IntentModel) Option {
	return func(e *Engine) {
		e.intents = model
		e.aiIntent = model != nil
	}
}

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

func WithHistory(history HistoryRecorder) Option {
	return func(e *Engine) { e.history = history }
}

func WithRankingLimit(limit int) Option {
	return func(e *Engine) { e.builder = pipeline.NewBuilder(limit) }
}

func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine wires the engine to its collaborators. ai may be nil, which is
// the same as a language model that never became available.
func NewEngine(store DocumentStore, searcher Searcher, ai Availability, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		searcher:     searcher,
		ai:           ai,
		builder:      pipeline.NewBuilder(pipeline.DefaultRankingLimit),
		topK:         defaultTopK,
		storeTimeout: defaultStoreTimeout,
		cacheTTL:     defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.GetLogger().Named("query")
	}
	return e
}

func (e *Engine) aiAvailable() bool {
	return e.ai != nil && e.ai.Available()
}

// AIAvailable reports the startup probe outcome.
func (e *Engine) AIAvailable() bool {
	return e.aiAvailable()
}

// ProcessQuery answers text. It never fails: backend and handler errors are
// reported through the envelope's Status and Response. Cancelling ctx does not
// interrupt a query that has started; each backend call has its own timeout.
func (e *Engine) ProcessQuery(ctx context.Context, text string) ResultEnvelope {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	queryID := uuid.New().String()
	log := e.log.With(zap.String("query_id", queryID))

	log.Info("Processing query", zap.String("query", text))

	key := utils.QueryKey(text)
	if env, ok := e.cached(ctx, key); ok {
		env.ID = queryID
		env.Query = text
		env.Cached = true
		env.AIUsed = false
		env.ExecutionTimeMS = elapsedMS(start)
		e.finish(ctx, log, env)
		return env
	}

	intent, entities, intentAI := e.classify(ctx, text)
	plan := e.Plan(intent, entities)

	env := ResultEnvelope{
		ID:       queryID,
		Query:    text,
		Intent:   intent,
		Entities: entities,
		Status:   StatusSuccess,
	}

	res, err := e.execute(ctx, plan, text)
	if err != nil {
		log.Error("Query handler failed",
			zap.String("handler", plan.Handler),
			zap.String("intent", intent.String()),
			zap.Error(err),
		)
		metrics.HandlerErrors.WithLabelValues(plan.Handler).Inc()

		env.Results = []Record{}
		env.Count = 0
		env.Status = StatusError
		env.Response = errorResponse
	} else {
		env.Results = res.results
		env.Count = res.count
		env.Response = Synthesize(intent, entities, res.results, res.count)
	}
	env.AIUsed = e.aiAvailable() && (intentAI || res.aiUsed)
	env.ExecutionTimeMS = elapsedMS(start)

	if env.Status == StatusSuccess {
		e.remember(ctx, key, env)
	}
	e.finish(ctx, log, env)
	return env
}

// classify runs the rule classifier and, when enabled, lets the language
// model override the intent. Entities always come from the rules. The flag is
// true only when the model's answer was used.
func (e *Engine) classify(ctx context.Context, text string) (Intent, EntitySet, bool) {
	intent, entities := Analyze(text)
	if !e.aiIntent || !e.aiAvailable() || strings.TrimSpace(text) == "" {
		return intent, entities, false
	}

	ctx, cancel := context.WithTimeout(ctx, intentTimeout)
	defer cancel()

	labels := make([]string, 0, len(intentNames))
	for _, i := range AllIntents() {
		labels = append(labels, i.String())
	}

	answer, err := e.intents.ClassifyIntent(ctx, text, labels)
	if err != nil {
		e.log.Warn("AI intent classification failed, using rules", zap.Error(err))
		return intent, entities, false
	}
	aiIntent, ok := ParseIntent(answer)
	if !ok {
		e.log.Warn("AI intent not recognised, using rules", zap.String("answer", answer))
		return intent, entities, false
	}
	if aiIntent == IntentRanking && intent != IntentRanking {
		resolveRanking(strings.ToLower(text), &entities)
	}
	return aiIntent, entities, true
}

func (e *Engine) cached(ctx context.Context, key string) (ResultEnvelope, bool) {
	if e.cache == nil {
		return ResultEnvelope{}, false
	}
	data, ok := e.cache.Get(ctx, key)
	if !ok {
		metrics.CacheMisses.WithLabelValues("query").Inc()
		return ResultEnvelope{}, false
	}
	var env ResultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		e.log.Warn("Discarding unreadable cached envelope", zap.Error(err))
		metrics.CacheMisses.WithLabelValues("query").Inc()
		return ResultEnvelope{}, false
	}
	if env.Results == nil {
		env.Results = []Record{}
	}
	metrics.CacheHits.WithLabelValues("query").Inc()
	return env, true
}

func (e *Engine) remember(ctx context.Context, key string, env ResultEnvelope) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		e.log.Warn("Failed to encode envelope for cache", zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cacheTTL); err != nil {
		e.log.Warn("Failed to cache envelope", zap.Error(err))
	}
}

// finish records metrics and history for a completed query. History failures
// are logged and otherwise ignored.
func (e *Engine) finish(ctx context.Context, log *zap.Logger, env ResultEnvelope) {
	metrics.QueryDuration.WithLabelValues(env.Intent.String()).Observe(env.ExecutionTimeMS / 1000)
	metrics.QueryTotal.WithLabelValues(env.Intent.String(), string(env.Status)).Inc()

	if e.history != nil {
		record := &models.QueryRecord{
			ID:          env.ID,
			QueryText:   env.Query,
			Intent:      env.Intent.String(),
			Status:      string(env.Status),
			ResultCount: env.Count,
			AIUsed:      env.AIUsed,
			CacheHit:    env.Cached,
			LatencyMS:   env.ExecutionTimeMS,
			CreatedAt:   time.Now(),
		}
		if err := e.history.InsertQueryRecord(ctx, record); err != nil {
			log.Warn("Failed to record query history", zap.Error(err))
		}
	}

	log.Info("Query processed",
		zap.String("intent", env.Intent.String()),
		zap.String("status", string(env.Status)),
		zap.Int("count", env.Count),
		zap.Bool("ai_used", env.AIUsed),
		zap.Bool("cached", env.Cached),
		zap.Float64("execution_time_ms", env.ExecutionTimeMS),
	)
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// CountEmployees runs the count plan for entities' filters.
func (e *Engine) CountEmployees(ctx context.Context, entities EntitySet) (int, error) {
	return e.countEmployees(ctx, entities)
}

// AnalyticsSummary runs the analytics plan and returns its single summary
// record, or an empty record when nothing matched.
func (e *Engine) AnalyticsSummary(ctx context.Context, entities EntitySet) (Record, string, error) {
	res, err := e.handleAnalytics(ctx, "", entities)
	if err != nil {
		return nil, "", err
	}
	summary := Record{}
	if len(res.results) > 0 {
		summary = res.results[0]
	}
	return summary, Synthesize(IntentAnalytics, entities, res.results, res.count), nil
}

// Compare groups the filtered employees by department or role.
func (e *Engine) Compare(ctx context.Context, groupBy pipeline.GroupBy, entities EntitySet) ([]Record, string, error) {
	plan, err := e.builder.Comparison(filterOf(entities), groupBy)
	if err != nil {
		return nil, "", err
	}
	groups, err := e.aggregate(ctx, plan)
	if err != nil {
		return nil, "", err
	}
	if groups == nil {
		groups = []Record{}
	}
	return groups, SynthesizeComparison(groups), nil
}
