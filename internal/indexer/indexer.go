// Package indexer rebuilds the employee search index from the document
// store: one flat profile per employee, a combined text field for lexical
// search and, when a language model is available, a profile embedding.
package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/pipeline"
	"github.com/hr-qa/backend/internal/vector/milvus"
	"github.com/hr-qa/backend/pkg/logger"
)

type DocumentStore interface {
	Aggregate(ctx context.Context, collection string, stages mongo.Pipeline) ([]map[string]interface{}, error)
}

// TextIndex receives the profile documents.
type TextIndex interface {
	Upload(ctx context.Context, docs []map[string]interface{}) error
	Delete(ctx context.Context, ids []string) error
}

// VectorSink receives embeddings when vectors live outside the text index.
type VectorSink interface {
	Insert(ctx context.Context, vectors []milvus.EmployeeVector) error
}

// BatchEmbedder returns one vector per input, all zeros for failures.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// QueryCache is flushed after the index changes.
type QueryCache interface {
	InvalidateQueries(ctx context.Context) (int, error)
}

const (
	DefaultBatchSize = 50
	CombinedField    = "combined_text"
	idPrefix         = "emp_"
)

type Stats struct {
	Employees     int `json:"employees"`
	Uploaded      int `json:"uploaded"`
	Embedded      int `json:"embedded"`
	FailedBatches int `json:"failed_batches"`
}

type Indexer struct {
	store       DocumentStore
	text        TextIndex
	vectors     VectorSink
	embedder    BatchEmbedder
	cache       QueryCache
	builder     *pipeline.Builder
	vectorField string
	batchSize   int
}

type Option func(*Indexer)

// WithEmbedder stores profile embeddings under field in the text index, or
// in sink when it is non-nil.
func WithEmbedder(embedder BatchEmbedder, field string, sink VectorSink) Option {
	return func(ix *Indexer) {
		ix.embedder = embedder
		ix.vectorField = field
		ix.vectors = sink
	}
}

func WithQueryCache(cache QueryCache) Option {
	return func(ix *Indexer) { ix.cache = cache }
}

func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

func New(store DocumentStore, text TextIndex, opts ...Option) *Indexer {
	ix := &Indexer{
		store:     store,
		text:      text,
		builder:   pipeline.NewBuilder(0),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Run indexes every employee. A failed batch is logged and counted; the run
// only fails when the profiles cannot be read at all.
func (ix *Indexer) Run(ctx context.Context) (Stats, error) {
	plan := ix.builder.Profiles()
	profiles, err := ix.store.Aggregate(ctx, plan.Collection, plan.Stages)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load employee profiles: %w", err)
	}

	stats := Stats{Employees: len(profiles)}
	logger.Info("Indexing employees", zap.Int("employees", len(profiles)))

	for start := 0; start < len(profiles); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(profiles) {
			end = len(profiles)
		}

		uploaded, embedded, err := ix.indexBatch(ctx, profiles[start:end])
		if err != nil {
			stats.FailedBatches++
			logger.Error("Failed to index batch", zap.Int("offset", start), zap.Error(err))
			continue
		}
		stats.Uploaded += uploaded
		stats.Embedded += embedded
	}

	ix.invalidate(ctx)

	logger.Info("Indexing completed",
		zap.Int("uploaded", stats.Uploaded),
		zap.Int("embedded", stats.Embedded),
		zap.Int("failed_batches", stats.FailedBatches),
	)
	return stats, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, profiles []map[string]interface{}) (int, int, error) {
	docs := make([]map[string]interface{}, len(profiles))
	texts := make([]string, len(profiles))
	for i, p := range profiles {
		docs[i] = Prepare(p)
		texts[i] = docs[i][CombinedField].(string)
	}

	embedded := 0
	var vectors []milvus.EmployeeVector
	if ix.embedder != nil {
		for i, emb := range ix.embedder.EmbedBatch(ctx, texts) {
			if isZero(emb) {
				continue
			}
			embedded++
			if ix.vectors != nil {
				vectors = append(vectors, employeeVector(docs[i], emb))
			} else if ix.vectorField != "" {
				docs[i][ix.vectorField] = emb
			}
		}
	}

	if err := ix.text.Upload(ctx, docs); err != nil {
		return 0, 0, err
	}
	if len(vectors) > 0 {
		if err := ix.vectors.Insert(ctx, vectors); err != nil {
			return len(docs), 0, err
		}
	}
	return len(docs), embedded, nil
}

// Remove deletes employees from the text index by employee id.
func (ix *Indexer) Remove(ctx context.Context, employeeIDs []string) error {
	ids := make([]string, len(employeeIDs))
	for i, id := range employeeIDs {
		ids[i] = idPrefix + id
	}
	if err := ix.text.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete employees: %w", err)
	}
	ix.invalidate(ctx)
	return nil
}

func (ix *Indexer) invalidate(ctx context.Context) {
	if ix.cache == nil {
		return
	}
	if _, err := ix.cache.InvalidateQueries(ctx); err != nil {
		logger.Warn("Failed to invalidate query cache", zap.Error(err))
	}
}

var (
	stringFields = []string{
		"full_name", "email", "location", "department", "role", "work_mode", "employment_type",
		"certifications", "improvement_areas", "current_project",
	}
	intFields   = []string{"performance_rating", "current_salary", "leave_balance", "leave_days_taken"}
	floatFields = []string{"total_experience_years"}
)

// combinedParts are the labelled fields joined into the lexical search text.
var combinedParts = []struct {
	label string
	field string
}{
	{"Name", "full_name"},
	{"Department", "department"},
	{"Role", "role"},
	{"Location", "location"},
	{"Work Mode", "work_mode"},
	{"Employment Type", "employment_type"},
	{"Certifications", "certifications"},
	{"Current Project", "current_project"},
	{"Improvement Areas", "improvement_areas"},
}

// Prepare converts a stored profile into an index document with coerced
// types. Unparseable numbers become zero.
func Prepare(profile map[string]interface{}) map[string]interface{} {
	employeeID := cast.ToString(profile[pipeline.JoinKey])
	doc := map[string]interface{}{
		"id":             idPrefix + employeeID,
		pipeline.JoinKey: employeeID,
	}

	for _, f := range stringFields {
		doc[f] = cast.ToString(profile[f])
	}
	for _, f := range intFields {
		doc[f] = cast.ToInt(cast.ToFloat64(profile[f]))
	}
	for _, f := range floatFields {
		doc[f] = cast.ToFloat64(profile[f])
	}

	var parts []string
	for _, p := range combinedParts {
		if v := doc[p.field].(string); v != "" {
			parts = append(parts, p.label+": "+v)
		}
	}
	if rating := doc["performance_rating"].(int); rating > 0 {
		parts = append(parts, fmt.Sprintf("Performance Rating: %d", rating))
	}
	if years := doc["total_experience_years"].(float64); years > 0 {
		parts = append(parts, fmt.Sprintf("Experience: %g years", years))
	}
	doc[CombinedField] = strings.Join(parts, " | ")

	return doc
}

func employeeVector(doc map[string]interface{}, emb []float32) milvus.EmployeeVector {
	return milvus.EmployeeVector{
		EmployeeID: doc[pipeline.JoinKey].(string),
		FullName:   doc["full_name"].(string),
		Department: doc["department"].(string),
		Role:       doc["role"].(string),
		Location:   doc["location"].(string),
		Embedding:  emb,
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
