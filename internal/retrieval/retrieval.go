// Package retrieval is the query-time search facade. Every call is bounded by
// a timeout and degrades to an empty result instead of returning an error.
package retrieval

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/metrics"
	"github.com/hr-qa/backend/pkg/logger"
)

type TextIndex interface {
	Search(ctx context.Context, query string, topK int, filters map[string]string, fields []string) ([]map[string]interface{}, error)
}

type VectorIndex interface {
	VectorSearch(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]map[string]interface{}, error)
}

// Filter narrows search results. Department is pushed down to the index as an
// exact match; Role is matched case-insensitively against the result's role
// so that "Senior Developer" satisfies "Developer".
type Filter struct {
	Department string
	Role       string
}

func (f Filter) indexFilters() map[string]string {
	if f.Department == "" {
		return nil
	}
	return map[string]string{"department": f.Department}
}

const (
	DefaultTimeout = 10 * time.Second
	// RerankScoreKey holds the fused score on hybrid results.
	RerankScoreKey = "reranker_score"
	rrfK           = 60
)

type Client struct {
	text    TextIndex
	vectors VectorIndex
	timeout time.Duration
	log     *zap.Logger
}

// NewClient builds the facade. vectors may be nil, in which case vector and
// hybrid search fall back to text-only behaviour.
func NewClient(text TextIndex, vectors VectorIndex, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		text:    text,
		vectors: vectors,
		timeout: timeout,
		log:     logger.GetLogger().Named("retrieval"),
	}
}

// TextSearch runs lexical search. It returns an empty slice on any failure.
func (c *Client) TextSearch(ctx context.Context, query string, topK int, filter Filter) []map[string]interface{} {
	docs := c.textSearch(ctx, query, topK, filter)
	docs = filter.apply(docs)
	metrics.RetrievalResults.WithLabelValues("text").Observe(float64(len(docs)))
	return docs
}

func (c *Client) textSearch(ctx context.Context, query string, topK int, filter Filter) []map[string]interface{} {
	if c.text == nil {
		return []map[string]interface{}{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	docs, err := c.text.Search(ctx, query, topK, filter.indexFilters(), nil)
	if err != nil {
		c.log.Warn("Text search failed", zap.String("query", query), zap.Error(err))
		metrics.BackendErrors.WithLabelValues("search").Inc()
		return []map[string]interface{}{}
	}
	if docs == nil {
		docs = []map[string]interface{}{}
	}
	return docs
}

// VectorSearch runs nearest-neighbour search. A zero vector carries no
// signal and yields no results.
func (c *Client) VectorSearch(ctx context.Context, embedding []float32, topK int, filter Filter) []map[string]interface{} {
	docs := filter.apply(c.vectorSearch(ctx, embedding, topK, filter))
	metrics.RetrievalResults.WithLabelValues("vector").Observe(float64(len(docs)))
	return docs
}

func (c *Client) vectorSearch(ctx context.Context, embedding []float32, topK int, filter Filter) []map[string]interface{} {
	if c.vectors == nil || isZero(embedding) {
		return []map[string]interface{}{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	docs, err := c.vectors.VectorSearch(ctx, embedding, topK, filter.indexFilters())
	if err != nil {
		c.log.Warn("Vector search failed", zap.Error(err))
		metrics.BackendErrors.WithLabelValues("vector").Inc()
		return []map[string]interface{}{}
	}
	if docs == nil {
		docs = []map[string]interface{}{}
	}
	return docs
}

// HybridSearch fuses lexical and vector rankings with reciprocal rank fusion.
// The fused score is stored under RerankScoreKey and results are ordered by it.
func (c *Client) HybridSearch(ctx context.Context, query string, embedding []float32, topK int, filter Filter) []map[string]interface{} {
	candidates := topK * 2
	lexical := filter.apply(c.textSearch(ctx, query, candidates, filter))
	semantic := filter.apply(c.vectorSearch(ctx, embedding, candidates, filter))

	docs := FuseRRF([][]map[string]interface{}{lexical, semantic}, rrfK)
	if len(docs) > topK {
		docs = docs[:topK]
	}
	metrics.RetrievalResults.WithLabelValues("hybrid").Observe(float64(len(docs)))
	return docs
}

// apply keeps documents whose role contains f.Role and whose department, when
// present, equals f.Department.
func (f Filter) apply(docs []map[string]interface{}) []map[string]interface{} {
	if f.Department == "" && f.Role == "" {
		return docs
	}
	out := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		if f.Department != "" {
			if dept, ok := d["department"].(string); ok && !strings.EqualFold(dept, f.Department) {
				continue
			}
		}
		if f.Role != "" {
			role, _ := d["role"].(string)
			if !strings.Contains(strings.ToLower(role), strings.ToLower(f.Role)) {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
