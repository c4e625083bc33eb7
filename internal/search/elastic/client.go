// Package elastic is the employee search index client. It covers query-time
// search (lexical and kNN) and the index maintenance operations.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	apperrors "github.com/hr-qa/backend/pkg/errors"
	"github.com/hr-qa/backend/pkg/logger"
)

type Config struct {
	Addresses   []string
	Username    string
	Password    string
	Index       string
	VectorField string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

type Client struct {
	es          *elasticsearch.Client
	index       string
	vectorField string
}

// DefaultFields are returned by Search when the caller names none.
var DefaultFields = []string{
	"id", "employee_id", "full_name", "department", "role", "location",
	"certifications", "current_project", "total_experience_years", "performance_rating",
}

// searchFields are matched by lexical search, with boosts.
var searchFields = []string{"full_name^3", "role^2", "department^2", "certifications^2", "combined_text"}

func NewClient(cfg Config) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: cfg.Transport,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to create elasticsearch client", err)
	}

	vectorField := cfg.VectorField
	if vectorField == "" {
		vectorField = "content_vector"
	}

	logger.Info("Elasticsearch client initialized",
		zap.Strings("addresses", cfg.Addresses),
		zap.String("index", cfg.Index),
	)

	return &Client{es: es, index: cfg.Index, vectorField: vectorField}, nil
}

func (c *Client) Index() string {
	return c.index
}

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return apperrors.NewBackendUnavailableError("elasticsearch ping failed", err)
	}
	defer res.Body.Close()
	return checkResponse(res, "ping")
}

// Search runs a lexical multi-field query. filters are exact term matches.
func (c *Client) Search(ctx context.Context, query string, topK int, filters map[string]string, fields []string) ([]map[string]interface{}, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}

	var must interface{}
	if strings.TrimSpace(query) == "" || query == "*" {
		must = map[string]interface{}{"match_all": map[string]interface{}{}}
	} else {
		must = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": searchFields,
				"type":   "best_fields",
			},
		}
	}

	body := map[string]interface{}{
		"size":    topK,
		"_source": fields,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": termFilters(filters),
			},
		},
	}

	resp, err := c.search(ctx, body)
	if err != nil {
		return nil, err
	}
	return resp.documents(), nil
}

// VectorSearch runs an approximate kNN query against the vector field.
func (c *Client) VectorSearch(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]map[string]interface{}, error) {
	knn := map[string]interface{}{
		"field":          c.vectorField,
		"query_vector":   embedding,
		"k":              topK,
		"num_candidates": topK * 10,
	}
	if tf := termFilters(filters); len(tf) > 0 {
		knn["filter"] = tf
	}

	body := map[string]interface{}{
		"size":    topK,
		"_source": DefaultFields,
		"knn":     knn,
	}

	resp, err := c.search(ctx, body)
	if err != nil {
		return nil, err
	}
	return resp.documents(), nil
}

// Upload indexes documents in one bulk request. Each document's "id" (or
// "employee_id") becomes the document id.
func (c *Client) Upload(ctx context.Context, docs []map[string]interface{}) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]interface{}{"_index": c.index}
		if id := documentID(doc); id != "" {
			meta["_id"] = id
		}
		if err := enc.Encode(map[string]interface{}{"index": meta}); err != nil {
			return apperrors.NewDataError("failed to encode bulk action", err)
		}
		if err := enc.Encode(doc); err != nil {
			return apperrors.NewDataError("failed to encode document", err)
		}
	}

	return c.bulk(ctx, &buf, len(docs))
}

// Delete removes documents by id.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		action := map[string]interface{}{"delete": map[string]interface{}{"_index": c.index, "_id": id}}
		if err := enc.Encode(action); err != nil {
			return apperrors.NewDataError("failed to encode bulk action", err)
		}
	}

	return c.bulk(ctx, &buf, len(ids))
}

// Count returns the number of documents in the index.
func (c *Client) Count(ctx context.Context) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(c.index),
	)
	if err != nil {
		return 0, apperrors.NewBackendUnavailableError("elasticsearch count failed", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "count"); err != nil {
		return 0, err
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, apperrors.NewDataError("failed to decode count response", err)
	}
	return out.Count, nil
}

// FacetValue is one bucket of a terms aggregation.
type FacetValue struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Facets returns the top values of each keyword field.
func (c *Client) Facets(ctx context.Context, fields []string) (map[string][]FacetValue, error) {
	aggs := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		aggs[f] = map[string]interface{}{"terms": map[string]interface{}{"field": f, "size": 50}}
	}

	resp, err := c.search(ctx, map[string]interface{}{"size": 0, "aggs": aggs})
	if err != nil {
		return nil, err
	}

	facets := make(map[string][]FacetValue, len(fields))
	for _, f := range fields {
		values := make([]FacetValue, 0)
		for _, b := range resp.Aggregations[f].Buckets {
			values = append(values, FacetValue{Value: fmt.Sprint(b.Key), Count: b.DocCount})
		}
		facets[f] = values
	}
	return facets, nil
}

// Suggest returns employee names that start with prefix.
func (c *Client) Suggest(ctx context.Context, prefix string, topK int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}

	body := map[string]interface{}{
		"size":    topK,
		"_source": []string{"full_name"},
		"query": map[string]interface{}{
			"match_phrase_prefix": map[string]interface{}{
				"full_name": map[string]interface{}{"query": prefix},
			},
		},
	}

	resp, err := c.search(ctx, body)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := make([]string, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		name, _ := h.Source["full_name"].(string)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

type searchHit struct {
	ID     string                 `json:"_id"`
	Score  float64                `json:"_score"`
	Source map[string]interface{} `json:"_source"`
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      interface{} `json:"key"`
			DocCount int64       `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// documents flattens hits into records carrying "id" and "score".
func (r *searchResponse) documents() []map[string]interface{} {
	docs := make([]map[string]interface{}, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		doc := make(map[string]interface{}, len(h.Source)+2)
		for k, v := range h.Source {
			doc[k] = v
		}
		if _, ok := doc["id"]; !ok {
			doc["id"] = h.ID
		}
		doc["score"] = h.Score
		docs = append(docs, doc)
	}
	return docs
}

func (c *Client) search(ctx context.Context, body map[string]interface{}) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewDataError("failed to encode search body", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, apperrors.NewBackendUnavailableError("elasticsearch search failed", err)
	}
	defer res.Body.Close()

	if err := checkResponse(res, "search"); err != nil {
		return nil, err
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, apperrors.NewDataError("failed to decode search response", err)
	}
	return &out, nil
}

func (c *Client) bulk(ctx context.Context, body io.Reader, n int) error {
	res, err := c.es.Bulk(body,
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(c.index),
		c.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return apperrors.NewBackendUnavailableError("elasticsearch bulk request failed", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "bulk"); err != nil {
		return err
	}

	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return apperrors.NewDataError("failed to decode bulk response", err)
	}
	if out.Errors {
		return apperrors.NewDataError("bulk request had item failures", nil)
	}

	logger.Info("Bulk request applied", zap.String("index", c.index), zap.Int("items", n))
	return nil
}

func termFilters(filters map[string]string) []interface{} {
	clauses := make([]interface{}, 0, len(filters))
	for field, value := range filters {
		if value == "" {
			continue
		}
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}
	return clauses
}

func documentID(doc map[string]interface{}) string {
	for _, key := range []string{"id", "employee_id"} {
		if v, ok := doc[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// checkResponse maps an error response onto the error taxonomy.
func checkResponse(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	msg := fmt.Sprintf("elasticsearch %s returned %s", op, res.Status())
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return apperrors.NewAuthenticationError(msg, nil)
	case res.StatusCode == http.StatusNotFound:
		return apperrors.NewConfigurationError(msg, nil)
	case res.StatusCode >= 500:
		return apperrors.NewBackendUnavailableError(msg, nil)
	default:
		return apperrors.NewQueryExecutionError(msg, nil)
	}
}
