// Package milvus is the alternative vector backend: employee profile
// embeddings stored in a Milvus (or Zilliz Cloud) collection.
package milvus

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	apperrors "github.com/hr-qa/backend/pkg/errors"
	"github.com/hr-qa/backend/pkg/logger"
)

const vectorField = "embedding"

// filterFields are the scalar fields a search may filter on.
var filterFields = []string{"department", "role", "location"}

var outputFields = []string{"employee_id", "full_name", "department", "role", "location"}

type Config struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// EmployeeVector is one employee profile embedding with its filterable fields.
type EmployeeVector struct {
	EmployeeID string
	FullName   string
	Department string
	Role       string
	Location   string
	Embedding  []float32
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, apperrors.NewBackendUnavailableError("failed to create milvus client", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("collection", cfg.CollectionName),
	)

	return &Client{
		client:         c,
		collectionName: cfg.CollectionName,
		vectorDim:      cfg.VectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func varchar(name string, maxLength int) *entity.Field {
	return &entity.Field{
		Name:       name,
		DataType:   entity.FieldTypeVarChar,
		TypeParams: map[string]string{"max_length": fmt.Sprintf("%d", maxLength)},
	}
}

// EnsureCollection creates, indexes and loads the collection if it does not
// exist yet.
func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return apperrors.NewBackendUnavailableError("failed to check collection", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	pk := varchar("employee_id", 64)
	pk.PrimaryKey = true

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Employee profile embeddings",
		Fields: []*entity.Field{
			pk,
			{
				Name:       vectorField,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
			varchar("full_name", 256),
			varchar("department", 128),
			varchar("role", 128),
			varchar("location", 128),
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return apperrors.NewQueryExecutionError("failed to create collection", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 128)
	if err != nil {
		return apperrors.NewConfigurationError("invalid index parameters", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, vectorField, idx, false); err != nil {
		return apperrors.NewQueryExecutionError("failed to create index", err)
	}
	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return apperrors.NewQueryExecutionError("failed to load collection", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

func (m *Client) Insert(ctx context.Context, vectors []EmployeeVector) error {
	if len(vectors) == 0 {
		return nil
	}

	n := len(vectors)
	ids := make([]string, n)
	names := make([]string, n)
	departments := make([]string, n)
	roles := make([]string, n)
	locations := make([]string, n)
	embeddings := make([][]float32, n)

	for i, v := range vectors {
		if len(v.Embedding) != m.vectorDim {
			return apperrors.NewDataError(
				fmt.Sprintf("embedding for %s has %d dimensions, want %d", v.EmployeeID, len(v.Embedding), m.vectorDim), nil)
		}
		ids[i] = v.EmployeeID
		names[i] = v.FullName
		departments[i] = v.Department
		roles[i] = v.Role
		locations[i] = v.Location
		embeddings[i] = v.Embedding
	}

	_, err := m.client.Insert(ctx, m.collectionName, "",
		entity.NewColumnVarChar("employee_id", ids),
		entity.NewColumnFloatVector(vectorField, m.vectorDim, embeddings),
		entity.NewColumnVarChar("full_name", names),
		entity.NewColumnVarChar("department", departments),
		entity.NewColumnVarChar("role", roles),
		entity.NewColumnVarChar("location", locations),
	)
	if err != nil {
		return apperrors.NewQueryExecutionError("failed to insert embeddings", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return apperrors.NewQueryExecutionError("failed to flush", err)
	}

	logger.Info("Employee embeddings inserted", zap.Int("count", n))
	return nil
}

// VectorSearch returns the topK nearest employees. filters keys outside the
// scalar fields are ignored.
func (m *Client) VectorSearch(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]map[string]interface{}, error) {
	expr := buildExpr(filters)

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid search parameters", err)
	}

	results, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		vectorField,
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewBackendUnavailableError("milvus search failed", err)
	}

	docs := decodeResults(results)

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(docs)),
		zap.String("filters", expr),
	)
	return docs, nil
}

// buildExpr renders filters as a boolean expression in a stable field order.
func buildExpr(filters map[string]string) string {
	var parts []string
	for _, field := range filterFields {
		value, ok := filters[field]
		if !ok || value == "" {
			continue
		}
		value = strings.ReplaceAll(value, `"`, `\"`)
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, field, value))
	}
	return strings.Join(parts, " && ")
}

func decodeResults(results []client.SearchResult) []map[string]interface{} {
	docs := make([]map[string]interface{}, 0)
	for _, sr := range results {
		if sr.Err != nil {
			continue
		}
		for i := 0; i < sr.ResultCount; i++ {
			doc := make(map[string]interface{}, len(outputFields)+2)
			for _, name := range outputFields {
				col := sr.Fields.GetColumn(name)
				if col == nil {
					continue
				}
				if v, err := col.Get(i); err == nil {
					doc[name] = v
				}
			}
			if id, ok := doc["employee_id"]; ok {
				doc["id"] = id
			}
			if i < len(sr.Scores) {
				doc["score"] = float64(sr.Scores[i])
			}
			docs = append(docs, doc)
		}
	}
	sort.SliceStable(docs, func(a, b int) bool {
		sa, _ := docs[a]["score"].(float64)
		sb, _ := docs[b]["score"].(float64)
		return sa > sb
	})
	return docs
}
