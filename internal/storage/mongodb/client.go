// Package mongodb is the document store behind the count, ranking and
// analytics handlers. It only runs aggregations; the employee data is loaded
// by a separate ingestion process.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	apperrors "github.com/hr-qa/backend/pkg/errors"
	"github.com/hr-qa/backend/pkg/logger"
)

type Options struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// New connects and pings. A failed ping is a BackendUnavailableError.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.URI == "" || opts.Database == "" {
		return nil, apperrors.NewConfigurationError("mongodb uri and database are required", nil)
	}

	clientOpts := mongoopts.Client().ApplyURI(opts.URI)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(opts.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to create mongodb client", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperrors.NewBackendUnavailableError("failed to ping mongodb", err)
	}

	logger.Info("MongoDB client initialized", zap.String("database", opts.Database))

	return &Client{client: client, database: client.Database(opts.Database)}, nil
}

// NewFromDatabase wraps an existing database handle.
func NewFromDatabase(db *mongo.Database) *Client {
	return &Client{client: db.Client(), database: db}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return apperrors.NewBackendUnavailableError("mongodb ping failed", err)
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Aggregate runs stages against collection and decodes every document.
func (c *Client) Aggregate(ctx context.Context, collection string, stages mongo.Pipeline) ([]map[string]interface{}, error) {
	cursor, err := c.database.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, classify(fmt.Sprintf("aggregation on %s failed", collection), err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(fmt.Sprintf("failed to read aggregation on %s", collection), err)
	}

	out := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		out = append(out, normalize(doc))
	}
	return out, nil
}

// normalize converts driver container types into plain maps and slices so
// records marshal to ordinary JSON.
func normalize(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return normalize(val)
	case bson.D:
		return normalize(val.Map())
	case bson.A:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = normalizeValue(item)
		}
		return items
	default:
		return val
	}
}

func classify(msg string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return apperrors.NewBackendUnavailableError(msg, err)
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.Code == 13 || cmdErr.Code == 18 {
			return apperrors.NewAuthenticationError(msg, err)
		}
		return apperrors.NewQueryExecutionError(msg, err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return apperrors.NewQueryExecutionError(msg, err)
	}
	return apperrors.NewDataError(msg, err)
}
