package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/hr-qa/backend/pkg/errors"
	"github.com/hr-qa/backend/pkg/logger"
)

const (
	queryPrefix     = "hrqa:query:"
	embeddingPrefix = "hrqa:embedding:"
	metricPrefix    = "hrqa:metric:"
)

type Options struct {
	Addr         string
	Password     string
	DB           int
	EmbeddingTTL time.Duration
}

type Client struct {
	client       *redis.Client
	embeddingTTL time.Duration
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewBackendUnavailableError("failed to connect to redis", err)
	}

	ttl := opts.EmbeddingTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	logger.Info("Redis client initialized", zap.String("addr", opts.Addr))

	return &Client{client: client, embeddingTTL: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return apperrors.NewBackendUnavailableError("redis ping failed", err)
	}
	return nil
}

// Get returns a cached query envelope. Misses and Redis errors both report
// false; errors are logged.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, queryPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Query cache read failed", zap.Error(err))
		return nil, false
	}

	logger.Debug("Query cache hit", zap.String("query_hash", key))
	return data, true
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, queryPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set query cache: %w", err)
	}

	logger.Debug("Query cached", zap.String("query_hash", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, embeddingPrefix+textHash, data, c.embeddingTTL).Err(); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool) {
	data, err := c.client.Get(ctx, embeddingPrefix+textHash).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		logger.Warn("Discarding unreadable cached embedding", zap.Error(err))
		return nil, false
	}
	return embedding, true
}

// InvalidateQueries drops every cached envelope, for use after the employee
// data changes.
func (c *Client) InvalidateQueries(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, queryPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
			continue
		}
		removed++
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Query cache invalidated", zap.Int("removed", removed))
	return removed, nil
}

func (c *Client) IncrementMetric(ctx context.Context, metricName string) error {
	return c.client.Incr(ctx, metricPrefix+metricName).Err()
}

func (c *Client) GetMetric(ctx context.Context, metricName string) (int64, error) {
	val, err := c.client.Get(ctx, metricPrefix+metricName).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
