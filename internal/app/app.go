// Package app connects the configured backends and assembles the query
// engine. Both the API server and the CLI start from here.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/cache/redis"
	"github.com/hr-qa/backend/internal/indexer"
	"github.com/hr-qa/backend/internal/llm"
	"github.com/hr-qa/backend/internal/query"
	"github.com/hr-qa/backend/internal/retrieval"
	"github.com/hr-qa/backend/internal/search/elastic"
	"github.com/hr-qa/backend/internal/storage/mongodb"
	"github.com/hr-qa/backend/internal/storage/sqlite"
	"github.com/hr-qa/backend/internal/vector/milvus"
	"github.com/hr-qa/backend/pkg/config"
	"github.com/hr-qa/backend/pkg/logger"
	"github.com/hr-qa/backend/pkg/retry"
)

// App holds every connected backend. Redis, SQLite and Milvus are nil when
// disabled.
type App struct {
	Config    *config.Config
	Mongo     *mongodb.Client
	Elastic   *elastic.Client
	Milvus    *milvus.Client
	Redis     *redis.Client
	SQLite    *sqlite.Client
	LLM       *llm.Client
	Probe     *llm.Probe
	Retrieval *retrieval.Client
	Engine    *query.Engine
}

// New connects the required backends with retries and the optional ones
// best-effort. The language model probe runs once here.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	rc := retry.DefaultConfig()
	rc.Logger = logger.GetLogger()

	var err error
	a.Mongo, err = retry.DoWithResult(ctx, rc, func() (*mongodb.Client, error) {
		return mongodb.New(ctx, mongodb.Options{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			MaxPoolSize:    cfg.MongoDB.MaxPoolSize,
			ConnectTimeout: seconds(cfg.MongoDB.ConnectTimeoutSec),
		})
	})
	if err != nil {
		return nil, err
	}

	a.Elastic, err = elastic.NewClient(elastic.Config{
		Addresses:   cfg.Elasticsearch.Addresses,
		Username:    cfg.Elasticsearch.Username,
		Password:    cfg.Elasticsearch.Password,
		Index:       cfg.Elasticsearch.Index,
		VectorField: cfg.Elasticsearch.VectorField,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := retry.Do(ctx, rc, func() error { return a.Elastic.Ping(ctx) }); err != nil {
		// Search degrades to empty results, so a missing index is not fatal.
		logger.Warn("Elasticsearch not reachable", zap.Error(err))
	}

	if cfg.Retrieval.VectorBackend == "milvus" {
		a.Milvus, err = milvus.NewClient(ctx, milvus.Config{
			Endpoint:       cfg.Milvus.Endpoint,
			APIKey:         cfg.Milvus.APIKey,
			CollectionName: cfg.Milvus.CollectionName,
			VectorDim:      cfg.Milvus.VectorDim,
		})
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		a.Redis, err = redis.NewClient(ctx, redis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			EmbeddingTTL: seconds(cfg.Cache.EmbeddingTTLSec),
		})
		if err != nil {
			logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
			a.Redis = nil
		}
	}

	if cfg.SQLite.Enabled {
		a.SQLite, err = sqlite.NewClient(cfg.SQLite.Path)
		if err == nil {
			err = a.SQLite.InitSchema()
		}
		if err != nil {
			logger.Warn("SQLite unavailable, query history disabled", zap.Error(err))
			if a.SQLite != nil {
				_ = a.SQLite.Close()
			}
			a.SQLite = nil
		}
	}

	a.LLM = llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		EmbeddingDim:   cfg.LLM.EmbeddingDim,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        seconds(cfg.LLM.TimeoutSec),
	})
	if a.Redis != nil {
		a.LLM.SetEmbeddingCache(a.Redis)
	}
	a.Probe = llm.NewProbe(a.LLM, seconds(cfg.LLM.ProbeTimeoutSec))
	a.Probe.Run(ctx)

	var vectors retrieval.VectorIndex = a.Elastic
	if a.Milvus != nil {
		vectors = a.Milvus
	}
	a.Retrieval = retrieval.NewClient(a.Elastic, vectors, seconds(cfg.Retrieval.TimeoutSec))

	opts := []query.Option{
		query.WithEmbedder(a.LLM),
		query.WithRankingLimit(cfg.Engine.RankingLimit),
		query.WithTopK(cfg.Retrieval.TopK),
		query.WithStoreTimeout(seconds(cfg.MongoDB.QueryTimeoutSec)),
	}
	if cfg.Engine.AIIntent {
		opts = append(opts, query.WithIntentModel(a.LLM))
	}
	if a.Redis != nil {
		opts = append(opts, query.WithCache(a.Redis, seconds(cfg.Cache.QueryTTLSec)))
	}
	if a.SQLite != nil {
		opts = append(opts, query.WithHistory(a.SQLite))
	}
	a.Engine = query.NewEngine(a.Mongo, a.Retrieval, a.Probe, opts...)

	logger.Info("Query engine ready",
		zap.Bool("ai_available", a.Probe.Available()),
		zap.String("vector_backend", cfg.Retrieval.VectorBackend),
		zap.Bool("cache", a.Redis != nil),
		zap.Bool("history", a.SQLite != nil),
	)
	return a, nil
}

// Indexer builds an index rebuild job over the connected backends.
func (a *App) Indexer(batchSize int) *indexer.Indexer {
	opts := []indexer.Option{indexer.WithBatchSize(batchSize)}
	if a.Probe.Available() {
		var sink indexer.VectorSink
		if a.Milvus != nil {
			sink = a.Milvus
		}
		opts = append(opts, indexer.WithEmbedder(a.LLM, a.Config.Elasticsearch.VectorField, sink))
	}
	if a.Redis != nil {
		opts = append(opts, indexer.WithQueryCache(a.Redis))
	}
	return indexer.New(a.Mongo, a.Elastic, opts...)
}

func (a *App) Close(ctx context.Context) {
	if a.Mongo != nil {
		if err := a.Mongo.Close(ctx); err != nil {
			logger.Warn("Failed to close MongoDB client", zap.Error(err))
		}
	}
	if a.Milvus != nil {
		_ = a.Milvus.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.SQLite != nil {
		_ = a.SQLite.Close()
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
