package llm

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/metrics"
	"github.com/hr-qa/backend/pkg/circuitbreaker"
	"github.com/hr-qa/backend/pkg/logger"
	"github.com/hr-qa/backend/pkg/utils"
)

const (
	DefaultEmbeddingDim = 1536
	embeddingBatchSize  = 100
)

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	EmbeddingDim   int
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

// EmbeddingCache stores embeddings by text hash.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool)
	SetEmbedding(ctx context.Context, key string, embedding []float32) error
}

type Client struct {
	client         *openai.Client
	apiKey         string
	model          string
	embeddingModel string
	embeddingDim   int
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.Breaker
	cache          EmbeddingCache
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		TripAfter:     5,
		Cooldown:      30 * time.Second,
		TrialRequests: 5,
		CloseAfter:    2,
		ResetInterval: time.Minute,
		Logger:        logger.GetLogger(),
	})

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.Int("embedding_dim", cfg.EmbeddingDim),
	)

	return &Client{
		client:         openai.NewClientWithConfig(oc),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		embeddingDim:   cfg.EmbeddingDim,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		cb:             cb,
	}
}

// SetEmbeddingCache enables caching of single-text embeddings.
func (c *Client) SetEmbeddingCache(cache EmbeddingCache) {
	c.cache = cache
}

func (c *Client) EmbeddingDim() int {
	return c.embeddingDim
}

// Complete runs one chat completion through the circuit breaker. Errors are
// classified into the application taxonomy.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return errEmptyCompletion
		}

		c.recordUsage("completion", resp.Usage)
		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) recordUsage(kind string, usage openai.Usage) {
	metrics.LLMTokensUsed.WithLabelValues(c.model, kind+"_prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.model, kind+"_completion").Add(float64(usage.CompletionTokens))
}

// ZeroVector returns the all-zero embedding of the configured dimension.
func (c *Client) ZeroVector() []float32 {
	return make([]float32, c.embeddingDim)
}

// Embed returns the embedding of text. Empty text and any provider failure
// yield ZeroVector instead of an error.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return c.ZeroVector()
	}

	key := utils.HashString(c.embeddingModel + ":" + text)
	if c.cache != nil {
		if v, ok := c.cache.GetEmbedding(ctx, key); ok && len(v) == c.embeddingDim {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return v
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	vectors, err := c.embed(ctx, []string{text})
	if err != nil || len(vectors) != 1 || len(vectors[0]) != c.embeddingDim {
		logger.Warn("Embedding failed, using zero vector", zap.Error(err))
		return c.ZeroVector()
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, key, vectors[0]); err != nil {
			logger.Debug("Failed to cache embedding", zap.Error(err))
		}
	}
	return vectors[0]
}

// EmbedBatch embeds texts in sub-batches. The result has one entry per input,
// in input order; entries whose sub-batch failed, and empty texts, are zero
// vectors.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var (
			inputs    []string
			positions []int
		)
		for i := start; i < end; i++ {
			if strings.TrimSpace(texts[i]) == "" {
				continue
			}
			inputs = append(inputs, texts[i])
			positions = append(positions, i)
		}
		if len(inputs) == 0 {
			continue
		}

		vectors, err := c.embed(ctx, inputs)
		if err != nil {
			logger.Warn("Embedding sub-batch failed, using zero vectors",
				zap.Int("start", start),
				zap.Int("size", len(inputs)),
				zap.Error(err),
			)
			continue
		}
		for j, pos := range positions {
			if j < len(vectors) && len(vectors[j]) == c.embeddingDim {
				out[pos] = vectors[j]
			}
		}
	}

	for i := range out {
		if out[i] == nil {
			out[i] = c.ZeroVector()
		}
	}
	logger.Debug("Batch embeddings generated", zap.Int("count", len(out)))
	return out
}

// embed returns vectors positioned by the response's index field.
func (c *Client) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vectors [][]float32
	err := c.cb.Execute(ctx, func() error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: inputs,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return classifyError(err)
		}

		c.recordUsage("embedding", resp.Usage)
		vectors = make([][]float32, len(inputs))
		for _, d := range resp.Data {
			if d.Index >= 0 && d.Index < len(vectors) {
				vectors[d.Index] = d.Embedding
			}
		}
		return nil
	})
	return vectors, err
}
