package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/metrics"
	apperrors "github.com/hr-qa/backend/pkg/errors"
	"github.com/hr-qa/backend/pkg/logger"
)

// FailureKind classifies why the probe failed.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureAuthentication     FailureKind = "authentication"
	FailureConfiguration      FailureKind = "configuration"
	FailureBackendUnavailable FailureKind = "backend_unavailable"
	FailureOther              FailureKind = "other"
)

type ProbeResult struct {
	Available bool          `json:"available"`
	Failure   FailureKind   `json:"failure,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	err       error
}

func (r ProbeResult) Err() error {
	return r.err
}

// Probe tests the language model once. The outcome is fixed for the life of
// the process: later calls to Run return the first result without another
// request, and Available is safe for concurrent readers.
type Probe struct {
	client  *Client
	timeout time.Duration

	once      sync.Once
	available atomic.Bool
	result    ProbeResult
}

func NewProbe(client *Client, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Probe{client: client, timeout: timeout}
}

// Run issues the probe request the first time it is called.
func (p *Probe) Run(ctx context.Context) ProbeResult {
	p.once.Do(func() {
		p.result = p.probe(ctx)
		p.available.Store(p.result.Available)
		metrics.SetAIAvailable(p.result.Available)

		if p.result.Available {
			logger.Info("Language model available", zap.Duration("latency", p.result.Latency))
		} else {
			logger.Warn("Language model unavailable, running in degraded mode",
				zap.String("failure", string(p.result.Failure)),
				zap.String("error", p.result.Error),
			)
		}
	})
	return p.result
}

// Available reports the probe outcome. It is false until Run has completed.
func (p *Probe) Available() bool {
	return p.available.Load()
}

func (p *Probe) probe(ctx context.Context) ProbeResult {
	if p.client == nil || p.client.apiKey == "" {
		err := apperrors.NewConfigurationError("language model API key is not configured", nil)
		return ProbeResult{Failure: FailureConfiguration, Error: err.Error(), err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	_, err := p.client.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.client.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "test"}},
		MaxTokens:   5,
		Temperature: 0,
	})
	latency := time.Since(start)

	if err == nil {
		return ProbeResult{Available: true, Latency: latency}
	}

	if ctx.Err() == context.DeadlineExceeded {
		err = apperrors.NewBackendUnavailableError("language model probe timed out", err)
	} else {
		err = classifyError(err)
	}
	return ProbeResult{Failure: failureKind(err), Error: err.Error(), Latency: latency, err: err}
}

func failureKind(err error) FailureKind {
	switch {
	case apperrors.IsAuthentication(err):
		return FailureAuthentication
	case apperrors.IsConfiguration(err):
		return FailureConfiguration
	case apperrors.IsBackendUnavailable(err):
		return FailureBackendUnavailable
	default:
		return FailureOther
	}
}
