package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hr-qa/backend/pkg/errors"
)

const testDim = 4

type fakeOpenAI struct {
	mu          sync.Mutex
	chatStatus  int
	chatReply   string
	chatDelay   time.Duration
	chatCalls   int
	embedStatus int
	embedCalls  int
	embedInputs [][]string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		f.mu.Lock()
		f.chatCalls++
		status, reply, delay := f.chatStatus, f.chatReply, f.chatDelay
		f.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeAPIError(w, status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6},
		})

	case strings.HasSuffix(r.URL.Path, "/embeddings"):
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.embedCalls++
		f.embedInputs = append(f.embedInputs, req.Input)
		status := f.embedStatus
		f.mu.Unlock()

		if status != 0 {
			writeAPIError(w, status)
			return
		}

		// Returned in reverse order to exercise index-based placement.
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, testDim)
			vec[0] = float32(len(req.Input[i]))
			data = append(data, map[string]interface{}{"object": "embedding", "index": i, "embedding": vec})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list", "data": data, "model": "text-embedding-ada-002",
			"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})

	default:
		http.NotFound(w, r)
	}
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": http.StatusText(status),
			"type":    "invalid_request_error",
			"code":    "error",
		},
	})
}

func newTestClient(t *testing.T, fake *fakeOpenAI, apiKey string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		APIKey:         apiKey,
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4o",
		EmbeddingModel: "text-embedding-ada-002",
		EmbeddingDim:   testDim,
		MaxTokens:      50,
		Timeout:        2 * time.Second,
	})
}

func TestEmbedEmptyReturnsZeroVector(t *testing.T) {
	fake := &fakeOpenAI{}
	c := newTestClient(t, fake, "sk-test")

	v := c.Embed(context.Background(), "")
	require.Len(t, v, testDim)
	for _, x := range v {
		assert.Zero(t, x)
	}
	assert.Zero(t, fake.embedCalls)
}

func TestEmbedDefaultDimensionSentinel(t *testing.T) {
	c := NewClient(Config{APIKey: "sk-test", EmbeddingModel: "text-embedding-ada-002"})

	v := c.Embed(context.Background(), "   ")
	require.Len(t, v, 1536)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEmbedFailureReturnsZeroVector(t *testing.T) {
	fake := &fakeOpenAI{embedStatus: http.StatusInternalServerError}
	c := newTestClient(t, fake, "sk-test")

	v := c.Embed(context.Background(), "python developer")
	assert.Equal(t, make([]float32, testDim), v)
}

func TestEmbedUsesCache(t *testing.T) {
	fake := &fakeOpenAI{}
	c := newTestClient(t, fake, "sk-test")
	cache := newMemCache()
	c.SetEmbeddingCache(cache)

	first := c.Embed(context.Background(), "abc")
	second := c.Embed(context.Background(), "abc")

	assert.Equal(t, float32(3), first[0])
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.embedCalls)
}

func TestEmbedBatchKeepsPositions(t *testing.T) {
	fake := &fakeOpenAI{}
	c := newTestClient(t, fake, "sk-test")

	out := c.EmbedBatch(context.Background(), []string{"a", "", "abc"})
	require.Len(t, out, 3)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, make([]float32, testDim), out[1])
	assert.Equal(t, float32(3), out[2][0])
	assert.Equal(t, [][]string{{"a", "abc"}}, fake.embedInputs)
}

func TestEmbedBatchFailureKeepsLength(t *testing.T) {
	fake := &fakeOpenAI{embedStatus: http.StatusServiceUnavailable}
	c := newTestClient(t, fake, "sk-test")

	texts := make([]string, embeddingBatchSize+5)
	for i := range texts {
		texts[i] = "text"
	}
	out := c.EmbedBatch(context.Background(), texts)
	require.Len(t, out, len(texts))
	for _, v := range out {
		assert.Equal(t, make([]float32, testDim), v)
	}
	assert.Equal(t, 2, fake.embedCalls)
}

func TestCompleteClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, apperrors.IsAuthentication},
		{http.StatusNotFound, apperrors.IsConfiguration},
		{http.StatusServiceUnavailable, apperrors.IsBackendUnavailable},
		{http.StatusTooManyRequests, apperrors.IsBackendUnavailable},
	}
	for _, tt := range tests {
		fake := &fakeOpenAI{chatStatus: tt.status}
		c := newTestClient(t, fake, "sk-test")

		_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
		require.Error(t, err)
		assert.True(t, tt.check(err), "status %d gave %v", tt.status, err)
	}
}

func TestClassifyIntentNormalizesAnswer(t *testing.T) {
	fake := &fakeOpenAI{chatReply: "  Count_Query.  "}
	c := newTestClient(t, fake, "sk-test")

	answer, err := c.ClassifyIntent(context.Background(), "how many people", []string{"count_query", "ranking"})
	require.NoError(t, err)
	assert.Equal(t, "count_query", answer)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]float32)}
}

func (m *memCache) GetEmbedding(_ context.Context, key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memCache) SetEmbedding(_ context.Context, key string, v []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v
	return nil
}
