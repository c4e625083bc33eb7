package query

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-qa/backend/internal/llm"
)

// rejectingOpenAI answers every request with 401, like a revoked API key.
func rejectingOpenAI(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestDegradedModeAfterRejectedAPIKey(t *testing.T) {
	srv, calls := rejectingOpenAI(t)
	client := llm.NewClient(llm.Config{
		APIKey:         "sk-revoked",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4o",
		EmbeddingModel: "text-embedding-ada-002",
		EmbeddingDim:   8,
		Timeout:        2 * time.Second,
	})
	availability := llm.NewProbe(client, time.Second)

	result := availability.Run(context.Background())
	require.False(t, result.Available)
	assert.Equal(t, llm.FailureAuthentication, result.Failure)
	startupCalls := calls.Load()

	searcher := &fakeSearcher{docs: []map[string]interface{}{
		{"employee_id": "7", "full_name": "Mina Okafor", "department": "Engineering", "role": "Developer"},
	}}
	e := newTestEngine(returning(), searcher, availability, WithEmbedder(client), WithIntentModel(client))

	env := e.ProcessQuery(context.Background(), "find python developers")

	assert.False(t, e.AIAvailable())
	assert.Equal(t, StatusSuccess, env.Status)
	assert.Equal(t, IntentEmployeeSearch, env.Intent)
	assert.False(t, env.AIUsed)
	assert.Equal(t, 1, env.Count)
	assert.Equal(t, 1, searcher.textCalls)
	assert.Zero(t, searcher.hybridCalls)
	assert.Equal(t, startupCalls, calls.Load(), "no model requests once marked unavailable")
}
