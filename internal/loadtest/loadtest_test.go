package loadtest

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-qa/backend/internal/query"
)

type fakeEngine struct {
	calls     atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
}

func (e *fakeEngine) ProcessQuery(_ context.Context, text string) query.ResultEnvelope {
	e.calls.Add(1)
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.maxFlight.Load()
		if n <= m || e.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	intent, _ := query.Analyze(text)
	status := query.StatusSuccess
	if strings.Contains(text, "fail") {
		status = query.StatusError
	}
	return query.ResultEnvelope{Query: text, Intent: intent, Status: status, Results: []query.Record{}}
}

func TestRunCountsOutcomes(t *testing.T) {
	engine := &fakeEngine{}
	r := NewRunner(engine, Config{
		Concurrency: 4,
		Iterations:  40,
		Queries:     []string{"how many in IT", "please fail", "top salary", "find analysts"},
	})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 40, report.Total)
	assert.EqualValues(t, 30, report.Successful)
	assert.EqualValues(t, 10, report.Failed)
	assert.InDelta(t, 0.75, report.SuccessRate, 1e-9)
	assert.EqualValues(t, 40, engine.calls.Load())
	assert.LessOrEqual(t, engine.maxFlight.Load(), int64(4))
	assert.EqualValues(t, 10, report.ByIntent["count_query"])
	assert.EqualValues(t, 10, report.ByIntent["ranking"])
	assert.LessOrEqual(t, report.Latency.MinMS, report.Latency.P95MS)
	assert.LessOrEqual(t, report.Latency.P95MS, report.Latency.MaxMS)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(&fakeEngine{}, Config{Iterations: 10}).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
}

func TestDefaults(t *testing.T) {
	r := NewRunner(&fakeEngine{}, Config{})
	assert.Equal(t, 10, r.cfg.Concurrency)
	assert.Equal(t, 100, r.cfg.Iterations)
	assert.Equal(t, DefaultQueries, r.cfg.Queries)
}

func TestSummarize(t *testing.T) {
	l := summarize([]float64{5, 1, 4, 2, 3, 6, 7, 8, 9, 10})

	assert.Equal(t, 1.0, l.MinMS)
	assert.Equal(t, 10.0, l.MaxMS)
	assert.Equal(t, 5.5, l.AvgMS)
	assert.Equal(t, 6.0, l.MedianMS)
	assert.Equal(t, 10.0, l.P95MS)
	assert.Equal(t, Latency{}, summarize(nil))
}
