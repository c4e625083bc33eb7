// Package loadtest drives the query engine concurrently and reports latency
// percentiles and success rates.
package loadtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/query"
	"github.com/hr-qa/backend/pkg/logger"
)

type Processor interface {
	ProcessQuery(ctx context.Context, text string) query.ResultEnvelope
}

// DefaultQueries mixes every handler with the edge cases the engine must
// survive.
var DefaultQueries = []string{
	"Who are the developers?",
	"Find employees in IT department",
	"Show me managers",
	"Find developers with Python certification in IT department",
	"Who are the high-performing employees in Sales with AWS skills?",
	"How many employees work in IT?",
	"Count of developers in the company",
	"Top 5 employees by salary",
	"Who has the lowest leave balance?",
	"Average salary in Finance",
	"",
	"a",
	"xyz123",
	"employees employees employees",
}

type Config struct {
	Concurrency int
	Iterations  int
	Queries     []string
}

type Latency struct {
	MinMS    float64 `json:"min_ms"`
	MaxMS    float64 `json:"max_ms"`
	AvgMS    float64 `json:"avg_ms"`
	MedianMS float64 `json:"median_ms"`
	P95MS    float64 `json:"p95_ms"`
	P99MS    float64 `json:"p99_ms"`
}

type Report struct {
	Total             int64            `json:"total_requests"`
	Successful        int64            `json:"successful_requests"`
	Failed            int64            `json:"failed_requests"`
	CacheHits         int64            `json:"cache_hits"`
	Duration          time.Duration    `json:"duration"`
	RequestsPerSecond float64          `json:"requests_per_second"`
	SuccessRate       float64          `json:"success_rate"`
	Latency           Latency          `json:"latency"`
	ByIntent          map[string]int64 `json:"by_intent"`
}

type Runner struct {
	engine Processor
	cfg    Config
}

func NewRunner(engine Processor, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 100
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	return &Runner{engine: engine, cfg: cfg}
}

// Run issues Iterations queries on a pool of Concurrency workers, cycling
// through the configured queries. Cancelling ctx stops submitting new work.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	pool, err := ants.NewPool(r.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		total, successful, failed, cached atomic.Int64
		wg                                sync.WaitGroup
		mu                                sync.Mutex
	)
	latencies := make([]float64, 0, r.cfg.Iterations)
	byIntent := make(map[string]int64)

	logger.Info("Load test started",
		zap.Int("concurrency", r.cfg.Concurrency),
		zap.Int("iterations", r.cfg.Iterations),
	)

	start := time.Now()
	for i := 0; i < r.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		text := r.cfg.Queries[i%len(r.cfg.Queries)]

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			began := time.Now()
			env := r.engine.ProcessQuery(ctx, text)
			elapsed := float64(time.Since(began).Microseconds()) / 1000

			total.Add(1)
			if env.Status == query.StatusSuccess {
				successful.Add(1)
			} else {
				failed.Add(1)
			}
			if env.Cached {
				cached.Add(1)
			}

			mu.Lock()
			latencies = append(latencies, elapsed)
			byIntent[env.Intent.String()]++
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			return nil, fmt.Errorf("failed to submit query: %w", err)
		}
	}
	wg.Wait()
	duration := time.Since(start)

	report := &Report{
		Total:      total.Load(),
		Successful: successful.Load(),
		Failed:     failed.Load(),
		CacheHits:  cached.Load(),
		Duration:   duration,
		Latency:    summarize(latencies),
		ByIntent:   byIntent,
	}
	if report.Total > 0 {
		report.SuccessRate = float64(report.Successful) / float64(report.Total)
	}
	if duration > 0 {
		report.RequestsPerSecond = float64(report.Total) / duration.Seconds()
	}

	logger.Info("Load test completed",
		zap.Int64("total", report.Total),
		zap.Int64("failed", report.Failed),
		zap.Float64("p95_ms", report.Latency.P95MS),
	)
	return report, nil
}

func summarize(latencies []float64) Latency {
	if len(latencies) == 0 {
		return Latency{}
	}
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return Latency{
		MinMS:    sorted[0],
		MaxMS:    sorted[len(sorted)-1],
		AvgMS:    sum / float64(len(sorted)),
		MedianMS: percentile(sorted, 0.5),
		P95MS:    percentile(sorted, 0.95),
		P99MS:    percentile(sorted, 0.99),
	}
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
