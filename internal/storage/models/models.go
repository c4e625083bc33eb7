package models

import "time"

// QueryRecord is one answered query as kept in the history store.
type QueryRecord struct {
	ID          string
	QueryText   string
	Intent      string
	Status      string
	ResultCount int
	AIUsed      bool
	CacheHit    bool
	LatencyMS   float64
	CreatedAt   time.Time
}

type IntentStat struct {
	Intent       string  `json:"intent"`
	Count        int     `json:"count"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

type QueryFrequency struct {
	QueryText string `json:"query"`
	Count     int    `json:"count"`
}

// PerformanceSummary aggregates the query history.
type PerformanceSummary struct {
	TotalQueries int              `json:"total_queries"`
	SuccessRate  float64          `json:"success_rate"`
	AvgLatencyMS float64          `json:"avg_latency_ms"`
	AIUsageRate  float64          `json:"ai_usage_rate"`
	CacheHitRate float64          `json:"cache_hit_rate"`
	ByIntent     []IntentStat     `json:"by_intent"`
	TopQueries   []QueryFrequency `json:"top_queries"`
}
