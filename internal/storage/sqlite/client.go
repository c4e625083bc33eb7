package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/storage/models"
	"github.com/hr-qa/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		intent TEXT NOT NULL,
		status TEXT NOT NULL,
		result_count INTEGER NOT NULL DEFAULT 0,
		ai_used INTEGER NOT NULL DEFAULT 0,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		latency_ms REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_query_intent ON query_history(intent);

	CREATE TABLE IF NOT EXISTS system_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		metric_name TEXT NOT NULL,
		metric_value REAL NOT NULL,
		tags TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_name ON system_metrics(metric_name);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

func (c *Client) InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, query_text, intent, status, result_count, ai_used,
			cache_hit, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx,
		query,
		record.ID,
		record.QueryText,
		record.Intent,
		record.Status,
		record.ResultCount,
		boolToInt(record.AIUsed),
		boolToInt(record.CacheHit),
		record.LatencyMS,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("intent", record.Intent),
	)
	return nil
}

// RecentQueries returns the newest records first.
func (c *Client) RecentQueries(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, query_text, intent, status, result_count, ai_used, cache_hit, latency_ms, created_at
		FROM query_history
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	records := make([]models.QueryRecord, 0)
	for rows.Next() {
		var r models.QueryRecord
		var aiUsed, cacheHit int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.QueryText, &r.Intent, &r.Status, &r.ResultCount,
			&aiUsed, &cacheHit, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.AIUsed = aiUsed == 1
		r.CacheHit = cacheHit == 1
		r.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, r)
	}

	return records, rows.Err()
}

// PerformanceSummary aggregates the whole history. topN bounds the list of
// most frequent queries.
func (c *Client) PerformanceSummary(ctx context.Context, topN int) (*models.PerformanceSummary, error) {
	summary := &models.PerformanceSummary{
		ByIntent:   make([]models.IntentStat, 0),
		TopQueries: make([]models.QueryFrequency, 0),
	}

	totals := `
		SELECT COUNT(*),
			COALESCE(AVG(CASE WHEN status = 'success' THEN 1.0 ELSE 0.0 END), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(AVG(ai_used), 0),
			COALESCE(AVG(cache_hit), 0)
		FROM query_history
	`
	err := c.db.QueryRowContext(ctx, totals).Scan(
		&summary.TotalQueries,
		&summary.SuccessRate,
		&summary.AvgLatencyMS,
		&summary.AIUsageRate,
		&summary.CacheHitRate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize query history: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT intent, COUNT(*), AVG(latency_ms)
		FROM query_history
		GROUP BY intent
		ORDER BY COUNT(*) DESC, intent ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to group query history: %w", err)
	}
	for rows.Next() {
		var s models.IntentStat
		if err := rows.Scan(&s.Intent, &s.Count, &s.AvgLatencyMS); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		summary.ByIntent = append(summary.ByIntent, s)
	}
	rows.Close()

	rows, err = c.db.QueryContext(ctx, `
		SELECT query_text, COUNT(*)
		FROM query_history
		GROUP BY query_text
		ORDER BY COUNT(*) DESC, query_text ASC
		LIMIT ?
	`, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to rank queries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f models.QueryFrequency
		if err := rows.Scan(&f.QueryText, &f.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		summary.TopQueries = append(summary.TopQueries, f)
	}

	return summary, rows.Err()
}

func (c *Client) RecordMetric(ctx context.Context, name string, value float64, tags map[string]string) error {
	tagsJSON, _ := json.Marshal(tags)

	query := `INSERT INTO system_metrics (metric_name, metric_value, tags, timestamp) VALUES (?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, name, value, string(tagsJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}

	return nil
}

// LatestMetric returns the most recent value recorded under name.
func (c *Client) LatestMetric(ctx context.Context, name string) (float64, bool, error) {
	var value float64
	err := c.db.QueryRowContext(ctx,
		`SELECT metric_value FROM system_metrics WHERE metric_name = ? ORDER BY id DESC LIMIT 1`, name,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read metric: %w", err)
	}
	return value, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
