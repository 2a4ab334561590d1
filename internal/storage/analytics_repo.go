package storage

import (
	"context"
	"fmt"
	"time"

	"kb/internal/util"
)

type AnalyticsRepo struct {
	db *DB
}

func NewAnalyticsRepo(db *DB) *AnalyticsRepo {
	return &AnalyticsRepo{db: db}
}

// QueryStats is the aggregate view served by the analytics endpoint.
type QueryStats struct {
	TotalQueries   int     `json:"total_queries"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	AvgSources     float64 `json:"avg_sources"`
	GroundedShare  float64 `json:"grounded_share"`
	QueriesLast24h int     `json:"queries_last_24h"`
}

type QueryRecord struct {
	Question  string
	Provider  string
	Sources   int
	Grounded  bool
	LatencyMS int64
}

func (r *AnalyticsRepo) LogQuery(ctx context.Context, rec QueryRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO query_log (question, provider, source_count, grounded, latency_ms)
VALUES ($1, $2, $3, $4, $5)`,
		rec.Question, rec.Provider, rec.Sources, rec.Grounded, rec.LatencyMS)
	if err != nil {
		return fmt.Errorf("%w: log query: %v", util.ErrStorage, err)
	}
	return nil
}

func (r *AnalyticsRepo) Stats(ctx context.Context) (QueryStats, error) {
	var s QueryStats
	err := r.db.Pool.QueryRow(ctx, `
SELECT COUNT(*),
       COALESCE(AVG(latency_ms), 0),
       COALESCE(AVG(source_count), 0),
       COALESCE(AVG(CASE WHEN grounded THEN 1.0 ELSE 0.0 END), 0),
       COUNT(*) FILTER (WHERE created_at > $1)
FROM query_log`, time.Now().Add(-24*time.Hour)).
		Scan(&s.TotalQueries, &s.AvgLatencyMS, &s.AvgSources, &s.GroundedShare, &s.QueriesLast24h)
	if err != nil {
		return QueryStats{}, fmt.Errorf("%w: query stats: %v", util.ErrStorage, err)
	}
	return s, nil
}
