// Package store provides the PostgreSQL client for the candidate search
// pipeline: pgvector ANN queries, full-text queries, profile materialization,
// and tenant lookups, all over one connection pool.
//
// Vector and text queries pin a single pooled connection so the per-session
// ANN knob (hnsw.ef_search or diskann.search_list_size) applies to the query
// that follows it and never leaks across index variants.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/resilience"
)

// Index variants selectable via config.
const (
	IndexHNSW    = "hnsw"
	IndexDiskANN = "diskann"
)

// Store is the pooled retrieval store client.
type Store struct {
	db      *sqlx.DB
	config  config.DatabaseConfig
	logger  observability.Logger
	metrics *metrics.Metrics

	// waiting counts callers currently blocked on connection acquisition.
	// sql.DBStats only exposes cumulative waits, not current waiters.
	waiting atomic.Int64
}

// ScoredID is one (candidateId, score) row from a search branch. Scores are
// normalized to [0,1] by the query itself.
type ScoredID struct {
	CandidateID string  `db:"candidate_id"`
	Score       float64 `db:"score"`
}

// Connect opens the pool, applies the configured limits, and verifies the
// connection with retries. metrics may be nil.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger, m *metrics.Metrics) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s search_path=%s connect_timeout=%d statement_timeout=%d",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode, cfg.SearchPath,
		int(cfg.ConnTimeout().Seconds()), cfg.StatementTimeoutMs,
	)

	log := logger.WithPrefix("store")

	var db *sqlx.DB
	retryCfg := resilience.RetryConfig{
		MaxRetries:      10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  2 * time.Minute,
	}
	err := resilience.Retry(ctx, retryCfg, log, "database connect", func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "postgres", dsn)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.PoolMax)
	db.SetMaxIdleConns(cfg.PoolMin)
	db.SetConnMaxIdleTime(cfg.IdleTimeout())

	log.Info("Database connection established", map[string]interface{}{
		"host":       cfg.Host,
		"database":   cfg.Database,
		"pool_max":   cfg.PoolMax,
		"pool_min":   cfg.PoolMin,
		"index_type": cfg.IndexType,
	})

	return &Store{
		db:      db,
		config:  cfg,
		logger:  log,
		metrics: m,
	}, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sqlx.DB, cfg config.DatabaseConfig, logger observability.Logger, m *metrics.Metrics) *Store {
	return &Store{db: db, config: cfg, logger: logger.WithPrefix("store"), metrics: m}
}

// IndexType returns the active ANN index variant.
func (s *Store) IndexType() string {
	return s.config.IndexType
}

// sessionKnob returns the SET statement that tunes the active index variant.
func (s *Store) sessionKnob() string {
	if s.config.IndexType == IndexDiskANN {
		return fmt.Sprintf("SET diskann.search_list_size = %d", s.config.DiskANNSearchListSize)
	}
	return fmt.Sprintf("SET hnsw.ef_search = %d", s.config.HNSWEfSearch)
}

// acquireConn checks a connection out of the pool, counting the caller as a
// waiter until acquisition completes. Every query path goes through here so
// the waiter gauge reflects all pool pressure, not just one branch. Pool
// exhaustion beyond five waiters is logged at warn on every occurrence.
func (s *Store) acquireConn(ctx context.Context) (*sqlx.Conn, error) {
	waiting := s.waiting.Add(1)
	defer s.waiting.Add(-1)

	if waiting > 5 {
		s.logger.Warn("Connection pool saturated", map[string]interface{}{
			"waiting_requests": waiting,
			"pool_max":         s.config.PoolMax,
		})
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire connection")
	}
	return conn, nil
}

// WarmupPool concurrently opens the minimum number of connections and runs a
// trivial probe on each. Best effort; failures are logged, never fatal.
func (s *Store) WarmupPool(ctx context.Context) {
	conns := make([]*sqlx.Conn, 0, s.config.PoolMin)
	for i := 0; i < s.config.PoolMin; i++ {
		conn, err := s.db.Connx(ctx)
		if err != nil {
			s.logger.Warn("Pool warmup acquisition failed", map[string]interface{}{
				"connection": i,
				"error":      err.Error(),
			})
			break
		}
		var one int
		if err := conn.QueryRowxContext(ctx, "SELECT 1").Scan(&one); err != nil {
			s.logger.Warn("Pool warmup probe failed", map[string]interface{}{
				"connection": i,
				"error":      err.Error(),
			})
		}
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		_ = conn.Close()
	}
	s.logger.Info("Pool warmup complete", map[string]interface{}{
		"warmed": len(conns),
		"target": s.config.PoolMin,
	})
}

// Health is the point-in-time store health snapshot.
type Health struct {
	Status          string  `json:"status"`
	PoolSize        int     `json:"poolSize"`
	IdleConnections int     `json:"idleConnections"`
	WaitingRequests int     `json:"waitingRequests"`
	PoolUtilization float64 `json:"poolUtilization"`
	IndexType       string  `json:"indexType"`
}

// HealthCheck pings the database and reports pool pressure. Status degrades
// to "degraded" above ten waiting requests; a failed ping is "unhealthy".
func (s *Store) HealthCheck(ctx context.Context) Health {
	stats := s.db.Stats()
	waiting := int(s.waiting.Load())

	h := Health{
		Status:          "healthy",
		PoolSize:        stats.OpenConnections,
		IdleConnections: stats.Idle,
		WaitingRequests: waiting,
		IndexType:       s.config.IndexType,
	}
	if stats.OpenConnections > 0 {
		h.PoolUtilization = float64(stats.OpenConnections-stats.Idle) / float64(stats.OpenConnections)
	}

	if err := s.db.PingContext(ctx); err != nil {
		h.Status = "unhealthy"
		return h
	}
	if waiting > 10 {
		h.Status = "degraded"
	} else if waiting > 5 {
		s.logger.Warn("Pool pressure elevated", map[string]interface{}{
			"waiting_requests": waiting,
		})
	}

	if s.metrics != nil {
		s.metrics.SetDatabasePoolStats(stats.InUse, stats.Idle, waiting)
	}
	return h
}

// SamplePoolStats pushes current pool gauges to metrics. Called by the
// background resource sampler.
func (s *Store) SamplePoolStats() {
	if s.metrics == nil {
		return
	}
	stats := s.db.Stats()
	s.metrics.SetDatabasePoolStats(stats.InUse, stats.Idle, int(s.waiting.Load()))
}

// DB exposes the underlying pool for migrations and middleware lookups.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close shuts down the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// vectorLiteral renders a pgvector input literal: "[0.1,0.2,...]".
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte(']')
	return b.String()
}

// IsRetryable reports whether a store error is worth retrying: acquisition
// and statement timeouts, not constraint or syntax failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "statement timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout")
}
