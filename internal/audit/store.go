// Package audit persists decision and issue register entries. Writes are
// queued and flushed by background workers so finalization never blocks on
// the database.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/greenhillcanarias/digital-twin/internal/circuitbreaker"
	ometrics "github.com/greenhillcanarias/digital-twin/internal/metrics"
	"github.com/greenhillcanarias/digital-twin/internal/twin"
)

// Config controls the audit store connection and worker pool.
type Config struct {
	// Driver is "postgres" or "sqlite3"
	Driver string
	// DSN is the driver-specific connection string
	DSN             string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	Workers         int
	QueueSize       int
}

const (
	registerDecision = "decision"
	registerIssue    = "issue"
)

type writeRequest struct {
	register string
	rec      twin.AuditRecord
}

// Store implements the twin's audit recorder over the two registers.
type Store struct {
	db     *circuitbreaker.DatabaseWrapper
	raw    *sqlx.DB
	logger *zap.Logger

	writeQueue chan writeRequest
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
}

// Entry is one persisted register row.
type Entry struct {
	ID         int64     `db:"id" json:"id"`
	SourceType string    `db:"source_type" json:"source_type"`
	SourceID   string    `db:"source_id" json:"source_id,omitempty"`
	Question   string    `db:"question" json:"question"`
	Note       string    `db:"note" json:"note"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

var schemas = map[string]string{
	"postgres": `
CREATE TABLE IF NOT EXISTS decision_register (
	id BIGSERIAL PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	note TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS issue_register (
	id BIGSERIAL PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	note TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`,
	"sqlite3": `
CREATE TABLE IF NOT EXISTS decision_register (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	note TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS issue_register (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	note TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`,
}

// NewStore opens the database, ensures the register tables, and starts the
// write workers.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 10
	}
	if cfg.Driver == "sqlite3" {
		cfg.MaxConnections = 1
	}
	if cfg.IdleConnections == 0 {
		cfg.IdleConnections = 2
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 5 * time.Minute
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	schema, ok := schemas[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("audit: unsupported driver %q", cfg.Driver)
	}

	raw, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	raw.SetMaxOpenConns(cfg.MaxConnections)
	raw.SetMaxIdleConns(cfg.IdleConnections)
	raw.SetConnMaxLifetime(cfg.MaxLifetime)

	db := circuitbreaker.NewDatabaseWrapper(raw, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("audit: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		raw.Close()
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}

	s := &Store{
		db:         db,
		raw:        raw,
		logger:     logger,
		writeQueue: make(chan writeRequest, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.workerWg.Add(1)
		go s.writeWorker(i)
	}

	logger.Info("Audit store initialized",
		zap.String("driver", cfg.Driver),
		zap.Int("workers", cfg.Workers),
	)
	return s, nil
}

// RecordDecision queues a decision register write.
func (s *Store) RecordDecision(_ context.Context, rec twin.AuditRecord) error {
	return s.enqueue(registerDecision, rec)
}

// RecordIssue queues an issue register write.
func (s *Store) RecordIssue(_ context.Context, rec twin.AuditRecord) error {
	return s.enqueue(registerIssue, rec)
}

func (s *Store) enqueue(register string, rec twin.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	select {
	case s.writeQueue <- writeRequest{register: register, rec: rec}:
		return nil
	default:
		ometrics.RecordAuditWrite(register, "dropped")
		return fmt.Errorf("audit: write queue full, %s entry dropped", register)
	}
}

func (s *Store) writeWorker(id int) {
	defer s.workerWg.Done()
	s.logger.Debug("Audit write worker started", zap.Int("worker_id", id))
	for {
		select {
		case <-s.stopCh:
			s.drainQueue()
			s.logger.Debug("Audit write worker stopped", zap.Int("worker_id", id))
			return
		case req := <-s.writeQueue:
			s.processWrite(req)
		}
	}
}

func (s *Store) processWrite(req writeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.insert(ctx, req.register, req.rec); err != nil {
		ometrics.RecordAuditWrite(req.register, "error")
		s.logger.Error("Register write failed",
			zap.String("register", req.register),
			zap.Error(err),
		)
		return
	}
	ometrics.RecordAuditWrite(req.register, "ok")
}

func (s *Store) insert(ctx context.Context, register string, rec twin.AuditRecord) error {
	q := s.raw.Rebind(fmt.Sprintf(
		`INSERT INTO %s_register (source_type, source_id, question, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		register,
	))
	_, err := s.db.ExecContext(ctx, q, rec.SourceType, rec.SourceID, rec.Question, rec.Note, rec.Timestamp)
	return err
}

func (s *Store) drainQueue() {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case req := <-s.writeQueue:
			s.processWrite(req)
		case <-timeout:
			s.logger.Warn("Timeout draining audit write queue")
			return
		default:
			return
		}
	}
}

// RecentDecisions returns the newest decision register entries.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]Entry, error) {
	return s.recent(ctx, registerDecision, limit)
}

// RecentIssues returns the newest issue register entries.
func (s *Store) RecentIssues(ctx context.Context, limit int) ([]Entry, error) {
	return s.recent(ctx, registerIssue, limit)
}

func (s *Store) recent(ctx context.Context, register string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.raw.Rebind(fmt.Sprintf(
		`SELECT id, source_type, source_id, question, note, created_at FROM %s_register ORDER BY id DESC LIMIT ?`,
		register,
	))
	rows, err := s.db.QueryxContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.StructScan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close stops the workers, drains pending writes, and closes the database.
func (s *Store) Close() error {
	close(s.stopCh)
	s.workerWg.Wait()
	return s.db.Close()
}
