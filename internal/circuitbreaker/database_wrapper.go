package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps a sqlx.DB with a circuit breaker. The audit registers
// route every statement through it so a dead database degrades to dropped
// best-effort writes instead of piled-up goroutines.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker("database", DatabaseConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("database", "audit", cb)
	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

// PingContext wraps Ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	err := dw.cb.Execute(ctx, func() error {
		return dw.db.PingContext(ctx)
	})
	GlobalMetricsCollector.RecordRequest("database", "audit", dw.cb.State(), err == nil)
	return err
}

// ExecContext wraps Exec with circuit breaker
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := dw.cb.Execute(ctx, func() error {
		var err2 error
		result, err2 = dw.db.ExecContext(ctx, query, args...)
		return err2
	})
	GlobalMetricsCollector.RecordRequest("database", "audit", dw.cb.State(), err == nil)
	return result, err
}

// QueryxContext wraps Queryx with circuit breaker
func (dw *DatabaseWrapper) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	var rows *sqlx.Rows
	err := dw.cb.Execute(ctx, func() error {
		var err2 error
		rows, err2 = dw.db.QueryxContext(ctx, query, args...)
		return err2
	})
	GlobalMetricsCollector.RecordRequest("database", "audit", dw.cb.State(), err == nil)
	return rows, err
}

// GetContext wraps sqlx Get with circuit breaker
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := dw.cb.Execute(ctx, func() error {
		return dw.db.GetContext(ctx, dest, query, args...)
	})
	GlobalMetricsCollector.RecordRequest("database", "audit", dw.cb.State(), err == nil)
	return err
}

// IsOpen reports whether the breaker currently rejects requests
func (dw *DatabaseWrapper) IsOpen() bool {
	return dw.cb.State() == StateOpen
}

// Close closes the underlying database
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}
