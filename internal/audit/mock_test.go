package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/greenhillcanarias/digital-twin/internal/circuitbreaker"
	"github.com/greenhillcanarias/digital-twin/internal/twin"
)

func TestInsert_StatementShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	raw := sqlx.NewDb(db, "sqlmock")
	s := &Store{
		db:     circuitbreaker.NewDatabaseWrapper(raw, zaptest.NewLogger(t)),
		raw:    raw,
		logger: zaptest.NewLogger(t),
	}

	mock.ExpectExec("INSERT INTO decision_register").
		WithArgs("master", "s1", "q", "n", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := twin.AuditRecord{SourceType: "master", SourceID: "s1", Question: "q", Note: "n", Timestamp: time.Now()}
	require.NoError(t, s.insert(context.Background(), registerDecision, rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	raw := sqlx.NewDb(db, "sqlmock")
	s := &Store{
		db:     circuitbreaker.NewDatabaseWrapper(raw, zaptest.NewLogger(t)),
		raw:    raw,
		logger: zaptest.NewLogger(t),
	}

	mock.ExpectExec("INSERT INTO issue_register").
		WillReturnError(context.DeadlineExceeded)

	rec := twin.AuditRecord{SourceType: "supplier", Question: "q", Note: "n", Timestamp: time.Now()}
	require.Error(t, s.insert(context.Background(), registerIssue, rec))
}
