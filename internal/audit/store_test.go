package audit

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/greenhillcanarias/digital-twin/internal/twin"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{Driver: "sqlite3", DSN: ":memory:", Workers: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordDecision_Persisted(t *testing.T) {
	s := newTestStore(t)

	rec := twin.AuditRecord{
		SourceType: "master",
		SourceID:   "board-7",
		Question:   "Approve phase two?",
		Note:       "Approved with conditions",
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, s.RecordDecision(context.Background(), rec))

	require.Eventually(t, func() bool {
		entries, err := s.RecentDecisions(context.Background(), 5)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := s.RecentDecisions(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "master", entries[0].SourceType)
	assert.Equal(t, "board-7", entries[0].SourceID)
	assert.Equal(t, "Approved with conditions", entries[0].Note)
}

func TestRegistersAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordDecision(ctx, twin.AuditRecord{SourceType: "master", Question: "q", Note: "decision note"}))
	require.NoError(t, s.RecordIssue(ctx, twin.AuditRecord{SourceType: "supplier", Question: "q", Note: "issue note"}))

	require.Eventually(t, func() bool {
		d, err1 := s.RecentDecisions(ctx, 5)
		i, err2 := s.RecentIssues(ctx, 5)
		return err1 == nil && err2 == nil && len(d) == 1 && len(i) == 1
	}, 2*time.Second, 10*time.Millisecond)

	issues, err := s.RecentIssues(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "issue note", issues[0].Note)

	decisions, err := s.RecentDecisions(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "decision note", decisions[0].Note)
}

func TestEnqueue_QueueFull(t *testing.T) {
	// No workers draining: the second write must be rejected, not block.
	s := &Store{
		writeQueue: make(chan writeRequest, 1),
		stopCh:     make(chan struct{}),
		logger:     zaptest.NewLogger(t),
	}
	require.NoError(t, s.enqueue(registerDecision, twin.AuditRecord{Note: "first"}))
	err := s.enqueue(registerDecision, twin.AuditRecord{Note: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestEnqueue_DefaultsTimestamp(t *testing.T) {
	s := &Store{
		writeQueue: make(chan writeRequest, 1),
		stopCh:     make(chan struct{}),
		logger:     zaptest.NewLogger(t),
	}
	require.NoError(t, s.enqueue(registerIssue, twin.AuditRecord{Note: "n"}))
	req := <-s.writeQueue
	assert.False(t, req.rec.Timestamp.IsZero())
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(Config{Driver: "oracle"}, zaptest.NewLogger(t))
	require.Error(t, err)
}
