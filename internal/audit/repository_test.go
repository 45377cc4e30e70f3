package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/samplecentring-core/internal/infrastructure/database"
	"github.com/nerrad567/samplecentring-core/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newTestRepo(t)

	e := &Entry{Action: "motor.move", Target: "omega", Params: map[string]any{"newpos": "12.5"}}
	require.NoError(t, repo.Create(context.Background(), e))

	assert.Regexp(t, `^cmd-[0-9a-f-]{36}$`, e.ID)
	assert.Equal(t, OutcomeOK, e.Outcome)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestCreate_RejectsUnknownOutcome(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Create(context.Background(), &Entry{Action: "x", Outcome: "maybe"})
	assert.Error(t, err)
}

func TestList_RoundTripAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: "centring.save", Target: "pos1", CreatedAt: base},
		{Action: "motor.move", Target: "phi", Params: map[string]any{"newpos": 0.34}, CreatedAt: base.Add(time.Second)},
		{Action: "motor.move", Target: "zoom", Outcome: OutcomeFailed, ErrorKind: "hardware_unavailable", RequestID: "req-9", DurationMS: 31, CreatedAt: base.Add(1500 * time.Millisecond)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Create(ctx, e))
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all.Entries, 3)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, defaultListLimit, all.Limit)

	// Most recent first.
	assert.Equal(t, "zoom", all.Entries[0].Target)
	assert.Equal(t, "phi", all.Entries[1].Target)
	assert.Equal(t, "pos1", all.Entries[2].Target)

	failed := all.Entries[0]
	assert.Equal(t, OutcomeFailed, failed.Outcome)
	assert.Equal(t, "hardware_unavailable", failed.ErrorKind)
	assert.Equal(t, "req-9", failed.RequestID)
	assert.Equal(t, int64(31), failed.DurationMS)
	assert.True(t, failed.CreatedAt.Equal(base.Add(1500*time.Millisecond)))

	assert.Equal(t, 0.34, all.Entries[1].Params["newpos"])
	assert.Nil(t, all.Entries[2].Params)
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, e := range []*Entry{
		{Action: "motor.move", Target: "phi"},
		{Action: "motor.move", Target: "kappa", Outcome: OutcomeFailed},
		{Action: "centring.rename", Target: "pos1"},
	} {
		require.NoError(t, repo.Create(ctx, e))
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: "motor.move"}, 2},
		{"by target", Filter{Target: "pos1"}, 1},
		{"by outcome", Filter{Outcome: OutcomeFailed}, 1},
		{"combined", Filter{Action: "motor.move", Outcome: OutcomeOK}, 1},
		{"no match", Filter{Action: "snapshot"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Total)
			assert.Len(t, res.Entries, tt.want)
		})
	}
}

func TestList_PaginationClamps(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &Entry{Action: "motor.move"}))
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	assert.Equal(t, 5, res.Total)

	res, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
}

type memRepo struct {
	mu      sync.Mutex
	entries []*Entry
	fail    bool
}

func (m *memRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

type countingLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *countingLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo, &countingLogger{})

	for i := 0; i < 10; i++ {
		assert.True(t, rec.Record(&Entry{Action: "motor.move"}))
	}
	rec.Close()

	assert.Len(t, repo.entries, 10)
	assert.False(t, rec.Record(&Entry{Action: "late"}), "Record after Close must be rejected")
	rec.Close()
}

func TestRecorder_LogsWriteFailure(t *testing.T) {
	repo := &memRepo{fail: true}
	logger := &countingLogger{}
	rec := NewRecorder(repo, logger)

	rec.Record(&Entry{Action: "snapshot"})
	rec.Close()

	assert.Equal(t, 1, logger.errors)
}

func TestRecorder_Nil(t *testing.T) {
	var rec *Recorder
	assert.False(t, rec.Record(&Entry{}))
	assert.Nil(t, rec.Repository())
	rec.Close()
}
