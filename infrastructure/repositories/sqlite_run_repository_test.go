package repositories

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spextract/database"
	"spextract/domain/contracts"
	"spextract/domain/extraction"
)

func newRunRepository(t *testing.T) contracts.RunRepository {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "state.db")
	db, err := database.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSqliteRunRepository(db)
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRunRepository(t)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &extraction.Run{StateKey: "job", StartedAt: started, Stats: extraction.RunStats{ListsTotal: 2}}
	require.NoError(t, repo.StartRun(ctx, run))
	_, err := uuid.Parse(run.ID)
	require.NoError(t, err)

	got, err := repo.LastRun(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, extraction.RunRunning, got.Status)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)

	stats := extraction.RunStats{ListsTotal: 2, ListsDone: 1, PagesFetched: 4, RowsWritten: 30, APICalls: 9, TokenRefreshes: 1}
	run.Finish(started.Add(time.Minute), stats, errors.New("boom"))
	require.NoError(t, repo.FinishRun(ctx, run))

	got, err = repo.LastRun(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, extraction.RunFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, stats, got.Stats)
	assert.Equal(t, time.Minute, got.Duration())
}

func TestRunRepository_LastRun(t *testing.T) {
	ctx := context.Background()
	repo := newRunRepository(t)

	_, err := repo.LastRun(ctx, "job")
	assert.ErrorIs(t, err, contracts.ErrRunNotFound)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, key := range []string{"job", "job", "other"} {
		run := &extraction.Run{ID: key + string(rune('a'+i)), StateKey: key, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, repo.StartRun(ctx, run))
	}

	last, err := repo.LastRun(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, "jobb", last.ID)
}

func TestRunRepository_Validation(t *testing.T) {
	ctx := context.Background()
	repo := newRunRepository(t)

	var invalid ErrInvalidRun
	err := repo.StartRun(ctx, &extraction.Run{StateKey: "job"})
	assert.ErrorAs(t, err, &invalid)

	run := &extraction.Run{StateKey: "job", StartedAt: time.Now()}
	require.NoError(t, repo.StartRun(ctx, run))
	assert.ErrorAs(t, repo.FinishRun(ctx, run), &invalid)

	ghost := &extraction.Run{ID: "missing", StartedAt: time.Now()}
	ghost.Finish(time.Now(), extraction.RunStats{}, nil)
	assert.ErrorIs(t, repo.FinishRun(ctx, ghost), contracts.ErrRunNotFound)
}
