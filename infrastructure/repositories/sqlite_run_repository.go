package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"spextract/database"
	"spextract/domain/contracts"
	"spextract/domain/extraction"
	"spextract/logging"
)

const runColumns = `id, state_key, status, started_at, finished_at,
	lists_total, lists_done, pages_fetched, rows_written, api_calls, token_refreshes, error_message`

// SqliteRunRepository implements RunRepository using the state database.
type SqliteRunRepository struct {
	*BaseRepository
	logger *logging.Logger
}

// NewSqliteRunRepository creates a new SQLite-based run repository.
func NewSqliteRunRepository(db *database.Database) contracts.RunRepository {
	return &SqliteRunRepository{
		BaseRepository: NewBaseRepository(db),
		logger:         logging.Default().WithComponent("run_repository"),
	}
}

// StartRun inserts a running row. An empty ID is filled with a new UUID.
func (r *SqliteRunRepository) StartRun(ctx context.Context, run *extraction.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		return ErrInvalidRun{ID: run.ID, Reason: "start time is not set"}
	}
	run.Status = extraction.RunRunning

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO extraction_runs (id, state_key, status, started_at, lists_total)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StateKey, string(run.Status), r.FormatTime(run.StartedAt), run.Stats.ListsTotal)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	r.logger.Database("Run started", "run_id", run.ID, "state_key", run.StateKey)
	return nil
}

// FinishRun stores the final status, counters and error of a run.
func (r *SqliteRunRepository) FinishRun(ctx context.Context, run *extraction.Run) error {
	if run.FinishedAt == nil || run.Status == extraction.RunRunning {
		return ErrInvalidRun{ID: run.ID, Reason: "run is not finished"}
	}

	res, err := r.DB().ExecContext(ctx, `
		UPDATE extraction_runs SET
			status = ?, finished_at = ?, lists_total = ?, lists_done = ?, pages_fetched = ?,
			rows_written = ?, api_calls = ?, token_refreshes = ?, error_message = ?
		WHERE id = ?`,
		string(run.Status), r.ToNullTime(run.FinishedAt),
		run.Stats.ListsTotal, run.Stats.ListsDone, run.Stats.PagesFetched,
		run.Stats.RowsWritten, run.Stats.APICalls, run.Stats.TokenRefreshes,
		r.ToNullString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, contracts.ErrRunNotFound)
	}
	r.logger.Database("Run finished", "run_id", run.ID, "status", run.Status)
	return nil
}

// LastRun loads the most recently started run for a state key.
func (r *SqliteRunRepository) LastRun(ctx context.Context, stateKey string) (*extraction.Run, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM extraction_runs WHERE state_key = ? ORDER BY started_at DESC LIMIT 1", stateKey)
	return r.scanRun(row)
}

func (r *SqliteRunRepository) scanRun(row *sql.Row) (*extraction.Run, error) {
	var (
		run        extraction.Run
		status     string
		startedAt  string
		finishedAt sql.NullString
		errMsg     sql.NullString
	)
	err := row.Scan(&run.ID, &run.StateKey, &status, &startedAt, &finishedAt,
		&run.Stats.ListsTotal, &run.Stats.ListsDone, &run.Stats.PagesFetched,
		&run.Stats.RowsWritten, &run.Stats.APICalls, &run.Stats.TokenRefreshes, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = extraction.RunStatus(status)
	run.Error = r.FromNullString(errMsg)
	if run.StartedAt, err = r.ParseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = r.FromNullTime(finishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}
