package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hatchpad/connector-engine/pkg/apperrors"
	"github.com/hatchpad/connector-engine/pkg/database"
	"github.com/hatchpad/connector-engine/pkg/models"
)

// SyncRunRepository is the append-mostly ledger of sync attempts.
type SyncRunRepository interface {
	// CreateIfIdle inserts the run at pending status, unless the connection
	// already has a non-terminal run. In that case it returns the in-flight
	// run together with apperrors.ErrSyncInProgress. The check and insert
	// are one atomic statement; a partial unique index backs it up.
	CreateIfIdle(ctx context.Context, run *models.SyncRun) (*models.SyncRun, error)

	// Get retrieves a run by id.
	Get(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)

	// MarkRunning claims a pending run for execution.
	MarkRunning(ctx context.Context, id uuid.UUID) error

	// Complete settles a run into a terminal status. Terminal runs are
	// immutable: completing an already-settled run is a no-op error.
	Complete(ctx context.Context, id uuid.UUID, status models.RunStatus, stats map[string]int, errMsg string, finishedAt time.Time) error

	// ListByConnection returns the most recent runs for a connection.
	ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]models.SyncRun, error)

	// DemoteStale settles non-terminal runs older than the cutoff into
	// error, returning the demoted runs so callers can project the outcome
	// onto their connections. Pending runs are included: the queue is
	// in-memory, so a run orphaned before it was claimed would otherwise
	// block its connection forever.
	DemoteStale(ctx context.Context, startedBefore time.Time, errMsg string) ([]models.SyncRun, error)
}

type syncRunRepository struct {
	db *database.DB
}

// NewSyncRunRepository creates a PostgreSQL-backed run ledger.
func NewSyncRunRepository(db *database.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

const runColumns = `id, connection_id, triggered_by, status, stats, error, started_at, finished_at`

func scanRun(row pgx.Row) (*models.SyncRun, error) {
	var run models.SyncRun
	var errMsg *string
	err := row.Scan(
		&run.ID,
		&run.ConnectionID,
		&run.TriggeredBy,
		&run.Status,
		&run.Stats,
		&errMsg,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return &run, nil
}

func (r *syncRunRepository) CreateIfIdle(ctx context.Context, run *models.SyncRun) (*models.SyncRun, error) {
	// Two attempts: when the blocking run settles between a failed insert
	// and the in-flight lookup, the second insert takes the freed slot, so
	// a conflict result always carries the run that caused it.
	for attempt := 0; attempt < 2; attempt++ {
		err := r.insertIfIdle(ctx, run)
		if err == nil {
			return nil, nil
		}

		var pgErr *pgconn.PgError
		conflict := errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "23505")
		if !conflict {
			return nil, fmt.Errorf("failed to create sync run: %w", err)
		}

		inflight, lookupErr := r.getInflight(ctx, run.ConnectionID)
		if lookupErr == nil {
			return inflight, apperrors.ErrSyncInProgress
		}
	}
	return nil, apperrors.ErrSyncInProgress
}

func (r *syncRunRepository) insertIfIdle(ctx context.Context, run *models.SyncRun) error {
	run.Status = models.RunStatusPending
	run.StartedAt = time.Now()

	// Check-then-insert as one statement: the insert only happens when no
	// pending or running row exists for the connection.
	query := `
		INSERT INTO engine_sync_runs (connection_id, triggered_by, status, started_at)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM engine_sync_runs
			WHERE connection_id = $1 AND status IN ('pending', 'running')
		)
		RETURNING id`

	return r.db.QueryRow(ctx, query,
		run.ConnectionID,
		run.TriggeredBy,
		run.Status,
		run.StartedAt,
	).Scan(&run.ID)
}

func (r *syncRunRepository) getInflight(ctx context.Context, connectionID uuid.UUID) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + `
		FROM engine_sync_runs
		WHERE connection_id = $1 AND status IN ('pending', 'running')
		ORDER BY started_at DESC
		LIMIT 1`

	run, err := scanRun(r.db.QueryRow(ctx, query, connectionID))
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *syncRunRepository) Get(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM engine_sync_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}
	return run, nil
}

func (r *syncRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE engine_sync_runs SET status = 'running' WHERE id = $1 AND status = 'pending'`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *syncRunRepository) Complete(ctx context.Context, id uuid.UUID, status models.RunStatus, stats map[string]int, errMsg string, finishedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot complete run with non-terminal status %q", status)
	}

	query := `
		UPDATE engine_sync_runs
		SET status = $2, stats = $3, error = $4, finished_at = $5
		WHERE id = $1 AND status IN ('pending', 'running')`

	result, err := r.db.Exec(ctx, query, id, status, stats, errMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *syncRunRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + `
		FROM engine_sync_runs
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

func (r *syncRunRepository) DemoteStale(ctx context.Context, startedBefore time.Time, errMsg string) ([]models.SyncRun, error) {
	query := `
		UPDATE engine_sync_runs
		SET status = 'error', error = $2, finished_at = $3
		WHERE status IN ('pending', 'running') AND started_at < $1
		RETURNING ` + runColumns

	rows, err := r.db.Query(ctx, query, startedBefore, errMsg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to demote stale runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan demoted run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating demoted runs: %w", err)
	}

	return runs, nil
}

var _ SyncRunRepository = (*syncRunRepository)(nil)
