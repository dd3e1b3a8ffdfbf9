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

// ConnectionRepository is the durable record of configured platform links.
// The secret is stored only as ciphertext; encryption and decryption happen
// in the service layer, never here.
type ConnectionRepository interface {
	// Create inserts a new connection. Returns apperrors.ErrConnectionExists
	// if the project already has a connection for the platform kind.
	Create(ctx context.Context, conn *models.Connection, encryptedSecret string) error

	// Get retrieves a connection by id regardless of project. Used by the
	// background sync task, which holds only the connection id.
	Get(ctx context.Context, id uuid.UUID) (*models.Connection, error)

	// GetByID retrieves a connection by id within a project.
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*models.Connection, error)

	// GetSecret returns the encrypted secret blob for a connection.
	GetSecret(ctx context.Context, id uuid.UUID) (string, error)

	// List retrieves all connections for a project, newest first.
	List(ctx context.Context, projectID uuid.UUID) ([]*models.Connection, error)

	// Rename updates only the display name.
	Rename(ctx context.Context, id uuid.UUID, displayName string) error

	// UpdateSyncOutcome projects a settled run onto the connection row:
	// status, last_synced_at, last_sync_error.
	UpdateSyncOutcome(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, syncedAt *time.Time, syncErr string) error

	// Delete removes the connection and purges its assets and runs in one
	// transaction. A crash can never leave orphans behind.
	Delete(ctx context.Context, id uuid.UUID) error
}

type connectionRepository struct {
	db *database.DB
}

// NewConnectionRepository creates a PostgreSQL-backed connection repository.
func NewConnectionRepository(db *database.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection, encryptedSecret string) error {
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if conn.Status == "" {
		conn.Status = models.ConnectionStatusConnected
	}

	query := `
		INSERT INTO engine_connections
			(project_id, platform, display_name, status, config, secret_ciphertext, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		conn.ProjectID,
		conn.Platform,
		conn.DisplayName,
		conn.Status,
		conn.Config,
		encryptedSecret,
		conn.CreatedAt,
		conn.UpdatedAt,
	).Scan(&conn.ID)
	if err != nil {
		// Unique (project_id, platform) violation means the project already
		// holds a connection for this platform kind.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConnectionExists
		}
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

const connectionColumns = `
	id, project_id, platform, display_name, status, config,
	last_synced_at, last_sync_error, created_at, updated_at`

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var conn models.Connection
	var lastErr *string
	err := row.Scan(
		&conn.ID,
		&conn.ProjectID,
		&conn.Platform,
		&conn.DisplayName,
		&conn.Status,
		&conn.Config,
		&conn.LastSyncedAt,
		&lastErr,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastErr != nil {
		conn.LastSyncErr = *lastErr
	}
	return &conn, nil
}

func (r *connectionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM engine_connections WHERE id = $1`

	conn, err := scanConnection(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, projectID, id uuid.UUID) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM engine_connections WHERE project_id = $1 AND id = $2`

	conn, err := scanConnection(r.db.QueryRow(ctx, query, projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *connectionRepository) GetSecret(ctx context.Context, id uuid.UUID) (string, error) {
	query := `SELECT secret_ciphertext FROM engine_connections WHERE id = $1`

	var ciphertext string
	err := r.db.QueryRow(ctx, query, id).Scan(&ciphertext)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to get connection secret: %w", err)
	}
	return ciphertext, nil
}

func (r *connectionRepository) List(ctx context.Context, projectID uuid.UUID) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM engine_connections
		WHERE project_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

func (r *connectionRepository) Rename(ctx context.Context, id uuid.UUID, displayName string) error {
	query := `UPDATE engine_connections SET display_name = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, displayName, time.Now())
	if err != nil {
		return fmt.Errorf("failed to rename connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) UpdateSyncOutcome(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, syncedAt *time.Time, syncErr string) error {
	query := `
		UPDATE engine_connections
		SET status = $2, last_synced_at = COALESCE($3, last_synced_at), last_sync_error = $4, updated_at = $5
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, syncedAt, syncErr, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update sync outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Purge dependents first; the schema also carries ON DELETE CASCADE, but
	// doing it explicitly keeps the contract visible and testable.
	if _, err := tx.Exec(ctx, `DELETE FROM engine_assets WHERE connection_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete connection assets: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM engine_sync_runs WHERE connection_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete connection runs: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM engine_connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ ConnectionRepository = (*connectionRepository)(nil)
