package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hatchpad/connector-engine/pkg/database"
	"github.com/hatchpad/connector-engine/pkg/models"
)

// AssetRepository is the mirror of externally-sourced objects. Replace is
// the only mutation path: assets are never updated in place.
type AssetRepository interface {
	// ReplaceForConnection atomically swaps the connection's asset set for
	// the given one. The delete and the chunked inserts share a single
	// transaction, so a crash mid-replace can never mix two snapshots.
	ReplaceForConnection(ctx context.Context, connectionID uuid.UUID, assets []models.Asset, batchSize int) error

	// ListByConnection returns the current snapshot, optionally filtered by
	// asset type, ordered by (type, key).
	ListByConnection(ctx context.Context, connectionID uuid.UUID, assetType string) ([]models.Asset, error)

	// CountByConnections returns the asset count per connection id.
	CountByConnections(ctx context.Context, connectionIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

type assetRepository struct {
	db *database.DB
}

// NewAssetRepository creates a PostgreSQL-backed asset store.
func NewAssetRepository(db *database.DB) AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) ReplaceForConnection(ctx context.Context, connectionID uuid.UUID, assets []models.Asset, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 200
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Delete before any insert so a failure mid-batch rolls back to the old
	// snapshot rather than leaving old and new rows mixed under one key.
	if _, err := tx.Exec(ctx, `DELETE FROM engine_assets WHERE connection_id = $1`, connectionID); err != nil {
		return fmt.Errorf("failed to clear previous assets: %w", err)
	}

	insert := `
		INSERT INTO engine_assets (connection_id, asset_type, asset_key, name, data)
		VALUES ($1, $2, $3, $4, $5)`

	for start := 0; start < len(assets); start += batchSize {
		end := start + batchSize
		if end > len(assets) {
			end = len(assets)
		}

		batch := &pgx.Batch{}
		for _, asset := range assets[start:end] {
			batch.Queue(insert, connectionID, asset.Type, asset.Key, asset.Name, asset.Data)
		}

		br := tx.SendBatch(ctx, batch)
		for range assets[start:end] {
			if _, err := br.Exec(); err != nil {
				br.Close() //nolint:errcheck
				return fmt.Errorf("failed to insert asset batch: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to close asset batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit asset replacement: %w", err)
	}
	return nil
}

func (r *assetRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, assetType string) ([]models.Asset, error) {
	query := `
		SELECT id, connection_id, asset_type, asset_key, name, data, created_at
		FROM engine_assets
		WHERE connection_id = $1 AND ($2 = '' OR asset_type = $2)
		ORDER BY asset_type, asset_key`

	rows, err := r.db.Query(ctx, query, connectionID, assetType)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var asset models.Asset
		err := rows.Scan(
			&asset.ID,
			&asset.ConnectionID,
			&asset.Type,
			&asset.Key,
			&asset.Name,
			&asset.Data,
			&asset.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

func (r *assetRepository) CountByConnections(ctx context.Context, connectionIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(connectionIDs))
	if len(connectionIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT connection_id, COUNT(*)
		FROM engine_assets
		WHERE connection_id = ANY($1)
		GROUP BY connection_id`

	rows, err := r.db.Query(ctx, query, connectionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("failed to scan asset count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset counts: %w", err)
	}

	return counts, nil
}

var _ AssetRepository = (*assetRepository)(nil)
