package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/apperrors"
	"github.com/hatchpad/connector-engine/pkg/config"
	"github.com/hatchpad/connector-engine/pkg/crypto"
	"github.com/hatchpad/connector-engine/pkg/models"
	"github.com/hatchpad/connector-engine/pkg/repositories"
)

// ConnectorService manages the lifecycle of platform connections: validate,
// connect, inspect, rename, disconnect. Secrets enter encrypted and only
// leave this layer as ciphertext.
type ConnectorService interface {
	// Platforms lists the platform kinds the engine can connect to.
	Platforms() []platform.Info

	// Validate probes the platform with the supplied credentials without
	// persisting anything. Credential rejection comes back inside the
	// result, not as an error.
	Validate(ctx context.Context, kind models.PlatformKind, cfg, secret map[string]any) (*platform.ValidationResult, error)

	// Connect validates the credentials and, when they hold, persists the
	// connection with the secret encrypted. Invalid credentials return
	// apperrors.ErrValidationFailed wrapped with the reason.
	Connect(ctx context.Context, projectID uuid.UUID, kind models.PlatformKind, displayName string, cfg, secret map[string]any) (*models.Connection, error)

	// Get returns a single connection with its asset count and recent runs.
	Get(ctx context.Context, projectID, connectionID uuid.UUID) (*models.ConnectionOverview, error)

	// List returns the project's connections with asset counts and recent
	// runs, newest first.
	List(ctx context.Context, projectID uuid.UUID) ([]models.ConnectionOverview, error)

	// Rename updates a connection's display name.
	Rename(ctx context.Context, projectID, connectionID uuid.UUID, displayName string) (*models.Connection, error)

	// Disconnect removes the connection along with its assets and runs.
	Disconnect(ctx context.Context, projectID, connectionID uuid.UUID) error

	// ListAssets returns the connection's current asset snapshot, optionally
	// filtered by asset type.
	ListAssets(ctx context.Context, projectID, connectionID uuid.UUID, assetType string) ([]models.Asset, error)

	// ListRuns returns the connection's sync history, newest first.
	ListRuns(ctx context.Context, projectID, connectionID uuid.UUID, limit int) ([]models.SyncRun, error)
}

type connectorService struct {
	connections repositories.ConnectionRepository
	assets      repositories.AssetRepository
	runs        repositories.SyncRunRepository
	registry    *platform.Registry
	cipher      *crypto.SecretCipher
	cfg         *config.ConnectorConfig
	logger      *zap.Logger
}

// NewConnectorService creates a ConnectorService.
func NewConnectorService(
	connections repositories.ConnectionRepository,
	assets repositories.AssetRepository,
	runs repositories.SyncRunRepository,
	registry *platform.Registry,
	cipher *crypto.SecretCipher,
	cfg *config.ConnectorConfig,
	logger *zap.Logger,
) ConnectorService {
	return &connectorService{
		connections: connections,
		assets:      assets,
		runs:        runs,
		registry:    registry,
		cipher:      cipher,
		cfg:         cfg,
		logger:      logger.Named("connector"),
	}
}

func (s *connectorService) Platforms() []platform.Info {
	infos := s.registry.Registered()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Kind < infos[j].Kind })
	return infos
}

func (s *connectorService) Validate(ctx context.Context, kind models.PlatformKind, cfg, secret map[string]any) (*platform.ValidationResult, error) {
	adapter, ok := s.registry.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPlatformNotSupported, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ValidateTimeout())
	defer cancel()

	result, err := adapter.ValidateConnection(ctx, cfg, secret)
	if err != nil {
		return nil, fmt.Errorf("validation probe failed: %w", err)
	}
	return result, nil
}

func (s *connectorService) Connect(ctx context.Context, projectID uuid.UUID, kind models.PlatformKind, displayName string, cfg, secret map[string]any) (*models.Connection, error) {
	result, err := s.Validate(ctx, kind, cfg, secret)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidationFailed, result.Error)
	}

	encrypted, err := s.cipher.EncryptMap(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt connection secret: %w", err)
	}

	if displayName == "" {
		displayName = defaultDisplayName(kind)
	}

	conn := &models.Connection{
		ProjectID:   projectID,
		Platform:    kind,
		DisplayName: displayName,
		Status:      models.ConnectionStatusConnected,
		Config:      cfg,
	}
	if err := s.connections.Create(ctx, conn, encrypted); err != nil {
		return nil, err
	}

	s.logger.Info("connection created",
		zap.String("connection_id", conn.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("platform", string(kind)))

	return conn, nil
}

func (s *connectorService) Get(ctx context.Context, projectID, connectionID uuid.UUID) (*models.ConnectionOverview, error) {
	conn, err := s.connections.GetByID(ctx, projectID, connectionID)
	if err != nil {
		return nil, err
	}

	counts, err := s.assets.CountByConnections(ctx, []uuid.UUID{conn.ID})
	if err != nil {
		return nil, err
	}
	runs, err := s.runs.ListByConnection(ctx, conn.ID, s.cfg.RecentRunsPerConnection)
	if err != nil {
		return nil, err
	}

	return &models.ConnectionOverview{
		Connection: *conn,
		AssetCount: counts[conn.ID],
		RecentRuns: runs,
	}, nil
}

func (s *connectorService) List(ctx context.Context, projectID uuid.UUID) ([]models.ConnectionOverview, error) {
	conns, err := s.connections.List(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(conns))
	for i, conn := range conns {
		ids[i] = conn.ID
	}
	counts, err := s.assets.CountByConnections(ctx, ids)
	if err != nil {
		return nil, err
	}

	overviews := make([]models.ConnectionOverview, 0, len(conns))
	for _, conn := range conns {
		runs, err := s.runs.ListByConnection(ctx, conn.ID, s.cfg.RecentRunsPerConnection)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, models.ConnectionOverview{
			Connection: *conn,
			AssetCount: counts[conn.ID],
			RecentRuns: runs,
		})
	}

	return overviews, nil
}

func (s *connectorService) Rename(ctx context.Context, projectID, connectionID uuid.UUID, displayName string) (*models.Connection, error) {
	// Scope the lookup to the project before touching the row.
	conn, err := s.connections.GetByID(ctx, projectID, connectionID)
	if err != nil {
		return nil, err
	}

	if err := s.connections.Rename(ctx, conn.ID, displayName); err != nil {
		return nil, err
	}
	conn.DisplayName = displayName
	return conn, nil
}

func (s *connectorService) Disconnect(ctx context.Context, projectID, connectionID uuid.UUID) error {
	conn, err := s.connections.GetByID(ctx, projectID, connectionID)
	if err != nil {
		return err
	}

	if err := s.connections.Delete(ctx, conn.ID); err != nil {
		return err
	}

	s.logger.Info("connection deleted",
		zap.String("connection_id", conn.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("platform", string(conn.Platform)))
	return nil
}

func (s *connectorService) ListAssets(ctx context.Context, projectID, connectionID uuid.UUID, assetType string) ([]models.Asset, error) {
	conn, err := s.connections.GetByID(ctx, projectID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.assets.ListByConnection(ctx, conn.ID, assetType)
}

func (s *connectorService) ListRuns(ctx context.Context, projectID, connectionID uuid.UUID, limit int) ([]models.SyncRun, error) {
	conn, err := s.connections.GetByID(ctx, projectID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.runs.ListByConnection(ctx, conn.ID, limit)
}

func defaultDisplayName(kind models.PlatformKind) string {
	switch kind {
	case models.PlatformSupabase:
		return "Supabase"
	case models.PlatformVercel:
		return "Vercel"
	case models.PlatformOpenAPI:
		return "OpenAPI Service"
	default:
		return string(kind)
	}
}

var _ ConnectorService = (*connectorService)(nil)
