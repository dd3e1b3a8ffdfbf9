package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/apperrors"
	"github.com/hatchpad/connector-engine/pkg/config"
	"github.com/hatchpad/connector-engine/pkg/crypto"
	"github.com/hatchpad/connector-engine/pkg/logging"
	"github.com/hatchpad/connector-engine/pkg/models"
	"github.com/hatchpad/connector-engine/pkg/repositories"
	"github.com/hatchpad/connector-engine/pkg/services/workqueue"
)

// staleRunMessage is recorded on runs the janitor demotes.
const staleRunMessage = "sync run abandoned (engine restart or stall)"

// SyncService triggers and tracks sync runs. A trigger returns immediately
// with the pending run; execution happens on the work queue and is observed
// by polling the run.
type SyncService interface {
	// StartSync creates a pending run and enqueues its execution. If the
	// connection already has a non-terminal run, the in-flight run is
	// returned together with apperrors.ErrSyncInProgress and nothing is
	// enqueued.
	StartSync(ctx context.Context, projectID, connectionID uuid.UUID, triggeredBy string) (*models.SyncRun, error)

	// GetRun returns a single run, scoped to the project and connection.
	GetRun(ctx context.Context, projectID, connectionID, runID uuid.UUID) (*models.SyncRun, error)

	// SweepStaleRuns demotes non-terminal runs older than the configured
	// cutoff and projects the failure onto their connections. This covers
	// both runs abandoned mid-execution and runs orphaned at pending by a
	// restart, since the queue does not survive the process. Returns the
	// number of runs demoted.
	SweepStaleRuns(ctx context.Context) (int, error)
}

// TaskEnqueuer is the slice of the work queue the sync service needs.
type TaskEnqueuer interface {
	Enqueue(task workqueue.Task)
}

type syncService struct {
	connections repositories.ConnectionRepository
	assets      repositories.AssetRepository
	runs        repositories.SyncRunRepository
	registry    *platform.Registry
	cipher      *crypto.SecretCipher
	queue       TaskEnqueuer
	cfg         *config.ConnectorConfig
	logger      *zap.Logger
}

// NewSyncService creates a SyncService.
func NewSyncService(
	connections repositories.ConnectionRepository,
	assets repositories.AssetRepository,
	runs repositories.SyncRunRepository,
	registry *platform.Registry,
	cipher *crypto.SecretCipher,
	queue TaskEnqueuer,
	cfg *config.ConnectorConfig,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		connections: connections,
		assets:      assets,
		runs:        runs,
		registry:    registry,
		cipher:      cipher,
		queue:       queue,
		cfg:         cfg,
		logger:      logger.Named("sync"),
	}
}

func (s *syncService) StartSync(ctx context.Context, projectID, connectionID uuid.UUID, triggeredBy string) (*models.SyncRun, error) {
	conn, err := s.connections.GetByID(ctx, projectID, connectionID)
	if err != nil {
		return nil, err
	}

	run := &models.SyncRun{
		ConnectionID: conn.ID,
		TriggeredBy:  triggeredBy,
	}
	inflight, err := s.runs.CreateIfIdle(ctx, run)
	if err != nil {
		if inflight != nil {
			return inflight, err
		}
		return nil, err
	}

	s.logger.Info("sync run created",
		zap.String("run_id", run.ID.String()),
		zap.String("connection_id", conn.ID.String()),
		zap.String("platform", string(conn.Platform)))

	s.queue.Enqueue(newSyncTask(s, conn.ID, run.ID))
	return run, nil
}

func (s *syncService) GetRun(ctx context.Context, projectID, connectionID, runID uuid.UUID) (*models.SyncRun, error) {
	conn, err := s.connections.GetByID(ctx, projectID, connectionID)
	if err != nil {
		return nil, err
	}

	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.ConnectionID != conn.ID {
		return nil, apperrors.ErrNotFound
	}
	return run, nil
}

func (s *syncService) SweepStaleRuns(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.StaleRunTimeout())

	demoted, err := s.runs.DemoteStale(ctx, cutoff, staleRunMessage)
	if err != nil {
		return 0, err
	}

	for _, run := range demoted {
		s.logger.Warn("demoted stale sync run",
			zap.String("run_id", run.ID.String()),
			zap.String("connection_id", run.ConnectionID.String()),
			zap.Time("started_at", run.StartedAt))

		err := s.connections.UpdateSyncOutcome(ctx, run.ConnectionID, models.ConnectionStatusError, nil, staleRunMessage)
		if err != nil {
			// The connection may have been deleted since the run started.
			s.logger.Warn("could not project stale run onto connection",
				zap.String("connection_id", run.ConnectionID.String()),
				zap.Error(err))
		}
	}

	return len(demoted), nil
}

// executeSync is the body of the background task. It settles the run into
// a terminal status on every path; only a process crash leaves a run
// dangling, and the janitor covers that.
func (s *syncService) executeSync(ctx context.Context, connectionID, runID uuid.UUID) error {
	if err := s.runs.MarkRunning(ctx, runID); err != nil {
		// The janitor or a competing worker already settled this run.
		return fmt.Errorf("run %s could not be claimed: %w", runID, err)
	}

	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return s.failRun(ctx, runID, connectionID, fmt.Sprintf("connection lookup failed: %v", err))
	}

	adapter, ok := s.registry.Get(conn.Platform)
	if !ok {
		return s.failRun(ctx, runID, conn.ID, fmt.Sprintf("no adapter registered for platform %q", conn.Platform))
	}

	ciphertext, err := s.connections.GetSecret(ctx, conn.ID)
	if err != nil {
		return s.failRun(ctx, runID, conn.ID, fmt.Sprintf("secret lookup failed: %v", err))
	}
	secret, err := s.cipher.DecryptMap(ciphertext)
	if err != nil {
		return s.failRun(ctx, runID, conn.ID, apperrors.ErrCredentialsKeyMismatch.Error())
	}

	syncCtx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout())
	defer cancel()

	result, err := adapter.Sync(syncCtx, conn.Config, secret)
	if err != nil {
		return s.failRun(ctx, runID, conn.ID, logging.SanitizeError(err))
	}

	assets := make([]models.Asset, len(result.Assets))
	for i, record := range result.Assets {
		assets[i] = models.Asset{
			ConnectionID: conn.ID,
			Type:         record.Type,
			Key:          record.Key,
			Name:         record.Name,
			Data:         record.Data,
		}
	}
	if err := s.assets.ReplaceForConnection(ctx, conn.ID, assets, s.cfg.AssetInsertBatchSize); err != nil {
		// The replace transaction rolled back; the previous snapshot is intact.
		return s.failRun(ctx, runID, conn.ID, fmt.Sprintf("asset replacement failed: %v", err))
	}

	stats := result.Stats
	if stats == nil {
		stats = map[string]int{}
	}
	stats["assets"] = len(assets)

	runStatus := models.RunStatusSuccess
	connStatus := models.ConnectionStatusConnected
	message := ""
	if len(result.Warnings) > 0 {
		runStatus = models.RunStatusWarning
		connStatus = models.ConnectionStatusWarning
		message = joinWarnings(result.Warnings)
	}

	now := time.Now()
	if err := s.runs.Complete(ctx, runID, runStatus, stats, message, now); err != nil {
		return fmt.Errorf("run %s could not be completed: %w", runID, err)
	}
	if err := s.connections.UpdateSyncOutcome(ctx, conn.ID, connStatus, &now, message); err != nil {
		return fmt.Errorf("connection %s outcome update failed: %w", conn.ID, err)
	}

	s.logger.Info("sync run settled",
		zap.String("run_id", runID.String()),
		zap.String("connection_id", conn.ID.String()),
		zap.String("status", string(runStatus)),
		zap.Int("assets", len(assets)))
	return nil
}

// failRun settles the run as error and projects the failure onto the
// connection. Assets are untouched on this path.
func (s *syncService) failRun(ctx context.Context, runID, connectionID uuid.UUID, message string) error {
	now := time.Now()
	if err := s.runs.Complete(ctx, runID, models.RunStatusError, nil, message, now); err != nil {
		s.logger.Error("could not settle failed run",
			zap.String("run_id", runID.String()),
			zap.Error(err))
	}
	if err := s.connections.UpdateSyncOutcome(ctx, connectionID, models.ConnectionStatusError, nil, message); err != nil {
		s.logger.Error("could not project failure onto connection",
			zap.String("connection_id", connectionID.String()),
			zap.Error(err))
	}
	return fmt.Errorf("sync failed: %s", message)
}

func joinWarnings(warnings []string) string {
	return strings.Join(warnings, "\n")
}

var _ SyncService = (*syncService)(nil)
