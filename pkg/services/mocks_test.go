package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/apperrors"
	"github.com/hatchpad/connector-engine/pkg/models"
	"github.com/hatchpad/connector-engine/pkg/repositories"
	"github.com/hatchpad/connector-engine/pkg/services/workqueue"
)

// mockConnectionRepo is an in-memory ConnectionRepository.
type mockConnectionRepo struct {
	connections map[uuid.UUID]*models.Connection
	secrets     map[uuid.UUID]string

	createErr  error
	updateErr  error
	deletedIDs []uuid.UUID
	outcomes   []outcomeCall
}

type outcomeCall struct {
	ID       uuid.UUID
	Status   models.ConnectionStatus
	SyncedAt *time.Time
	SyncErr  string
}

func newMockConnectionRepo() *mockConnectionRepo {
	return &mockConnectionRepo{
		connections: make(map[uuid.UUID]*models.Connection),
		secrets:     make(map[uuid.UUID]string),
	}
}

func (m *mockConnectionRepo) add(conn *models.Connection, secret string) {
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	m.connections[conn.ID] = conn
	m.secrets[conn.ID] = secret
}

func (m *mockConnectionRepo) Create(ctx context.Context, conn *models.Connection, encryptedSecret string) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.connections {
		if existing.ProjectID == conn.ProjectID && existing.Platform == conn.Platform {
			return apperrors.ErrConnectionExists
		}
	}
	conn.ID = uuid.New()
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	m.connections[conn.ID] = conn
	m.secrets[conn.ID] = encryptedSecret
	return nil
}

func (m *mockConnectionRepo) Get(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	conn, ok := m.connections[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return conn, nil
}

func (m *mockConnectionRepo) GetByID(ctx context.Context, projectID, id uuid.UUID) (*models.Connection, error) {
	conn, ok := m.connections[id]
	if !ok || conn.ProjectID != projectID {
		return nil, apperrors.ErrNotFound
	}
	return conn, nil
}

func (m *mockConnectionRepo) GetSecret(ctx context.Context, id uuid.UUID) (string, error) {
	secret, ok := m.secrets[id]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return secret, nil
}

func (m *mockConnectionRepo) List(ctx context.Context, projectID uuid.UUID) ([]*models.Connection, error) {
	var out []*models.Connection
	for _, conn := range m.connections {
		if conn.ProjectID == projectID {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (m *mockConnectionRepo) Rename(ctx context.Context, id uuid.UUID, displayName string) error {
	conn, ok := m.connections[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	conn.DisplayName = displayName
	return nil
}

func (m *mockConnectionRepo) UpdateSyncOutcome(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, syncedAt *time.Time, syncErr string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	conn, ok := m.connections[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	conn.Status = status
	if syncedAt != nil {
		conn.LastSyncedAt = syncedAt
	}
	conn.LastSyncErr = syncErr
	m.outcomes = append(m.outcomes, outcomeCall{ID: id, Status: status, SyncedAt: syncedAt, SyncErr: syncErr})
	return nil
}

func (m *mockConnectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.connections[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.connections, id)
	delete(m.secrets, id)
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

// mockAssetRepo is an in-memory AssetRepository.
type mockAssetRepo struct {
	byConnection map[uuid.UUID][]models.Asset
	replaceErr   error
	replaceCalls int
}

func newMockAssetRepo() *mockAssetRepo {
	return &mockAssetRepo{byConnection: make(map[uuid.UUID][]models.Asset)}
}

func (m *mockAssetRepo) ReplaceForConnection(ctx context.Context, connectionID uuid.UUID, assets []models.Asset, batchSize int) error {
	m.replaceCalls++
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.byConnection[connectionID] = assets
	return nil
}

func (m *mockAssetRepo) ListByConnection(ctx context.Context, connectionID uuid.UUID, assetType string) ([]models.Asset, error) {
	var out []models.Asset
	for _, asset := range m.byConnection[connectionID] {
		if assetType == "" || asset.Type == assetType {
			out = append(out, asset)
		}
	}
	return out, nil
}

func (m *mockAssetRepo) CountByConnections(ctx context.Context, connectionIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	for _, id := range connectionIDs {
		if n := len(m.byConnection[id]); n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}

// mockRunRepo is an in-memory SyncRunRepository.
type mockRunRepo struct {
	runs map[uuid.UUID]*models.SyncRun
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[uuid.UUID]*models.SyncRun)}
}

func (m *mockRunRepo) inflight(connectionID uuid.UUID) *models.SyncRun {
	for _, run := range m.runs {
		if run.ConnectionID == connectionID && !run.Status.Terminal() {
			return run
		}
	}
	return nil
}

func (m *mockRunRepo) CreateIfIdle(ctx context.Context, run *models.SyncRun) (*models.SyncRun, error) {
	if existing := m.inflight(run.ConnectionID); existing != nil {
		return existing, apperrors.ErrSyncInProgress
	}
	run.ID = uuid.New()
	run.Status = models.RunStatusPending
	run.StartedAt = time.Now()
	m.runs[run.ID] = run
	return nil, nil
}

func (m *mockRunRepo) Get(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return run, nil
}

func (m *mockRunRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	run, ok := m.runs[id]
	if !ok || run.Status != models.RunStatusPending {
		return apperrors.ErrConflict
	}
	run.Status = models.RunStatusRunning
	return nil
}

func (m *mockRunRepo) Complete(ctx context.Context, id uuid.UUID, status models.RunStatus, stats map[string]int, errMsg string, finishedAt time.Time) error {
	run, ok := m.runs[id]
	if !ok || run.Status.Terminal() {
		return apperrors.ErrConflict
	}
	run.Status = status
	run.Stats = stats
	run.Error = errMsg
	run.FinishedAt = &finishedAt
	return nil
}

func (m *mockRunRepo) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]models.SyncRun, error) {
	var out []models.SyncRun
	for _, run := range m.runs {
		if run.ConnectionID == connectionID {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (m *mockRunRepo) DemoteStale(ctx context.Context, startedBefore time.Time, errMsg string) ([]models.SyncRun, error) {
	var demoted []models.SyncRun
	now := time.Now()
	for _, run := range m.runs {
		if !run.Status.Terminal() && run.StartedAt.Before(startedBefore) {
			run.Status = models.RunStatusError
			run.Error = errMsg
			run.FinishedAt = &now
			demoted = append(demoted, *run)
		}
	}
	return demoted, nil
}

// mockAdapter is a scriptable platform adapter.
type mockAdapter struct {
	kind           models.PlatformKind
	validateResult *platform.ValidationResult
	validateErr    error
	syncResult     *platform.SyncResult
	syncErr        error
	gotSecret      map[string]any
}

func (m *mockAdapter) Kind() models.PlatformKind { return m.kind }

func (m *mockAdapter) ValidateConnection(ctx context.Context, config, secret map[string]any) (*platform.ValidationResult, error) {
	m.gotSecret = secret
	if m.validateErr != nil {
		return nil, m.validateErr
	}
	if m.validateResult != nil {
		return m.validateResult, nil
	}
	return &platform.ValidationResult{Valid: true}, nil
}

func (m *mockAdapter) Sync(ctx context.Context, config, secret map[string]any) (*platform.SyncResult, error) {
	m.gotSecret = secret
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	if m.syncResult != nil {
		return m.syncResult, nil
	}
	return &platform.SyncResult{}, nil
}

// syncEnqueuer records enqueued tasks without running them, so tests drive
// execution explicitly.
type syncEnqueuer struct {
	tasks []workqueue.Task
}

func (e *syncEnqueuer) Enqueue(task workqueue.Task) {
	e.tasks = append(e.tasks, task)
}

var (
	_ repositories.ConnectionRepository = (*mockConnectionRepo)(nil)
	_ repositories.AssetRepository      = (*mockAssetRepo)(nil)
	_ repositories.SyncRunRepository    = (*mockRunRepo)(nil)
	_ platform.Adapter                  = (*mockAdapter)(nil)
)
