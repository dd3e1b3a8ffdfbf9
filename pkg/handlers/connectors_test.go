package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/apperrors"
	"github.com/hatchpad/connector-engine/pkg/models"
)

// mockConnectorService scripts ConnectorService responses per test.
type mockConnectorService struct {
	platforms  []platform.Info
	validate   func(kind models.PlatformKind, cfg, secret map[string]any) (*platform.ValidationResult, error)
	connect    func() (*models.Connection, error)
	get        func() (*models.ConnectionOverview, error)
	list       func() ([]models.ConnectionOverview, error)
	rename     func(name string) (*models.Connection, error)
	disconnect func() error
	listAssets func(assetType string) ([]models.Asset, error)
	listRuns   func(limit int) ([]models.SyncRun, error)
}

func (m *mockConnectorService) Platforms() []platform.Info { return m.platforms }

func (m *mockConnectorService) Validate(ctx context.Context, kind models.PlatformKind, cfg, secret map[string]any) (*platform.ValidationResult, error) {
	return m.validate(kind, cfg, secret)
}

func (m *mockConnectorService) Connect(ctx context.Context, projectID uuid.UUID, kind models.PlatformKind, displayName string, cfg, secret map[string]any) (*models.Connection, error) {
	return m.connect()
}

func (m *mockConnectorService) Get(ctx context.Context, projectID, connectionID uuid.UUID) (*models.ConnectionOverview, error) {
	return m.get()
}

func (m *mockConnectorService) List(ctx context.Context, projectID uuid.UUID) ([]models.ConnectionOverview, error) {
	return m.list()
}

func (m *mockConnectorService) Rename(ctx context.Context, projectID, connectionID uuid.UUID, displayName string) (*models.Connection, error) {
	return m.rename(displayName)
}

func (m *mockConnectorService) Disconnect(ctx context.Context, projectID, connectionID uuid.UUID) error {
	return m.disconnect()
}

func (m *mockConnectorService) ListAssets(ctx context.Context, projectID, connectionID uuid.UUID, assetType string) ([]models.Asset, error) {
	return m.listAssets(assetType)
}

func (m *mockConnectorService) ListRuns(ctx context.Context, projectID, connectionID uuid.UUID, limit int) ([]models.SyncRun, error) {
	return m.listRuns(limit)
}

// mockSyncService scripts SyncService responses per test.
type mockSyncService struct {
	startSync func(triggeredBy string) (*models.SyncRun, error)
	getRun    func() (*models.SyncRun, error)
}

func (m *mockSyncService) StartSync(ctx context.Context, projectID, connectionID uuid.UUID, triggeredBy string) (*models.SyncRun, error) {
	return m.startSync(triggeredBy)
}

func (m *mockSyncService) GetRun(ctx context.Context, projectID, connectionID, runID uuid.UUID) (*models.SyncRun, error) {
	return m.getRun()
}

func (m *mockSyncService) SweepStaleRuns(ctx context.Context) (int, error) {
	return 0, nil
}

func newTestMux(connector *mockConnectorService, sync *mockSyncService) *http.ServeMux {
	mux := http.NewServeMux()
	NewConnectorsHandler(connector, sync, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPlatformsEndpoint(t *testing.T) {
	connector := &mockConnectorService{
		platforms: []platform.Info{
			{Kind: models.PlatformSupabase, DisplayName: "Supabase"},
			{Kind: models.PlatformVercel, DisplayName: "Vercel"},
		},
	}
	mux := newTestMux(connector, &mockSyncService{})

	rec := doJSON(t, mux, http.MethodGet, "/api/platforms", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["data"], 2)
}

func TestValidateEndpoint(t *testing.T) {
	projectID := uuid.New()

	t.Run("invalid credentials still 200", func(t *testing.T) {
		connector := &mockConnectorService{
			validate: func(kind models.PlatformKind, cfg, secret map[string]any) (*platform.ValidationResult, error) {
				assert.Equal(t, models.PlatformSupabase, kind)
				return &platform.ValidationResult{Valid: false, Error: "authentication failed"}, nil
			},
		}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/projects/%s/connectors/validate", projectID),
			ValidateConnectorRequest{Platform: "supabase", Secret: map[string]any{"service_key": "bad"}})
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, false, data["valid"])
		assert.Equal(t, "authentication failed", data["error"])
	})

	t.Run("unsupported platform", func(t *testing.T) {
		connector := &mockConnectorService{
			validate: func(kind models.PlatformKind, cfg, secret map[string]any) (*platform.ValidationResult, error) {
				return nil, apperrors.ErrPlatformNotSupported
			},
		}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/projects/%s/connectors/validate", projectID),
			ValidateConnectorRequest{Platform: "heroku"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing platform", func(t *testing.T) {
		mux := newTestMux(&mockConnectorService{}, &mockSyncService{})
		rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/projects/%s/connectors/validate", projectID),
			ValidateConnectorRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid project id", func(t *testing.T) {
		mux := newTestMux(&mockConnectorService{}, &mockSyncService{})
		rec := doJSON(t, mux, http.MethodPost, "/api/projects/not-a-uuid/connectors/validate",
			ValidateConnectorRequest{Platform: "supabase"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateEndpoint(t *testing.T) {
	projectID := uuid.New()

	t.Run("created", func(t *testing.T) {
		conn := &models.Connection{ID: uuid.New(), ProjectID: projectID, Platform: models.PlatformSupabase, DisplayName: "Supabase"}
		connector := &mockConnectorService{connect: func() (*models.Connection, error) { return conn, nil }}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/projects/%s/connectors", projectID),
			CreateConnectorRequest{Platform: "supabase", Config: map[string]any{"url": "https://x.supabase.co"}, Secret: map[string]any{"service_key": "k"}})
		require.Equal(t, http.StatusCreated, rec.Code)

		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, conn.ID.String(), data["id"])
		// The secret never appears in a response body.
		assert.NotContains(t, rec.Body.String(), "service_key")
	})

	t.Run("validation failure", func(t *testing.T) {
		connector := &mockConnectorService{connect: func() (*models.Connection, error) {
			return nil, fmt.Errorf("%w: authentication failed", apperrors.ErrValidationFailed)
		}}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/projects/%s/connectors", projectID),
			CreateConnectorRequest{Platform: "supabase"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("duplicate platform", func(t *testing.T) {
		connector := &mockConnectorService{connect: func() (*models.Connection, error) {
			return nil, apperrors.ErrConnectionExists
		}}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/projects/%s/connectors", projectID),
			CreateConnectorRequest{Platform: "supabase"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestTriggerSyncEndpoint(t *testing.T) {
	projectID := uuid.New()
	connectionID := uuid.New()
	path := fmt.Sprintf("/api/projects/%s/connectors/%s/sync", projectID, connectionID)

	t.Run("accepted", func(t *testing.T) {
		run := &models.SyncRun{ID: uuid.New(), ConnectionID: connectionID, Status: models.RunStatusPending, TriggeredBy: "manual"}
		sync := &mockSyncService{startSync: func(triggeredBy string) (*models.SyncRun, error) {
			assert.Equal(t, "manual", triggeredBy)
			return run, nil
		}}
		mux := newTestMux(&mockConnectorService{}, sync)

		rec := doJSON(t, mux, http.MethodPost, path, nil)
		require.Equal(t, http.StatusAccepted, rec.Code)

		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, run.ID.String(), data["id"])
		assert.Equal(t, "pending", data["status"])
	})

	t.Run("conflict carries inflight run", func(t *testing.T) {
		inflight := &models.SyncRun{ID: uuid.New(), ConnectionID: connectionID, Status: models.RunStatusRunning}
		sync := &mockSyncService{startSync: func(triggeredBy string) (*models.SyncRun, error) {
			return inflight, apperrors.ErrSyncInProgress
		}}
		mux := newTestMux(&mockConnectorService{}, sync)

		rec := doJSON(t, mux, http.MethodPost, path, nil)
		require.Equal(t, http.StatusConflict, rec.Code)

		// The conflict uses the standard envelope, with the in-flight run
		// in data for immediate polling.
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "sync_in_progress", body["error"])
		runData := body["data"].(map[string]any)
		assert.Equal(t, inflight.ID.String(), runData["id"])
		assert.Equal(t, "running", runData["status"])
	})

	t.Run("connection not found", func(t *testing.T) {
		sync := &mockSyncService{startSync: func(triggeredBy string) (*models.SyncRun, error) {
			return nil, apperrors.ErrNotFound
		}}
		mux := newTestMux(&mockConnectorService{}, sync)

		rec := doJSON(t, mux, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetRunEndpoint(t *testing.T) {
	projectID := uuid.New()
	connectionID := uuid.New()
	runID := uuid.New()

	run := &models.SyncRun{ID: runID, ConnectionID: connectionID, Status: models.RunStatusSuccess, Stats: map[string]int{"assets": 3}}
	sync := &mockSyncService{getRun: func() (*models.SyncRun, error) { return run, nil }}
	mux := newTestMux(&mockConnectorService{}, sync)

	rec := doJSON(t, mux, http.MethodGet,
		fmt.Sprintf("/api/projects/%s/connectors/%s/runs/%s", projectID, connectionID, runID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "success", data["status"])
}

func TestListRunsEndpoint(t *testing.T) {
	projectID := uuid.New()
	connectionID := uuid.New()

	t.Run("limit passed through", func(t *testing.T) {
		var gotLimit int
		connector := &mockConnectorService{listRuns: func(limit int) ([]models.SyncRun, error) {
			gotLimit = limit
			return []models.SyncRun{{ID: uuid.New(), ConnectionID: connectionID}}, nil
		}}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodGet,
			fmt.Sprintf("/api/projects/%s/connectors/%s/runs?limit=3", projectID, connectionID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, gotLimit)
	})

	t.Run("bad limit", func(t *testing.T) {
		mux := newTestMux(&mockConnectorService{}, &mockSyncService{})
		rec := doJSON(t, mux, http.MethodGet,
			fmt.Sprintf("/api/projects/%s/connectors/%s/runs?limit=zero", projectID, connectionID), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListAssetsEndpoint(t *testing.T) {
	projectID := uuid.New()
	connectionID := uuid.New()

	var gotType string
	connector := &mockConnectorService{listAssets: func(assetType string) ([]models.Asset, error) {
		gotType = assetType
		return []models.Asset{{ID: uuid.New(), ConnectionID: connectionID, Type: "table", Key: "public.tasks"}}, nil
	}}
	mux := newTestMux(connector, &mockSyncService{})

	rec := doJSON(t, mux, http.MethodGet,
		fmt.Sprintf("/api/projects/%s/connectors/%s/assets?type=table", projectID, connectionID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "table", gotType)

	data := decodeBody(t, rec)["data"].(map[string]any)
	assets := data["assets"].([]any)
	require.Len(t, assets, 1)
	assert.Equal(t, "public.tasks", assets[0].(map[string]any)["asset_key"])
}

func TestRenameEndpoint(t *testing.T) {
	projectID := uuid.New()
	connectionID := uuid.New()
	path := fmt.Sprintf("/api/projects/%s/connectors/%s/name", projectID, connectionID)

	t.Run("renamed", func(t *testing.T) {
		connector := &mockConnectorService{rename: func(name string) (*models.Connection, error) {
			return &models.Connection{ID: connectionID, ProjectID: projectID, DisplayName: name}, nil
		}}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodPatch, path, RenameConnectorRequest{DisplayName: "Production"})
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, "Production", data["display_name"])
	})

	t.Run("missing name", func(t *testing.T) {
		mux := newTestMux(&mockConnectorService{}, &mockSyncService{})
		rec := doJSON(t, mux, http.MethodPatch, path, RenameConnectorRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteEndpoint(t *testing.T) {
	projectID := uuid.New()
	connectionID := uuid.New()
	path := fmt.Sprintf("/api/projects/%s/connectors/%s", projectID, connectionID)

	t.Run("deleted", func(t *testing.T) {
		connector := &mockConnectorService{disconnect: func() error { return nil }}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		connector := &mockConnectorService{disconnect: func() error { return apperrors.ErrNotFound }}
		mux := newTestMux(connector, &mockSyncService{})

		rec := doJSON(t, mux, http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
