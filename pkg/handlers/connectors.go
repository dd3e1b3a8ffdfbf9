package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/apperrors"
	"github.com/hatchpad/connector-engine/pkg/models"
	"github.com/hatchpad/connector-engine/pkg/services"
)

// ValidateConnectorRequest for POST validate body.
type ValidateConnectorRequest struct {
	Platform string         `json:"platform"`
	Config   map[string]any `json:"config"`
	Secret   map[string]any `json:"secret"`
}

// CreateConnectorRequest for POST body.
type CreateConnectorRequest struct {
	Platform    string         `json:"platform"`
	DisplayName string         `json:"display_name,omitempty"`
	Config      map[string]any `json:"config"`
	Secret      map[string]any `json:"secret"`
}

// RenameConnectorRequest for PATCH name body.
type RenameConnectorRequest struct {
	DisplayName string `json:"display_name"`
}

// TriggerSyncRequest for POST sync body. The body is optional.
type TriggerSyncRequest struct {
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// ValidateConnectorResponse for validation probe result.
type ValidateConnectorResponse struct {
	Valid    bool           `json:"valid"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeleteConnectorResponse for delete result.
type DeleteConnectorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConnectorsHandler handles connector-related HTTP requests.
type ConnectorsHandler struct {
	connectorService services.ConnectorService
	syncService      services.SyncService
	logger           *zap.Logger
}

// NewConnectorsHandler creates a new connectors handler.
func NewConnectorsHandler(connectorService services.ConnectorService, syncService services.SyncService, logger *zap.Logger) *ConnectorsHandler {
	return &ConnectorsHandler{
		connectorService: connectorService,
		syncService:      syncService,
		logger:           logger,
	}
}

// RegisterRoutes registers the connectors handler's routes on the given mux.
func (h *ConnectorsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/platforms", h.Platforms)

	mux.HandleFunc("POST /api/projects/{pid}/connectors/validate", h.Validate)
	mux.HandleFunc("POST /api/projects/{pid}/connectors", h.Create)
	mux.HandleFunc("GET /api/projects/{pid}/connectors", h.List)
	mux.HandleFunc("GET /api/projects/{pid}/connectors/{id}", h.Get)
	mux.HandleFunc("PATCH /api/projects/{pid}/connectors/{id}/name", h.Rename)
	mux.HandleFunc("DELETE /api/projects/{pid}/connectors/{id}", h.Delete)

	mux.HandleFunc("POST /api/projects/{pid}/connectors/{id}/sync", h.TriggerSync)
	mux.HandleFunc("GET /api/projects/{pid}/connectors/{id}/runs", h.ListRuns)
	mux.HandleFunc("GET /api/projects/{pid}/connectors/{id}/runs/{rid}", h.GetRun)
	mux.HandleFunc("GET /api/projects/{pid}/connectors/{id}/assets", h.ListAssets)
}

// Platforms handles GET /api/platforms
// Returns the platform kinds the engine can connect to.
func (h *ConnectorsHandler) Platforms(w http.ResponseWriter, r *http.Request) {
	response := ApiResponse{Success: true, Data: h.connectorService.Platforms()}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Validate handles POST /api/projects/{pid}/connectors/validate
// Probes the platform with the supplied credentials without persisting.
// Credential rejection is a 200 with valid=false, not an error status.
func (h *ConnectorsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.projectID(w, r); !ok {
		return
	}

	var req ValidateConnectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Platform == "" {
		h.writeError(w, http.StatusBadRequest, "missing_platform", "Platform kind is required")
		return
	}

	result, err := h.connectorService.Validate(r.Context(), models.PlatformKind(req.Platform), req.Config, req.Secret)
	if err != nil {
		if errors.Is(err, apperrors.ErrPlatformNotSupported) {
			h.writeError(w, http.StatusBadRequest, "unsupported_platform", "Platform kind is not supported")
			return
		}
		h.logger.Error("Validation probe failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to validate connection")
		return
	}

	data := ValidateConnectorResponse{
		Valid:    result.Valid,
		Error:    result.Error,
		Metadata: result.Metadata,
	}
	response := ApiResponse{Success: true, Data: data}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/projects/{pid}/connectors
// Validates credentials and persists the connection with the secret encrypted.
func (h *ConnectorsHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.projectID(w, r)
	if !ok {
		return
	}

	var req CreateConnectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Platform == "" {
		h.writeError(w, http.StatusBadRequest, "missing_platform", "Platform kind is required")
		return
	}

	conn, err := h.connectorService.Connect(r.Context(), projectID, models.PlatformKind(req.Platform), req.DisplayName, req.Config, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrPlatformNotSupported):
			h.writeError(w, http.StatusBadRequest, "unsupported_platform", "Platform kind is not supported")
		case errors.Is(err, apperrors.ErrValidationFailed):
			h.writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		case errors.Is(err, apperrors.ErrConnectionExists):
			h.writeError(w, http.StatusConflict, "connection_exists", "Project already has a connection for this platform")
		default:
			h.logger.Error("Failed to create connection",
				zap.String("project_id", projectID.String()),
				zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "create_failed", "Failed to create connection")
		}
		return
	}

	response := ApiResponse{Success: true, Data: conn}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects/{pid}/connectors
// Returns all connections for the project with asset counts and recent runs.
func (h *ConnectorsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.projectID(w, r)
	if !ok {
		return
	}

	overviews, err := h.connectorService.List(r.Context(), projectID)
	if err != nil {
		h.logger.Error("Failed to list connections",
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list connections")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"connectors": overviews}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}/connectors/{id}
// Returns a single connection with asset count and recent runs.
func (h *ConnectorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, connectionID, ok := h.projectAndConnectionID(w, r)
	if !ok {
		return
	}

	overview, err := h.connectorService.Get(r.Context(), projectID, connectionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Connection not found")
			return
		}
		h.logger.Error("Failed to get connection",
			zap.String("connection_id", connectionID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get connection")
		return
	}

	response := ApiResponse{Success: true, Data: overview}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Rename handles PATCH /api/projects/{pid}/connectors/{id}/name
// Updates only the display name.
func (h *ConnectorsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	projectID, connectionID, ok := h.projectAndConnectionID(w, r)
	if !ok {
		return
	}

	var req RenameConnectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.DisplayName == "" {
		h.writeError(w, http.StatusBadRequest, "missing_name", "Display name is required")
		return
	}

	conn, err := h.connectorService.Rename(r.Context(), projectID, connectionID, req.DisplayName)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Connection not found")
			return
		}
		h.logger.Error("Failed to rename connection",
			zap.String("connection_id", connectionID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "rename_failed", "Failed to rename connection")
		return
	}

	response := ApiResponse{Success: true, Data: conn}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{pid}/connectors/{id}
// Removes the connection along with its assets and sync history.
func (h *ConnectorsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, connectionID, ok := h.projectAndConnectionID(w, r)
	if !ok {
		return
	}

	if err := h.connectorService.Disconnect(r.Context(), projectID, connectionID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Connection not found")
			return
		}
		h.logger.Error("Failed to delete connection",
			zap.String("connection_id", connectionID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "delete_failed", "Failed to delete connection")
		return
	}

	data := DeleteConnectorResponse{Success: true, Message: "Connection deleted"}
	response := ApiResponse{Success: true, Data: data}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// TriggerSync handles POST /api/projects/{pid}/connectors/{id}/sync
// Creates a pending run and returns immediately; execution is detached.
// A connection with a run already in flight gets a 409 carrying that run.
func (h *ConnectorsHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	projectID, connectionID, ok := h.projectAndConnectionID(w, r)
	if !ok {
		return
	}

	var req TriggerSyncRequest
	// The trigger body is optional; a decode failure on an empty body is fine.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.TriggeredBy == "" {
		req.TriggeredBy = "manual"
	}

	run, err := h.syncService.StartSync(r.Context(), projectID, connectionID, req.TriggeredBy)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrSyncInProgress):
			// Same envelope as every other error, with the in-flight run in
			// Data so clients can poll it without a second lookup.
			response := ApiResponse{
				Success: false,
				Error:   "sync_in_progress",
				Message: "A sync is already in progress for this connection",
				Data:    run,
			}
			if err := WriteJSON(w, http.StatusConflict, response); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "Connection not found")
		default:
			h.logger.Error("Failed to start sync",
				zap.String("connection_id", connectionID.String()),
				zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "sync_failed", "Failed to start sync")
		}
		return
	}

	response := ApiResponse{Success: true, Data: run}
	if err := WriteJSON(w, http.StatusAccepted, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListRuns handles GET /api/projects/{pid}/connectors/{id}/runs
// Returns the connection's sync history, newest first.
func (h *ConnectorsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	projectID, connectionID, ok := h.projectAndConnectionID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "Limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := h.connectorService.ListRuns(r.Context(), projectID, connectionID, limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Connection not found")
			return
		}
		h.logger.Error("Failed to list sync runs",
			zap.String("connection_id", connectionID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sync runs")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"runs": runs}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetRun handles GET /api/projects/{pid}/connectors/{id}/runs/{rid}
// Returns a single run; clients poll this while a sync is in flight.
func (h *ConnectorsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	projectID, connectionID, ok := h.projectAndConnectionID(w, r)
	if !ok {
		return
	}

	runID, err := uuid.Parse(r.PathValue("rid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_run_id", "Invalid run ID format")
		return
	}

	run, err := h.syncService.GetRun(r.Context(), projectID, connectionID, runID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Sync run not found")
			return
		}
		h.logger.Error("Failed to get sync run",
			zap.String("run_id", runID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get sync run")
		return
	}

	response := ApiResponse{Success: true, Data: run}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListAssets handles GET /api/projects/{pid}/connectors/{id}/assets
// Returns the connection's current asset snapshot. Supports ?type= filtering.
func (h *ConnectorsHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	projectID, connectionID, ok := h.projectAndConnectionID(w, r)
	if !ok {
		return
	}

	assets, err := h.connectorService.ListAssets(r.Context(), projectID, connectionID, r.URL.Query().Get("type"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Connection not found")
			return
		}
		h.logger.Error("Failed to list assets",
			zap.String("connection_id", connectionID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list assets")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"assets": assets}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ConnectorsHandler) projectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	projectID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
		return uuid.Nil, false
	}
	return projectID, true
}

func (h *ConnectorsHandler) projectAndConnectionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	projectID, ok := h.projectID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	connectionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_connector_id", "Invalid connector ID format")
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, connectionID, true
}

func (h *ConnectorsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
