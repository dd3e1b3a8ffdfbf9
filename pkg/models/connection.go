package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformKind identifies the external platform a connection talks to.
// The set is closed: adapters exist for exactly these values.
type PlatformKind string

const (
	PlatformSupabase PlatformKind = "supabase"
	PlatformVercel   PlatformKind = "vercel"
	PlatformOpenAPI  PlatformKind = "openapi"
)

// ConnectionStatus reflects the outcome of the most recent settled sync.
// A connection with no row simply does not exist; there is no pending state
// at the connection level, only runs are pending.
type ConnectionStatus string

const (
	ConnectionStatusConnected ConnectionStatus = "connected"
	ConnectionStatusWarning   ConnectionStatus = "warning"
	ConnectionStatusError     ConnectionStatus = "error"
)

// Connection is a configured link between a project and one external
// platform instance. Config holds non-secret settings (URLs, identifiers,
// format hints) and is readable by any project member. The secret credential
// blob is stored encrypted and never appears on this struct.
type Connection struct {
	ID           uuid.UUID        `json:"id"`
	ProjectID    uuid.UUID        `json:"project_id"`
	Platform     PlatformKind     `json:"platform"`
	DisplayName  string           `json:"display_name"`
	Status       ConnectionStatus `json:"status"`
	Config       map[string]any   `json:"config"`
	LastSyncedAt *time.Time       `json:"last_synced_at,omitempty"`
	LastSyncErr  string           `json:"last_sync_error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ConnectionOverview is the listing projection: the connection plus the
// denormalized counts the UI needs without extra round-trips.
type ConnectionOverview struct {
	Connection
	AssetCount int       `json:"asset_count"`
	RecentRuns []SyncRun `json:"recent_runs"`
}
