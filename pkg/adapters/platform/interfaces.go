// Package platform defines the contract every external-platform adapter
// implements, and the registry the orchestrator dispatches through.
package platform

import (
	"context"

	"github.com/hatchpad/connector-engine/pkg/models"
)

// ValidationResult is the outcome of a read-only connectivity probe.
// Transport failures and rejected credentials both surface as Valid=false
// with a descriptive Error; a probe never mutates any store and never
// returns the secret inside Metadata.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AssetRecord is one normalized object produced by a sync, before it is
// attached to a connection and persisted. (Type, Key) must be stable across
// syncs of the same platform kind so snapshots supersede cleanly.
type AssetRecord struct {
	Type string
	Key  string
	Name string
	Data map[string]any
}

// SyncResult is a successful (possibly degraded) sync outcome.
// Warnings enumerate non-fatal partial failures; their presence downgrades
// the connection to warning status but does not fail the run.
type SyncResult struct {
	Assets   []AssetRecord
	Stats    map[string]int
	Warnings []string
}

// Adapter talks to exactly one external platform kind.
//
// ValidateConnection must not mutate anything and must fold timeouts and
// transport errors into the result rather than failing. Sync returns an
// error only for hard failures (cannot authenticate, cannot reach the
// platform); the caller then leaves the previous asset snapshot untouched.
type Adapter interface {
	Kind() models.PlatformKind
	ValidateConnection(ctx context.Context, config, secret map[string]any) (*ValidationResult, error)
	Sync(ctx context.Context, config, secret map[string]any) (*SyncResult, error)
}
