package models

import (
	"time"

	"github.com/google/uuid"
)

// Asset is one normalized object mirrored from an external platform: a
// table, a deployment, an endpoint, a schema. The (ConnectionID, Type, Key)
// triple is unique per connection and stable across syncs of the same
// platform kind, so each sync fully supersedes the previous snapshot.
type Asset struct {
	ID           uuid.UUID      `json:"id"`
	ConnectionID uuid.UUID      `json:"connection_id"`
	Type         string         `json:"asset_type"`
	Key          string         `json:"asset_key"`
	Name         string         `json:"name"`
	Data         map[string]any `json:"data"`
	CreatedAt    time.Time      `json:"created_at"`
}
