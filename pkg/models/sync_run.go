package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the sync run state machine:
// pending -> running -> {success | warning | error}.
// Terminal statuses are immutable once written.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusWarning RunStatus = "warning"
	RunStatusError   RunStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusWarning, RunStatusError:
		return true
	}
	return false
}

// SyncRun is one execution attempt of a platform sync, recorded for audit
// and polled by clients while the background task works.
type SyncRun struct {
	ID           uuid.UUID      `json:"id"`
	ConnectionID uuid.UUID      `json:"connection_id"`
	TriggeredBy  string         `json:"triggered_by"`
	Status       RunStatus      `json:"status"`
	Stats        map[string]int `json:"stats,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}
