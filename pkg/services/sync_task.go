package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hatchpad/connector-engine/pkg/services/workqueue"
)

// syncTask carries one run through the work queue. It holds ids only; all
// state lives in the database so a task snapshot never exposes secrets.
type syncTask struct {
	workqueue.BaseTask

	service      *syncService
	connectionID uuid.UUID
	runID        uuid.UUID
}

func newSyncTask(service *syncService, connectionID, runID uuid.UUID) *syncTask {
	return &syncTask{
		BaseTask:     workqueue.NewBaseTask(fmt.Sprintf("sync connection %s", connectionID)),
		service:      service,
		connectionID: connectionID,
		runID:        runID,
	}
}

// Execute runs the sync. The run row reaches a terminal status on every
// path through executeSync; the returned error only feeds queue logging.
func (t *syncTask) Execute(ctx context.Context) error {
	return t.service.executeSync(ctx, t.connectionID, t.runID)
}

var _ workqueue.Task = (*syncTask)(nil)
