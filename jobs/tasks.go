// Package jobs defines the background tasks and the Asynq worker that runs
// them.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDueRefresh re-derives due payment statuses against the
	// current date.
	TaskTypeDueRefresh = "due:refresh"
	// TaskTypeSnapshot writes a workbook snapshot of the whole ledger to
	// the backup directory.
	TaskTypeSnapshot = "backup:snapshot"
)

// DueRefreshPayload pins the reference date for status derivation. A zero
// AsOf means "now".
type DueRefreshPayload struct {
	AsOf time.Time `json:"asOf,omitempty"`
}

// SnapshotPayload names the artifact format to write.
type SnapshotPayload struct {
	Format string `json:"format"` // "xlsx" or "json"
}

// NewDueRefreshTask constructs a due-status refresh task.
func NewDueRefreshTask(payload DueRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDueRefresh, data), nil
}

// NewSnapshotTask constructs a ledger snapshot task.
func NewSnapshotTask(payload SnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSnapshot, data), nil
}
