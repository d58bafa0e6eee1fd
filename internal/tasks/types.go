package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/hugh/asset-shipper/internal/assets"
)

// Task type names
const (
	TypeReconcile  = "shipper:reconcile"
	TypeAssetState = "shipper:asset_state"
	TypeCompleted  = "shipper:completed"
	TypeStateSweep = "shipper:state_sweep"
)

// Queue names, matching the weights configured in pkg/queue.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// JobRunPayload points a task at the job run row describing its scope.
type JobRunPayload struct {
	JobRunID uuid.UUID `json:"job_run_id"`
}

func NewReconcileTask(payload JobRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcile, data), nil
}

func NewAssetStateTask(payload JobRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAssetState, data), nil
}

// NewCompletedTask carries a completion event to the next pipeline stage.
func NewCompletedTask(event assets.CompletionEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCompleted, data), nil
}

// NewStateSweepTask is empty: the sweep covers every tenant and source.
func NewStateSweepTask() *asynq.Task {
	return asynq.NewTask(TypeStateSweep, nil)
}
