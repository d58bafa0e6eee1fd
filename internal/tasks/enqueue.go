package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/assets"
	"github.com/hugh/asset-shipper/internal/database/models"
)

// Enqueuer is the subset of *asynq.Client used to dispatch tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueJobRun dispatches the task for a pending job run and records the
// task id on the row.
func EnqueueJobRun(ctx context.Context, db *gorm.DB, client Enqueuer, run *models.JobRun) (string, error) {
	var (
		task *asynq.Task
		err  error
	)
	payload := JobRunPayload{JobRunID: run.ID}

	switch run.Kind {
	case models.JobKindReconcile:
		task, err = NewReconcileTask(payload)
	case models.JobKindAssetState:
		task, err = NewAssetStateTask(payload)
	default:
		return "", fmt.Errorf("unknown job kind %q", run.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	info, err := client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("enqueuing task: %w", err)
	}

	run.TaskID = info.ID
	if err := db.WithContext(ctx).Model(&models.JobRun{}).Where("id = ?", run.ID).Update("task_id", info.ID).Error; err != nil {
		return info.ID, fmt.Errorf("recording task id: %w", err)
	}
	return info.ID, nil
}

// CompletionPublisher publishes completion events as low priority tasks.
type CompletionPublisher struct {
	client Enqueuer
	logger *slog.Logger
}

func NewCompletionPublisher(client Enqueuer, logger *slog.Logger) *CompletionPublisher {
	return &CompletionPublisher{client: client, logger: logger}
}

// PublishCompletion implements assets.Notifier
func (p *CompletionPublisher) PublishCompletion(ctx context.Context, event assets.CompletionEvent) error {
	task, err := NewCompletedTask(event)
	if err != nil {
		return fmt.Errorf("creating completion task: %w", err)
	}

	info, err := p.client.EnqueueContext(ctx, task, asynq.Queue(QueueLow), asynq.MaxRetry(5))
	if err != nil {
		return fmt.Errorf("enqueuing completion: %w", err)
	}

	p.logger.Debug("published completion", "task_id", info.ID, "tenant", event.TenantID, "source", event.DataSource)
	return nil
}

var _ assets.Notifier = (*CompletionPublisher)(nil)
