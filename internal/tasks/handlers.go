package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/assets"
	"github.com/hugh/asset-shipper/internal/database/models"
)

// Reconciler runs a reconciliation job.
type Reconciler interface {
	Ship(ctx context.Context, job assets.Job) (*assets.ShipResult, error)
}

// StateEvaluator runs the asset state pass.
type StateEvaluator interface {
	Evaluate(ctx context.Context, tenantID, source string, assetTypes []string) (int, error)
}

type Handler struct {
	db       *gorm.DB
	logger   *slog.Logger
	shipper  Reconciler
	states   StateEvaluator
	enqueuer Enqueuer
}

// NewHandler creates the task handler. enqueuer may be nil, in which case the
// state sweep evaluates inline instead of fanning out tasks.
func NewHandler(db *gorm.DB, logger *slog.Logger, shipper Reconciler, states StateEvaluator, enqueuer Enqueuer) *Handler {
	return &Handler{
		db:       db,
		logger:   logger,
		shipper:  shipper,
		states:   states,
		enqueuer: enqueuer,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReconcile, h.HandleReconcile)
	mux.HandleFunc(TypeAssetState, h.HandleAssetState)
	mux.HandleFunc(TypeStateSweep, h.HandleStateSweep)
	mux.HandleFunc(TypeCompleted, h.HandleCompleted)
}

func (h *Handler) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	run, err := h.loadRun(t, models.JobKindReconcile)
	if err != nil || run == nil {
		return err
	}

	h.logger.Info("starting reconcile job",
		"job_run_id", run.ID,
		"tenant", run.TenantID,
		"source", run.DataSource,
		"reporting_source", run.ReportingSource,
	)

	if err := h.updateJobStatus(run.ID, models.JobStatusRunning); err != nil {
		return err
	}

	started := time.Now()
	result, err := h.shipper.Ship(ctx, assets.Job{
		TenantID:             run.TenantID,
		DataSource:           run.DataSource,
		SourceDisplayName:    run.SourceDisplayName,
		ReportingSource:      run.ReportingSource,
		ReportingService:     run.ReportingService,
		ReportingServiceName: run.ReportingServiceName,
		Prefix:               run.Prefix,
		AssetTypes:           run.AssetTypes,
		ScanTime:             started.UTC(),
	})
	if err != nil {
		h.logger.Error("reconcile job failed", "job_run_id", run.ID, "error", err)
		if updateErr := h.updateJobStatusWithError(run.ID, err.Error(), started); updateErr != nil {
			h.logger.Error("failed to update job status", "error", updateErr)
		}
		return err
	}

	updates := map[string]interface{}{
		"new_assets":             result.NewAssets,
		"updated_assets":         result.UpdatedAssets,
		"missing_assets":         result.MissingAssets,
		"new_primary_assets":     result.NewPrimaryAssets,
		"updated_primary_assets": result.UpdatedPrimaryAssets,
		"deleted_primary_assets": result.DeletedPrimaryAssets,
		"deleted_opinions":       result.DeletedOpinions,
		"relation_documents":     result.RelationDocuments,
	}
	if err := h.completeJob(run.ID, started, updates); err != nil {
		return err
	}

	h.logger.Info("completed reconcile job",
		"job_run_id", run.ID,
		"types", len(result.AssetTypes),
		"new", result.NewAssets,
		"updated", result.UpdatedAssets,
		"missing", result.MissingAssets,
	)
	return nil
}

func (h *Handler) HandleAssetState(ctx context.Context, t *asynq.Task) error {
	run, err := h.loadRun(t, models.JobKindAssetState)
	if err != nil || run == nil {
		return err
	}
	return h.runAssetState(ctx, run)
}

// HandleStateSweep schedules a state pass for every tenant and data source
// that has documents.
func (h *Handler) HandleStateSweep(ctx context.Context, _ *asynq.Task) error {
	var scopes []struct {
		TenantID string
		Source   string
	}
	err := h.db.WithContext(ctx).Model(&models.AssetDocument{}).
		Distinct("tenant_id", "source").
		Where("routing = ? AND source <> ?", "", "").
		Order("tenant_id, source").
		Find(&scopes).Error
	if err != nil {
		return fmt.Errorf("listing state sweep scopes: %w", err)
	}

	h.logger.Info("starting state sweep", "scopes", len(scopes))

	var errs []error
	for _, scope := range scopes {
		run := &models.JobRun{
			TenantID:   scope.TenantID,
			Kind:       models.JobKindAssetState,
			Status:     models.JobStatusPending,
			DataSource: scope.Source,
		}
		if err := h.db.WithContext(ctx).Create(run).Error; err != nil {
			return fmt.Errorf("creating job run: %w", err)
		}

		if h.enqueuer != nil {
			if _, err := EnqueueJobRun(ctx, h.db, h.enqueuer, run); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := h.runAssetState(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleCompleted records a completion event. Downstream stages subscribe to
// the same task type on their own servers.
func (h *Handler) HandleCompleted(_ context.Context, t *asynq.Task) error {
	var event assets.CompletionEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	h.logger.Info("asset shipment completed",
		"tenant", event.TenantID,
		"source", event.DataSource,
		"reporting_source", event.ReportingSource,
		"types", event.AssetTypes,
		"completed_at", event.CompletedAt,
	)
	return nil
}

func (h *Handler) runAssetState(ctx context.Context, run *models.JobRun) error {
	h.logger.Info("starting asset state job",
		"job_run_id", run.ID,
		"tenant", run.TenantID,
		"source", run.DataSource,
	)

	if err := h.updateJobStatus(run.ID, models.JobStatusRunning); err != nil {
		return err
	}

	started := time.Now()
	changed, err := h.states.Evaluate(ctx, run.TenantID, run.DataSource, run.AssetTypes)
	if err != nil {
		h.logger.Error("asset state job failed", "job_run_id", run.ID, "error", err)
		if updateErr := h.updateJobStatusWithError(run.ID, err.Error(), started); updateErr != nil {
			h.logger.Error("failed to update job status", "error", updateErr)
		}
		return err
	}

	if err := h.completeJob(run.ID, started, map[string]interface{}{"state_changes": changed}); err != nil {
		return err
	}

	h.logger.Info("completed asset state job", "job_run_id", run.ID, "changed", changed)
	return nil
}

// loadRun decodes the payload and loads its job run. A nil run with a nil
// error means the task has nothing left to do.
func (h *Handler) loadRun(t *asynq.Task, kind models.JobKind) (*models.JobRun, error) {
	var payload JobRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.JobRunID == uuid.Nil {
		return nil, fmt.Errorf("unmarshal payload: missing job_run_id: %w", asynq.SkipRetry)
	}

	var run models.JobRun
	if err := h.db.First(&run, "id = ?", payload.JobRunID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job run %s not found: %w", payload.JobRunID, asynq.SkipRetry)
		}
		return nil, fmt.Errorf("loading job run: %w", err)
	}

	if run.Kind != kind {
		return nil, fmt.Errorf("job run %s is a %s job: %w", run.ID, run.Kind, asynq.SkipRetry)
	}
	if run.Status == models.JobStatusCompleted {
		h.logger.Info("skipping completed job run", "job_run_id", run.ID)
		return nil, nil
	}
	return &run, nil
}

func (h *Handler) updateJobStatus(runID uuid.UUID, status models.JobStatus) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if status == models.JobStatusRunning {
		updates["started_at"] = time.Now().Unix()
		updates["error"] = ""
	}

	return h.db.Model(&models.JobRun{}).Where("id = ?", runID).Updates(updates).Error
}

func (h *Handler) updateJobStatusWithError(runID uuid.UUID, errMsg string, started time.Time) error {
	updates := map[string]interface{}{
		"status":       models.JobStatusFailed,
		"error":        errMsg,
		"updated_at":   time.Now(),
		"completed_at": time.Now().Unix(),
		"duration_ms":  time.Since(started).Milliseconds(),
	}

	return h.db.Model(&models.JobRun{}).Where("id = ?", runID).Updates(updates).Error
}

func (h *Handler) completeJob(runID uuid.UUID, started time.Time, stats map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"updated_at":   time.Now(),
		"completed_at": time.Now().Unix(),
		"duration_ms":  time.Since(started).Milliseconds(),
	}
	for k, v := range stats {
		updates[k] = v
	}

	return h.db.Model(&models.JobRun{}).Where("id = ?", runID).Updates(updates).Error
}
