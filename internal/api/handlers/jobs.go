package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/api/dto"
	"github.com/hugh/asset-shipper/internal/api/middleware"
	"github.com/hugh/asset-shipper/internal/api/validation"
	"github.com/hugh/asset-shipper/internal/database/models"
	"github.com/hugh/asset-shipper/internal/tasks"
)

type JobHandler struct {
	db       *gorm.DB
	enqueuer tasks.Enqueuer
	logger   *slog.Logger
}

// NewJobHandler creates the job handler. With a nil enqueuer job runs are
// recorded as pending and left for a later dispatch.
func NewJobHandler(db *gorm.DB, enqueuer tasks.Enqueuer, logger *slog.Logger) *JobHandler {
	return &JobHandler{db: db, enqueuer: enqueuer, logger: logger}
}

// JobResponse represents a job run in API responses
type JobResponse struct {
	ID                   string   `json:"id"`
	Kind                 string   `json:"kind"`
	Status               string   `json:"status"`
	DataSource           string   `json:"data_source"`
	SourceDisplayName    string   `json:"source_display_name,omitempty"`
	ReportingSource      string   `json:"reporting_source,omitempty"`
	ReportingService     string   `json:"reporting_service,omitempty"`
	ReportingServiceName string   `json:"reporting_service_name,omitempty"`
	Prefix               string   `json:"prefix,omitempty"`
	AssetTypes           []string `json:"asset_types,omitempty"`
	StartedAt            int64    `json:"started_at,omitempty"`
	CompletedAt          int64    `json:"completed_at,omitempty"`
	DurationMs           int64    `json:"duration_ms,omitempty"`
	Error                string   `json:"error,omitempty"`
	NewAssets            int      `json:"new_assets"`
	UpdatedAssets        int      `json:"updated_assets"`
	MissingAssets        int      `json:"missing_assets"`
	NewPrimaryAssets     int      `json:"new_primary_assets"`
	UpdatedPrimaryAssets int      `json:"updated_primary_assets"`
	DeletedPrimaryAssets int      `json:"deleted_primary_assets"`
	DeletedOpinions      int      `json:"deleted_opinions"`
	RelationDocuments    int      `json:"relation_documents"`
	StateChanges         int      `json:"state_changes"`
	TaskID               string   `json:"task_id,omitempty"`
	CreatedAt            string   `json:"created_at"`
}

func jobToResponse(run *models.JobRun) JobResponse {
	return JobResponse{
		ID:                   run.ID.String(),
		Kind:                 string(run.Kind),
		Status:               string(run.Status),
		DataSource:           run.DataSource,
		SourceDisplayName:    run.SourceDisplayName,
		ReportingSource:      run.ReportingSource,
		ReportingService:     run.ReportingService,
		ReportingServiceName: run.ReportingServiceName,
		Prefix:               run.Prefix,
		AssetTypes:           run.AssetTypes,
		StartedAt:            run.StartedAt,
		CompletedAt:          run.CompletedAt,
		DurationMs:           run.DurationMs,
		Error:                run.Error,
		NewAssets:            run.NewAssets,
		UpdatedAssets:        run.UpdatedAssets,
		MissingAssets:        run.MissingAssets,
		NewPrimaryAssets:     run.NewPrimaryAssets,
		UpdatedPrimaryAssets: run.UpdatedPrimaryAssets,
		DeletedPrimaryAssets: run.DeletedPrimaryAssets,
		DeletedOpinions:      run.DeletedOpinions,
		RelationDocuments:    run.RelationDocuments,
		StateChanges:         run.StateChanges,
		TaskID:               run.TaskID,
		CreatedAt:            run.CreatedAt.Format(time.RFC3339),
	}
}

// CreateReconcile handles POST /api/v1/jobs/reconcile
func (h *JobHandler) CreateReconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	h.create(w, r, &models.JobRun{
		TenantID:             middleware.GetTenantID(r.Context()),
		Kind:                 models.JobKindReconcile,
		Status:               models.JobStatusPending,
		DataSource:           req.DataSource,
		SourceDisplayName:    validation.SanitizeString(req.SourceDisplayName),
		ReportingSource:      req.ReportingSource,
		ReportingService:     req.ReportingService,
		ReportingServiceName: validation.SanitizeString(req.ReportingServiceName),
		Prefix:               req.Prefix,
		AssetTypes:           req.AssetTypes,
	})
}

// CreateAssetState handles POST /api/v1/jobs/asset-state
func (h *JobHandler) CreateAssetState(w http.ResponseWriter, r *http.Request) {
	var req dto.AssetStateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	h.create(w, r, &models.JobRun{
		TenantID:   middleware.GetTenantID(r.Context()),
		Kind:       models.JobKindAssetState,
		Status:     models.JobStatusPending,
		DataSource: req.DataSource,
		AssetTypes: req.AssetTypes,
	})
}

func (h *JobHandler) create(w http.ResponseWriter, r *http.Request, run *models.JobRun) {
	if err := h.db.WithContext(r.Context()).Create(run).Error; err != nil {
		h.logger.Error("failed to create job run", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if h.enqueuer != nil {
		if _, err := tasks.EnqueueJobRun(r.Context(), h.db, h.enqueuer, run); err != nil {
			h.logger.Error("failed to enqueue job run", "job_run_id", run.ID, "error", err)
			h.db.Model(run).Updates(map[string]interface{}{
				"status": models.JobStatusFailed,
				"error":  "enqueue failed",
			})
			writeError(w, http.StatusInternalServerError, "Failed to enqueue job")
			return
		}
	}

	writeJSON(w, http.StatusCreated, jobToResponse(run))
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	pagination := dto.ParsePagination(r.URL.Query())

	query := h.db.WithContext(r.Context()).Model(&models.JobRun{}).Where("tenant_id = ?", tenantID)
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if source := r.URL.Query().Get("data_source"); source != "" {
		query = query.Where("data_source = ?", source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}

	var runs []models.JobRun
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&runs).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	response := make([]JobResponse, len(runs))
	for i := range runs {
		response[i] = jobToResponse(&runs[i])
	}

	writeJSON(w, http.StatusOK, dto.NewPage(response, total, pagination))
}

// Get handles GET /api/v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	var run models.JobRun
	err = h.db.WithContext(r.Context()).Where("id = ? AND tenant_id = ?", runID, tenantID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, jobToResponse(&run))
}
