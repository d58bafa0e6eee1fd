package models

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type JobKind string

const (
	JobKindReconcile  JobKind = "reconcile"
	JobKindAssetState JobKind = "asset_state"
)

// JobRun tracks one unit of work from trigger to completion.
type JobRun struct {
	Base
	TenantID string    `gorm:"index;not null" json:"tenant_id"`
	Kind     JobKind   `gorm:"not null" json:"kind"`
	Status   JobStatus `gorm:"not null;index;default:'pending'" json:"status"`

	// Scope
	DataSource           string   `gorm:"not null" json:"data_source"`
	SourceDisplayName    string   `json:"source_display_name,omitempty"`
	ReportingSource      string   `json:"reporting_source,omitempty"`
	ReportingService     string   `json:"reporting_service,omitempty"`
	ReportingServiceName string   `json:"reporting_service_name,omitempty"`
	Prefix               string   `json:"prefix,omitempty"`
	AssetTypes           []string `gorm:"type:jsonb;serializer:json" json:"asset_types,omitempty"`

	// Execution
	StartedAt   int64  `json:"started_at,omitempty"`
	CompletedAt int64  `json:"completed_at,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	Error       string `json:"error,omitempty"`

	// Stats
	NewAssets            int `gorm:"default:0" json:"new_assets"`
	UpdatedAssets        int `gorm:"default:0" json:"updated_assets"`
	MissingAssets        int `gorm:"default:0" json:"missing_assets"`
	NewPrimaryAssets     int `gorm:"default:0" json:"new_primary_assets"`
	UpdatedPrimaryAssets int `gorm:"default:0" json:"updated_primary_assets"`
	DeletedPrimaryAssets int `gorm:"default:0" json:"deleted_primary_assets"`
	DeletedOpinions      int `gorm:"default:0" json:"deleted_opinions"`
	RelationDocuments    int `gorm:"default:0" json:"relation_documents"`
	StateChanges         int `gorm:"default:0" json:"state_changes"`

	// Asynq task ID for tracking
	TaskID string `gorm:"index" json:"task_id,omitempty"`
}

func (JobRun) TableName() string {
	return "job_runs"
}
