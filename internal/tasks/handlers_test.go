package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/assets"
	"github.com/hugh/asset-shipper/internal/database/models"
	"github.com/hugh/asset-shipper/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeShipper struct {
	jobs   []assets.Job
	result *assets.ShipResult
	err    error
}

func (f *fakeShipper) Ship(_ context.Context, job assets.Job) (*assets.ShipResult, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type evaluation struct {
	tenant, source string
	types          []string
}

type fakeStates struct {
	calls   []evaluation
	changed int
	err     error
}

func (f *fakeStates) Evaluate(_ context.Context, tenantID, source string, assetTypes []string) (int, error) {
	f.calls = append(f.calls, evaluation{tenantID, source, assetTypes})
	return f.changed, f.err
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type(), Payload: task.Payload()}, nil
}

func jobTask(t *testing.T, taskType string, id uuid.UUID) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(JobRunPayload{JobRunID: id})
	require.NoError(t, err)
	return asynq.NewTask(taskType, data)
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.JobRun {
	t.Helper()
	var run models.JobRun
	require.NoError(t, db.First(&run, "id = ?", id).Error)
	return run
}

func TestHandleReconcile_Success(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	run := testutil.CreateTestJobRun(t, db, "acme", models.JobKindReconcile)
	require.NoError(t, db.Model(run).Updates(map[string]interface{}{"prefix": "acme/run1", "reporting_source": "qualys"}).Error)

	shipper := &fakeShipper{result: &assets.ShipResult{AssetTypes: []string{"ec2"}, NewAssets: 3, MissingAssets: 1}}
	h := NewHandler(db, testLogger(), shipper, &fakeStates{}, nil)

	require.NoError(t, h.HandleReconcile(context.Background(), jobTask(t, TypeReconcile, run.ID)))

	require.Len(t, shipper.jobs, 1)
	assert.Equal(t, "acme", shipper.jobs[0].TenantID)
	assert.Equal(t, "aws", shipper.jobs[0].DataSource)
	assert.Equal(t, "qualys", shipper.jobs[0].ReportingSource)
	assert.Equal(t, "acme/run1", shipper.jobs[0].Prefix)

	got := reload(t, db, run.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 3, got.NewAssets)
	assert.Equal(t, 1, got.MissingAssets)
	assert.NotZero(t, got.StartedAt)
	assert.NotZero(t, got.CompletedAt)
}

func TestHandleReconcile_PassesDisplayNames(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	run := testutil.CreateTestJobRun(t, db, "acme", models.JobKindReconcile)
	require.NoError(t, db.Model(run).Updates(map[string]interface{}{
		"source_display_name":    "Amazon Web Services",
		"reporting_source":       "qualys",
		"reporting_service":      "vm",
		"reporting_service_name": "Qualys VM",
	}).Error)

	shipper := &fakeShipper{result: &assets.ShipResult{}}
	h := NewHandler(db, testLogger(), shipper, &fakeStates{}, nil)

	require.NoError(t, h.HandleReconcile(context.Background(), jobTask(t, TypeReconcile, run.ID)))

	require.Len(t, shipper.jobs, 1)
	assert.Equal(t, "Amazon Web Services", shipper.jobs[0].SourceDisplayName)
	assert.Equal(t, "vm", shipper.jobs[0].ReportingService)
	assert.Equal(t, "Qualys VM", shipper.jobs[0].ReportingServiceName)
}

func TestHandleReconcile_FailureIsRecorded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	run := testutil.CreateTestJobRun(t, db, "acme", models.JobKindReconcile)
	shipper := &fakeShipper{err: errors.New("bucket unavailable")}
	h := NewHandler(db, testLogger(), shipper, &fakeStates{}, nil)

	err := h.HandleReconcile(context.Background(), jobTask(t, TypeReconcile, run.ID))
	require.Error(t, err)

	got := reload(t, db, run.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "bucket unavailable", got.Error)
}

func TestHandleReconcile_SkipsCompletedRun(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	run := testutil.CreateTestJobRun(t, db, "acme", models.JobKindReconcile)
	require.NoError(t, db.Model(run).Update("status", models.JobStatusCompleted).Error)

	shipper := &fakeShipper{}
	h := NewHandler(db, testLogger(), shipper, &fakeStates{}, nil)

	require.NoError(t, h.HandleReconcile(context.Background(), jobTask(t, TypeReconcile, run.ID)))
	assert.Empty(t, shipper.jobs)
}

func TestHandleReconcile_BadPayloads(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	h := NewHandler(db, testLogger(), &fakeShipper{}, &fakeStates{}, nil)
	ctx := context.Background()

	err := h.HandleReconcile(ctx, asynq.NewTask(TypeReconcile, []byte("invalid json")))
	assert.ErrorContains(t, err, "unmarshal payload")

	err = h.HandleReconcile(ctx, jobTask(t, TypeReconcile, uuid.New()))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	stateRun := testutil.CreateTestJobRun(t, db, "acme", models.JobKindAssetState)
	err = h.HandleReconcile(ctx, jobTask(t, TypeReconcile, stateRun.ID))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleAssetState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	run := testutil.CreateTestJobRun(t, db, "acme", models.JobKindAssetState)
	states := &fakeStates{changed: 7}
	h := NewHandler(db, testLogger(), &fakeShipper{}, states, nil)

	require.NoError(t, h.HandleAssetState(context.Background(), jobTask(t, TypeAssetState, run.ID)))

	require.Len(t, states.calls, 1)
	assert.Equal(t, "acme", states.calls[0].tenant)
	assert.Equal(t, "aws", states.calls[0].source)

	got := reload(t, db, run.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 7, got.StateChanges)
}

func seedDocument(t *testing.T, db *gorm.DB, tenant, index, docID, source, routing string) {
	t.Helper()
	require.NoError(t, db.Create(&models.AssetDocument{
		TenantID:  tenant,
		IndexName: index,
		DocID:     docID,
		Routing:   routing,
		Source:    source,
		IsLatest:  true,
		Body:      datatypes.JSON(`{}`),
	}).Error)
}

func TestHandleStateSweep_Inline(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	seedDocument(t, db, "acme", "aws_ec2", "a", "aws", "")
	seedDocument(t, db, "acme", "aws_s3", "b", "aws", "")
	seedDocument(t, db, "acme", "gcp_vm", "c", "gcp", "")
	seedDocument(t, db, "beta", "aws_ec2", "d", "aws", "")
	seedDocument(t, db, "beta", "aws_ec2", "d_volume_1", "", "d")

	states := &fakeStates{}
	h := NewHandler(db, testLogger(), &fakeShipper{}, states, nil)

	require.NoError(t, h.HandleStateSweep(context.Background(), NewStateSweepTask()))

	require.Len(t, states.calls, 3)
	assert.Equal(t, evaluation{tenant: "acme", source: "aws"}, states.calls[0])
	assert.Equal(t, evaluation{tenant: "acme", source: "gcp"}, states.calls[1])
	assert.Equal(t, evaluation{tenant: "beta", source: "aws"}, states.calls[2])

	var completed int64
	require.NoError(t, db.Model(&models.JobRun{}).Where("status = ?", models.JobStatusCompleted).Count(&completed).Error)
	assert.Equal(t, int64(3), completed)
}

func TestHandleStateSweep_Enqueues(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	seedDocument(t, db, "acme", "aws_ec2", "a", "aws", "")

	enq := &fakeEnqueuer{}
	states := &fakeStates{}
	h := NewHandler(db, testLogger(), &fakeShipper{}, states, enq)

	require.NoError(t, h.HandleStateSweep(context.Background(), NewStateSweepTask()))
	assert.Empty(t, states.calls)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeAssetState, enq.tasks[0].Type())

	var run models.JobRun
	require.NoError(t, db.First(&run).Error)
	assert.Equal(t, models.JobStatusPending, run.Status)
	assert.NotEmpty(t, run.TaskID)
}

func TestHandleCompleted(t *testing.T) {
	h := NewHandler(nil, testLogger(), &fakeShipper{}, &fakeStates{}, nil)

	task, err := NewCompletedTask(assets.CompletionEvent{TenantID: "acme", DataSource: "aws", AssetTypes: []string{"ec2"}})
	require.NoError(t, err)
	assert.NoError(t, h.HandleCompleted(context.Background(), task))

	assert.Error(t, h.HandleCompleted(context.Background(), asynq.NewTask(TypeCompleted, []byte("{"))))
}

func TestCompletionPublisher(t *testing.T) {
	enq := &fakeEnqueuer{}
	p := NewCompletionPublisher(enq, testLogger())

	event := assets.CompletionEvent{
		TenantID:    "acme",
		DataSource:  "aws",
		AssetTypes:  []string{"ami", "ec2"},
		CompletedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishCompletion(context.Background(), event))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeCompleted, enq.tasks[0].Type())

	var got assets.CompletionEvent
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &got))
	assert.Equal(t, event, got)

	enq.err = errors.New("redis down")
	assert.Error(t, p.PublishCompletion(context.Background(), event))
}

func TestEnqueueJobRun(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	run := testutil.CreateTestJobRun(t, db, "acme", models.JobKindReconcile)
	enq := &fakeEnqueuer{}

	taskID, err := EnqueueJobRun(context.Background(), db, enq, run)
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeReconcile, enq.tasks[0].Type())

	var payload JobRunPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, run.ID, payload.JobRunID)
	assert.Equal(t, taskID, reload(t, db, run.ID).TaskID)

	_, err = EnqueueJobRun(context.Background(), db, enq, &models.JobRun{Kind: "bogus"})
	assert.Error(t, err)
}
