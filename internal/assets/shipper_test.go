package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/asset-shipper/internal/assets/types"
	"github.com/hugh/asset-shipper/internal/repository"
	"github.com/hugh/asset-shipper/internal/testutil"
)

type fakeRecords struct {
	records   map[string][]types.Record
	tags      map[string][]types.TagTuple
	relations map[string]map[string][]types.Record
	err       error
}

func (f *fakeRecords) ListTypes(_ context.Context, _ string) ([]string, error) {
	var out []string
	for t := range f.records {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRecords) LoadRecords(_ context.Context, _, assetType string) ([]types.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[assetType], nil
}

func (f *fakeRecords) LoadTags(_ context.Context, _, assetType string) ([]types.TagTuple, error) {
	return f.tags[assetType], nil
}

func (f *fakeRecords) LoadRelations(_ context.Context, _, assetType string) (map[string][]types.Record, error) {
	return f.relations[assetType], nil
}

type fakeRegistry struct {
	types map[string]types.TypeMetadata
}

func (f *fakeRegistry) AssetType(_ context.Context, _, _, assetType string) (*types.TypeMetadata, error) {
	meta, ok := f.types[assetType]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

func (f *fakeRegistry) ListAssetTypes(_ context.Context, _, _ string) ([]string, error) {
	var out []string
	for t := range f.types {
		out = append(out, t)
	}
	return out, nil
}

type fakePolicies struct {
	managed map[string]bool
}

func (f *fakePolicies) IsTypeManaged(_ context.Context, _, _, assetType string) (bool, error) {
	return f.managed[assetType], nil
}

type fakeNotifier struct {
	events []CompletionEvent
}

func (f *fakeNotifier) PublishCompletion(_ context.Context, event CompletionEvent) error {
	f.events = append(f.events, event)
	return nil
}

type shipperFixture struct {
	repo     *repository.Store
	records  *fakeRecords
	registry *fakeRegistry
	policies *fakePolicies
	notifier *fakeNotifier
	shipper  *Shipper
	states   *StateService
}

func newShipperFixture(t *testing.T) *shipperFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	f := &shipperFixture{
		repo:     repository.NewStore(db, 10, testLogger()),
		records:  &fakeRecords{records: map[string][]types.Record{}},
		registry: &fakeRegistry{types: map[string]types.TypeMetadata{"ec2": ec2Type()}},
		policies: &fakePolicies{managed: map[string]bool{}},
		notifier: &fakeNotifier{},
	}
	f.shipper = NewShipper(f.repo, f.records, f.registry, f.policies, nil, f.notifier, ShipperConfig{}, testLogger())
	f.states = NewStateService(f.repo, f.registry, f.policies, testLogger())
	return f
}

func primaryJob() Job {
	return Job{TenantID: "acme", DataSource: "test", Prefix: "run", AssetTypes: []string{"ec2"}, ScanTime: scanTime}
}

func opinionJob() Job {
	job := primaryJob()
	job.ReportingSource = "licorice"
	job.ReportingService = "scanner"
	return job
}

var (
	primaryIndex = repository.Index{Tenant: "acme", Name: "test_ec2"}
	opinionIndex = repository.Index{Tenant: "acme", Name: "test_ec2_opinions"}
)

func TestShipper_PrimaryRunsTombstoneMissingAssets(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)
	f.policies.managed["ec2"] = true

	f.records.records["ec2"] = []types.Record{{"id": "q13"}, {"id": "q14"}}
	res, err := f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewAssets)

	f.records.records["ec2"] = []types.Record{{"id": "q14"}}
	res, err = f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewAssets)
	assert.Equal(t, 1, res.UpdatedAssets)
	assert.Equal(t, 1, res.MissingAssets)

	latest, err := f.repo.GetAssets(ctx, primaryIndex, true, nil)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
	require.Contains(t, latest, "test_ec2_q14")
	assert.Equal(t, types.AssetStateManaged, latest["test_ec2_q14"].AssetState)

	gone, err := f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.False(t, gone.IsLatest)
}

func TestShipper_ReappearingAssetIsRevived(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)

	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	_, err := f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)

	f.records.records["ec2"] = nil
	_, err = f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)

	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	res, err := f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewAssets)

	doc, err := f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.True(t, doc.IsLatest)
}

func TestShipper_PublishesCompletionWithSortedTypes(t *testing.T) {
	f := newShipperFixture(t)
	f.registry.types["ami"] = types.TypeMetadata{Name: "ami", IDField: "id", DocIDFields: []string{"id"}}
	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	f.records.records["ami"] = []types.Record{{"id": "ami-1"}}

	job := primaryJob()
	job.AssetTypes = nil

	res, err := f.shipper.Ship(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"ami", "ec2"}, res.AssetTypes)

	require.Len(t, f.notifier.events, 1)
	event := f.notifier.events[0]
	assert.Equal(t, "acme", event.TenantID)
	assert.Equal(t, "test", event.DataSource)
	assert.Equal(t, []string{"ami", "ec2"}, event.AssetTypes)
}

func TestShipper_MissingMetadataWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)
	f.records.records["ec2"] = []types.Record{{"id": "q13"}}

	job := primaryJob()
	job.AssetTypes = []string{"ec2", "zzz"}

	_, err := f.shipper.Ship(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingMetadata))
	assert.Empty(t, f.notifier.events)

	docs, err := f.repo.GetAssets(ctx, primaryIndex, false, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestShipper_RecordSourceErrorAborts(t *testing.T) {
	f := newShipperFixture(t)
	f.records.err = errors.New("bucket unavailable")

	_, err := f.shipper.Ship(context.Background(), primaryJob())
	assert.ErrorContains(t, err, "bucket unavailable")
	assert.Empty(t, f.notifier.events)
}

func TestShipper_RejectsIncompleteJob(t *testing.T) {
	f := newShipperFixture(t)

	_, err := f.shipper.Ship(context.Background(), Job{DataSource: "test"})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestShipper_OpinionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)

	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	res, err := f.shipper.Ship(ctx, opinionJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewAssets)
	assert.Equal(t, 1, res.NewPrimaryAssets)

	opinion, err := f.repo.GetDocument(ctx, opinionIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.Equal(t, 1, opinion.Opinions.Count())

	stub, err := f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.Empty(t, stub.PrimaryProvider)
	assert.Equal(t, types.AssetStateReconciling, stub.AssetState)

	changed, err := f.states.Evaluate(ctx, "acme", "test", []string{"ec2"})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	stub, err = f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.Equal(t, types.AssetStateSuspicious, stub.AssetState)

	// The reporter no longer sees the asset.
	f.records.records["ec2"] = nil
	res, err = f.shipper.Ship(ctx, opinionJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedOpinions)
	assert.Equal(t, 1, res.DeletedPrimaryAssets)

	_, err = f.repo.GetDocument(ctx, opinionIndex, "test_ec2_q13")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestShipper_PrimaryRecordPromotesStub(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)
	f.policies.managed["ec2"] = true

	job := opinionJob()
	job.ReportingServiceName = "Licorice Scanner"
	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	_, err := f.shipper.Ship(ctx, job)
	require.NoError(t, err)

	opinion, err := f.repo.GetDocument(ctx, opinionIndex, "test_ec2_q13")
	require.NoError(t, err)
	op, ok := opinion.Opinions.Get("licorice", "scanner")
	require.True(t, ok)
	assert.Equal(t, "Licorice Scanner", op.ServiceName)

	f.records.records["ec2"] = []types.Record{{"id": "q13", "rawData": map[string]any{"state": "running"}}}
	res, err := f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewAssets)
	assert.Equal(t, 1, res.UpdatedAssets)

	primary, err := f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.Equal(t, `{"state":"running"}`, primary.PrimaryProvider)
	assert.Equal(t, types.AssetStateManaged, primary.AssetState)
	assert.True(t, primary.IsLatest)
}

func TestShipper_OpinionKeepsConfirmedPrimary(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)

	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	_, err := f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)

	res, err := f.shipper.Ship(ctx, opinionJob())
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewPrimaryAssets)

	f.records.records["ec2"] = nil
	res, err = f.shipper.Ship(ctx, opinionJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedOpinions)
	assert.Equal(t, 0, res.DeletedPrimaryAssets)

	primary, err := f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.NotEmpty(t, primary.PrimaryProvider)
}

func TestShipper_RelationsAreRoutedToParent(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)
	meta := ec2Type()
	meta.Relations = []string{"volume"}
	f.registry.types["ec2"] = meta

	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	f.records.relations = map[string]map[string][]types.Record{
		"ec2": {"volume": {{"id": "q13", "volumeId": "vol-1"}, {"id": "q13", "volumeId": "vol-2"}, {"volumeId": "orphan"}}},
	}

	res, err := f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)
	assert.Equal(t, 2, res.RelationDocuments)

	docs, err := f.repo.GetAssets(ctx, primaryIndex, false, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "child documents are not assets")
}

func TestShipper_UnmappedRelationFails(t *testing.T) {
	f := newShipperFixture(t)
	f.records.records["ec2"] = []types.Record{{"id": "q13"}}
	f.records.relations = map[string]map[string][]types.Record{
		"ec2": {"volume": {{"id": "q13", "volumeId": "vol-1"}}},
	}

	_, err := f.shipper.Ship(context.Background(), primaryJob())
	assert.ErrorIs(t, err, ErrMissingMetadata)
}

func TestRelationDocument(t *testing.T) {
	record := types.Record{"id": "q13", "volumeId": "vol-1"}

	body, id, err := relationDocument("ec2", "volume", "test_ec2_q13", record)
	require.NoError(t, err)

	again, sameID, err := relationDocument("ec2", "volume", "test_ec2_q13", types.Record{"volumeId": "vol-1", "id": "q13"})
	require.NoError(t, err)

	assert.Equal(t, id, sameID)
	assert.Equal(t, body, again)
	assert.Contains(t, id, "test_ec2_q13_volume_")
	assert.Equal(t, map[string]any{"name": "volume", "parent": "test_ec2_q13"}, body["ec2_relations"])
	assert.NotContains(t, record, "ec2_relations")
}

func TestStateService_UnchangedStatesAreNotWritten(t *testing.T) {
	ctx := context.Background()
	f := newShipperFixture(t)
	f.records.records["ec2"] = []types.Record{{"id": "q13"}}

	_, err := f.shipper.Ship(ctx, primaryJob())
	require.NoError(t, err)

	changed, err := f.states.Evaluate(ctx, "acme", "test", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	// A policy now covers the type.
	f.policies.managed["ec2"] = true
	changed, err = f.states.Evaluate(ctx, "acme", "test", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	doc, err := f.repo.GetDocument(ctx, primaryIndex, "test_ec2_q13")
	require.NoError(t, err)
	assert.Equal(t, types.AssetStateManaged, doc.AssetState)
}
