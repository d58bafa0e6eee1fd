package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/asset-shipper/internal/assets/types"
	"github.com/hugh/asset-shipper/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewStore(db, 2, logger)
}

var testIndex = Index{Tenant: "acme", Name: "aws_ec2"}

func primaryDoc(id string, latest bool) *types.Document {
	return &types.Document{
		DocID:           id,
		Source:          "aws",
		EntityType:      "ec2",
		IsLatest:        latest,
		PrimaryProvider: "{}",
		AssetState:      types.AssetStateManaged,
	}
}

func TestStore_FlushAndGetAssets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batch := store.NewBatch()
	require.NoError(t, batch.Upsert(testIndex, "a", primaryDoc("a", true)))
	require.NoError(t, batch.Upsert(testIndex, "b", primaryDoc("b", true)))
	require.NoError(t, batch.Upsert(testIndex, "c", primaryDoc("c", false)))
	require.NoError(t, batch.RoutedUpsert(testIndex, "a", "a_child", map[string]any{"x": 1}))
	assert.Equal(t, 4, batch.Len())

	before, err := store.GetAssets(ctx, testIndex, false, nil)
	require.NoError(t, err)
	assert.Empty(t, before, "nothing is visible before flush")

	require.NoError(t, batch.Flush(ctx))

	all, err := store.GetAssets(ctx, testIndex, false, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3, "child documents are excluded")

	latest, err := store.GetAssets(ctx, testIndex, true, nil)
	require.NoError(t, err)
	assert.Len(t, latest, 2)
	assert.Equal(t, "aws", latest["a"].Source)

	other, err := store.GetAssets(ctx, Index{Tenant: "other", Name: "aws_ec2"}, false, nil)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := store.NewBatch()
	require.NoError(t, first.Upsert(testIndex, "a", primaryDoc("a", true)))
	require.NoError(t, first.Flush(ctx))

	doc := primaryDoc("a", false)
	doc.Region = "eu-west-1"
	second := store.NewBatch()
	require.NoError(t, second.Upsert(testIndex, "a", doc))
	doc.Region = "changed after upsert"
	require.NoError(t, second.Flush(ctx))

	got, err := store.GetDocument(ctx, testIndex, "a")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", got.Region)
	assert.False(t, got.IsLatest)
}

func TestStore_DuplicateUpsertInOneBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batch := store.NewBatch()
	first := primaryDoc("a", true)
	first.Region = "one"
	second := primaryDoc("a", true)
	second.Region = "two"
	require.NoError(t, batch.Upsert(testIndex, "a", first))
	require.NoError(t, batch.Upsert(testIndex, "a", second))
	require.NoError(t, batch.Flush(ctx))

	got, err := store.GetDocument(ctx, testIndex, "a")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Region)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seed := store.NewBatch()
	require.NoError(t, seed.Upsert(testIndex, "a", primaryDoc("a", true)))
	require.NoError(t, seed.Flush(ctx))

	batch := store.NewBatch()
	require.NoError(t, batch.Delete(testIndex, "a"))
	require.NoError(t, batch.Flush(ctx))

	_, err := store.GetDocument(ctx, testIndex, "a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_CancelDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batch := store.NewBatch()
	require.NoError(t, batch.Upsert(testIndex, "a", primaryDoc("a", true)))
	batch.Cancel()

	assert.ErrorIs(t, batch.Flush(ctx), ErrBatchClosed)
	assert.ErrorIs(t, batch.Upsert(testIndex, "b", primaryDoc("b", true)), ErrBatchClosed)

	docs, err := store.GetAssets(ctx, testIndex, false, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_UpdateFieldsAndStates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stub := &types.Document{DocID: "s", IsLatest: true, AssetState: types.AssetStateReconciling}
	seed := store.NewBatch()
	require.NoError(t, seed.Upsert(testIndex, "a", primaryDoc("a", true)))
	require.NoError(t, seed.Upsert(testIndex, "s", stub))
	require.NoError(t, seed.Flush(ctx))

	states, err := store.GetStates(ctx, testIndex)
	require.NoError(t, err)
	assert.Equal(t, types.StateRecord{DocID: "s", AssetState: types.AssetStateReconciling}, states["s"])
	assert.True(t, states["a"].HasPrimaryProvider)

	batch := store.NewBatch()
	require.NoError(t, batch.UpdateFields(testIndex, "s", map[string]any{"assetState": types.AssetStateSuspicious}))
	require.NoError(t, batch.UpdateFields(testIndex, "missing", map[string]any{"assetState": "managed"}))
	require.NoError(t, batch.Flush(ctx))

	got, err := store.GetDocument(ctx, testIndex, "s")
	require.NoError(t, err)
	assert.Equal(t, types.AssetStateSuspicious, got.AssetState)

	states, err = store.GetStates(ctx, testIndex)
	require.NoError(t, err)
	assert.Equal(t, types.AssetStateSuspicious, states["s"].AssetState)
}

func TestStore_Filters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batch := store.NewBatch()
	require.NoError(t, batch.Upsert(testIndex, "a", primaryDoc("a", true)))
	stub := &types.Document{DocID: "s", IsLatest: true, AssetState: types.AssetStateReconciling}
	require.NoError(t, batch.Upsert(testIndex, "s", stub))
	require.NoError(t, batch.Flush(ctx))

	docs, err := store.GetAssets(ctx, testIndex, true, Filters{"assetState": "reconciling"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "s")

	_, err = store.GetAssets(ctx, testIndex, true, Filters{"bogus": 1})
	assert.ErrorIs(t, err, ErrRepository)
}
