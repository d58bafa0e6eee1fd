package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/asset-shipper/internal/assets"
	"github.com/hugh/asset-shipper/internal/assets/types"
	"github.com/hugh/asset-shipper/internal/repository"
	"github.com/hugh/asset-shipper/internal/testutil"
	"github.com/hugh/asset-shipper/pkg/config"
)

func writeFile(t *testing.T, root, key, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func testConfig(root string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Provider: "local", LocalRoot: root},
		Shipper: config.ShipperConfig{
			BatchSize:           50,
			TagWorkers:          2,
			AccountCacheTTLMins: 5,
			AccountCacheSize:    16,
		},
	}
}

func TestApp_ShipsLocalMapperOutput(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	root := t.TempDir()
	writeFile(t, root, "acme/run1/ec2.data", `[
		{"id": "i-1", "accountId": "111", "region": "us-east-1"},
		{"id": "i-2", "accountId": "222"}
	]`)
	writeFile(t, root, "acme/run1/ec2-tags.data", `{"id": "i-1", "key": "env", "value": "prod"}`)

	testutil.CreateTestAssetType(t, db, "test", "ec2", "id")
	testutil.CreateTestPolicy(t, db, "acme", "test", "ec2", true)
	testutil.CreateTestAccount(t, db, "acme", "test", "111", "production")

	a, err := NewWithDB(ctx, testConfig(root), testutil.Logger(), db)
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Shipper.Ship(ctx, assets.Job{
		TenantID:   "acme",
		DataSource: "test",
		Prefix:     "acme/run1",
		ScanTime:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ec2"}, res.AssetTypes)
	assert.Equal(t, 2, res.NewAssets)

	index := repository.Index{Tenant: "acme", Name: assets.IndexName("test", "ec2")}
	docs, err := a.Repository.GetAssets(ctx, index, true, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	doc := docs["test_ec2_i-1"]
	require.NotNil(t, doc)
	assert.Equal(t, "production", doc.AccountName)
	assert.Equal(t, "prod", doc.Tags["env"])
	assert.Equal(t, types.AssetStateManaged, doc.AssetState)

	changed, err := a.States.Evaluate(ctx, "acme", "test", nil)
	require.NoError(t, err)
	assert.Zero(t, changed, "managed primaries keep their state")
}

func TestApp_UnknownStorageProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	cfg := testConfig(t.TempDir())
	cfg.Storage.Provider = "ftp"

	_, err := NewWithDB(context.Background(), cfg, testutil.Logger(), db)
	assert.Error(t, err)
}
