package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/asset-shipper/internal/database/models"
	"github.com/hugh/asset-shipper/internal/testutil"
)

func TestIsTypeManaged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()

	testutil.CreateTestPolicy(t, db, "acme", "aws", "ec2", true)
	testutil.CreateTestPolicy(t, db, "acme", "aws", "s3", false)
	testutil.CreateTestPolicy(t, db, "other", "aws", "rds", true)

	tests := []struct {
		tenant, assetType string
		want              bool
	}{
		{"acme", "ec2", true},
		{"acme", "s3", false},
		{"acme", "rds", false},
		{"other", "rds", true},
	}
	for _, tt := range tests {
		got, err := svc.IsTypeManaged(ctx, tt.tenant, "aws", tt.assetType)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.tenant, tt.assetType)
	}
}

func TestAssetType_TenantOverride(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()

	testutil.CreateTestAssetType(t, db, "aws", "ec2", "id")
	override := &models.AssetTypeDefinition{
		TenantID:    "acme",
		DataSource:  "aws",
		Name:        "ec2",
		IDField:     "instanceId",
		DocIDFields: []string{"accountId", "instanceId"},
		Relations:   []string{"volumes"},
		Enabled:     true,
	}
	require.NoError(t, db.Create(override).Error)

	global, err := svc.AssetType(ctx, "someone", "aws", "ec2")
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.Equal(t, "id", global.IDField)

	tenant, err := svc.AssetType(ctx, "acme", "aws", "ec2")
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, []string{"accountId", "instanceId"}, tenant.DocIDFields)
	assert.True(t, tenant.HasRelation("volumes"))

	missing, err := svc.AssetType(ctx, "acme", "aws", "lambda")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListAssetTypes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := NewService(db, testutil.Logger())

	testutil.CreateTestAssetType(t, db, "aws", "s3", "name")
	testutil.CreateTestAssetType(t, db, "aws", "ec2", "id")
	testutil.CreateTestAssetType(t, db, "gcp", "vm", "id")
	disabled := &models.AssetTypeDefinition{TenantID: "acme", DataSource: "aws", Name: "s3", IDField: "name", Enabled: false}
	require.NoError(t, db.Create(disabled).Error)

	names, err := svc.ListAssetTypes(context.Background(), "acme", "aws")
	require.NoError(t, err)
	assert.Equal(t, []string{"ec2"}, names)

	names, err = svc.ListAssetTypes(context.Background(), "other", "aws")
	require.NoError(t, err)
	assert.Equal(t, []string{"ec2", "s3"}, names)
}
