//go:build ignore

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/database"
	"github.com/hugh/asset-shipper/internal/database/models"
	"github.com/hugh/asset-shipper/pkg/config"
	"github.com/hugh/asset-shipper/pkg/util"
)

// Seeds the global asset type catalogue and, when SEED_TENANT is set, a
// policy per type plus a demo account for that tenant.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "seed")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	catalogue := []models.AssetTypeDefinition{
		{DataSource: "aws", Name: "ec2", DisplayName: "EC2 Instance", IDField: "instanceId", DocIDFields: []string{"instanceId"}, Relations: []string{"volume", "network_interface"}},
		{DataSource: "aws", Name: "s3", DisplayName: "S3 Bucket", IDField: "bucketName", DocIDFields: []string{"bucketName"}},
		{DataSource: "aws", Name: "ami", DisplayName: "Machine Image", IDField: "imageId", DocIDFields: []string{"imageId", "region"}},
		{DataSource: "azure", Name: "vm", DisplayName: "Virtual Machine", IDField: "id", DocIDFields: []string{"id"}},
		{DataSource: "gcp", Name: "compute_instance", DisplayName: "Compute Instance", IDField: "id", DocIDFields: []string{"id", "project"}},
	}

	for _, def := range catalogue {
		def.Enabled = true
		if err := upsert(db, &def, "tenant_id = ? AND data_source = ? AND name = ?", "", def.DataSource, def.Name); err != nil {
			log.Fatalf("failed to seed asset type %s/%s: %v", def.DataSource, def.Name, err)
		}
	}
	fmt.Printf("Seeded %d asset types\n", len(catalogue))

	tenant := os.Getenv("SEED_TENANT")
	if tenant == "" {
		return
	}

	for _, def := range catalogue {
		policy := models.Policy{
			TenantID:   tenant,
			Name:       "manage-" + def.DataSource + "-" + def.Name,
			DataSource: def.DataSource,
			AssetType:  def.Name,
			Enabled:    true,
		}
		if err := upsert(db, &policy, "tenant_id = ? AND data_source = ? AND asset_type = ?", tenant, def.DataSource, def.Name); err != nil {
			log.Fatalf("failed to seed policy: %v", err)
		}
	}

	account := models.CloudAccount{
		TenantID:    tenant,
		DataSource:  "aws",
		AccountID:   "123456789012",
		AccountName: "demo-production",
		IsActive:    true,
	}
	if err := upsert(db, &account, "tenant_id = ? AND data_source = ? AND account_id = ?", tenant, "aws", account.AccountID); err != nil {
		log.Fatalf("failed to seed account: %v", err)
	}

	fmt.Printf("Seeded policies and a demo account for tenant %s\n", tenant)
}

func upsert(db *gorm.DB, row any, query string, args ...any) error {
	return db.Where(query, args...).FirstOrCreate(row).Error
}
