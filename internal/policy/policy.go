package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/assets/types"
	"github.com/hugh/asset-shipper/internal/database/models"
)

// Service answers policy and asset type questions from the database
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewService creates a new policy service
func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// IsTypeManaged reports whether any enabled policy of the tenant targets the
// asset type.
func (s *Service) IsTypeManaged(ctx context.Context, tenantID, source, assetType string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Policy{}).
		Where("tenant_id = ? AND data_source = ? AND asset_type = ? AND enabled = ?", tenantID, source, assetType, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting policies for %s/%s: %w", source, assetType, err)
	}
	return count > 0, nil
}

// AssetType returns the metadata of an enabled asset type, preferring a
// tenant override over the global definition. It returns nil when the type
// is unknown or disabled.
func (s *Service) AssetType(ctx context.Context, tenantID, source, assetType string) (*types.TypeMetadata, error) {
	var def models.AssetTypeDefinition
	err := s.db.WithContext(ctx).
		Where("data_source = ? AND name = ? AND tenant_id IN ?", source, assetType, []string{tenantID, ""}).
		Order("tenant_id DESC").
		First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading asset type %s/%s: %w", source, assetType, err)
	}
	if !def.Enabled {
		s.logger.Debug("asset type disabled", "tenant", tenantID, "source", source, "type", assetType)
		return nil, nil
	}

	return &types.TypeMetadata{
		Name:        def.Name,
		DisplayName: def.DisplayName,
		IDField:     def.IDField,
		DocIDFields: def.DocIDFields,
		Relations:   def.Relations,
	}, nil
}

// ListAssetTypes returns the enabled asset type names of a data source.
func (s *Service) ListAssetTypes(ctx context.Context, tenantID, source string) ([]string, error) {
	var defs []models.AssetTypeDefinition
	err := s.db.WithContext(ctx).
		Where("data_source = ? AND tenant_id IN ?", source, []string{tenantID, ""}).
		Order("name ASC, tenant_id DESC").
		Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("listing asset types for %s: %w", source, err)
	}

	// The first row per name is the effective definition.
	seen := make(map[string]bool, len(defs))
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		if def.Enabled {
			names = append(names, def.Name)
		}
	}
	return names, nil
}
