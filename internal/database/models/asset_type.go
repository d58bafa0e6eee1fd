package models

// AssetTypeDefinition is the identity metadata of one asset type. Rows with an
// empty TenantID apply to every tenant unless a tenant row overrides them.
type AssetTypeDefinition struct {
	Base
	TenantID    string   `gorm:"index:idx_asset_type,unique;not null;default:''" json:"tenant_id"`
	DataSource  string   `gorm:"index:idx_asset_type,unique;not null" json:"data_source"`
	Name        string   `gorm:"index:idx_asset_type,unique;not null" json:"name"`
	DisplayName string   `json:"display_name"`
	IDField     string   `gorm:"not null" json:"id_field"`
	DocIDFields []string `gorm:"type:jsonb;serializer:json" json:"doc_id_fields"`
	Relations   []string `gorm:"type:jsonb;serializer:json" json:"relations,omitempty"`
	Enabled     bool     `json:"enabled"`
}

func (AssetTypeDefinition) TableName() string {
	return "asset_types"
}
