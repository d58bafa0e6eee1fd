package models

// Policy targets the assets of one type. An asset type is managed when at
// least one enabled policy targets it.
type Policy struct {
	Base
	TenantID   string `gorm:"index:idx_policy_target;not null" json:"tenant_id"`
	Name       string `gorm:"not null" json:"name"`
	DataSource string `gorm:"index:idx_policy_target;not null" json:"data_source"`
	AssetType  string `gorm:"index:idx_policy_target;not null" json:"asset_type"`
	Enabled    bool   `json:"enabled"`
}

func (Policy) TableName() string {
	return "policies"
}
