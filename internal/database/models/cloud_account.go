package models

// CloudAccount names a cloud account (AWS account, Azure subscription, GCP
// project) for display on asset documents.
type CloudAccount struct {
	Base
	TenantID    string `gorm:"index:idx_cloud_account,unique;not null" json:"tenant_id"`
	DataSource  string `gorm:"index:idx_cloud_account,unique;not null" json:"data_source"`
	AccountID   string `gorm:"index:idx_cloud_account,unique;not null" json:"account_id"`
	AccountName string `gorm:"not null" json:"account_name"`
	IsActive    bool   `json:"is_active"`
}

func (CloudAccount) TableName() string {
	return "cloud_accounts"
}
