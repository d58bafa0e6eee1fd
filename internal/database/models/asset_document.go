package models

import (
	"time"

	"gorm.io/datatypes"
)

// AssetDocument is one stored document. Index and DocID form the document
// address; the queryable columns mirror fields of Body.
type AssetDocument struct {
	TenantID  string `gorm:"primaryKey;size:64" json:"tenant_id"`
	IndexName string `gorm:"primaryKey;size:255" json:"index"`
	DocID     string `gorm:"primaryKey;size:512" json:"doc_id"`

	// Routing is the parent doc id of a child relation document.
	Routing string `gorm:"size:512;index;not null;default:''" json:"routing,omitempty"`

	Source             string `gorm:"index" json:"source"`
	EntityType         string `gorm:"index" json:"entity_type"`
	IsLatest           bool   `gorm:"index" json:"is_latest"`
	AssetState         string `gorm:"index" json:"asset_state,omitempty"`
	HasPrimaryProvider bool   `json:"has_primary_provider"`

	Body datatypes.JSON `gorm:"not null" json:"body"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AssetDocument) TableName() string {
	return "asset_documents"
}
