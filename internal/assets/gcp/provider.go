package gcp

import (
	"github.com/hugh/asset-shipper/internal/assets/types"
)

// Name is the data source identifier for GCP.
const Name = "gcp"

// Profile implements types.CloudProfile for GCP records
type Profile struct{}

// New creates the GCP profile
func New() *Profile {
	return &Profile{}
}

// Name returns the data source identifier
func (p *Profile) Name() string {
	return Name
}

// AccountIDFallback returns the project id field
func (p *Profile) AccountIDFallback() string {
	return types.KeyProject
}

// AccountNameFallback returns the project name field
func (p *Profile) AccountNameFallback() string {
	return types.KeyProjectName
}

// Decorate is a no-op for GCP
func (p *Profile) Decorate(types.Record, *types.Document) {}
