package azure

import (
	"strings"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

// Name is the data source identifier for Azure.
const Name = "azure"

// Profile implements types.CloudProfile for Azure records
type Profile struct{}

// New creates the Azure profile
func New() *Profile {
	return &Profile{}
}

// Name returns the data source identifier
func (p *Profile) Name() string {
	return Name
}

// AccountIDFallback returns the subscription id field
func (p *Profile) AccountIDFallback() string {
	return types.KeySubscription
}

// AccountNameFallback returns the subscription name field
func (p *Profile) AccountNameFallback() string {
	return types.KeySubscriptionName
}

// Decorate sets the asset id display name
func (p *Profile) Decorate(record types.Record, doc *types.Document) {
	if name := DisplayName(record, doc); name != "" {
		doc.AssetIDDisplayName = name
	}
}

// DisplayName builds "resourcegroup/assetname" in lower case. The asset name
// falls back to the resource name. When only one half is known it is used
// on its own.
func DisplayName(record types.Record, doc *types.Document) string {
	asset := types.FieldAssetName.From(record)
	if asset == "" {
		asset = types.FieldResourceName.From(record)
	}
	if asset == "" && doc != nil {
		asset = doc.ResourceName
	}
	group := record.String(types.KeyResourceGroupName)

	switch {
	case group != "" && asset != "":
		return strings.ToLower(group + "/" + asset)
	case asset != "":
		return strings.ToLower(asset)
	default:
		return strings.ToLower(group)
	}
}
