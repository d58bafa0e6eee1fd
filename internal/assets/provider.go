package assets

import (
	"github.com/hugh/asset-shipper/internal/assets/aws"
	"github.com/hugh/asset-shipper/internal/assets/azure"
	"github.com/hugh/asset-shipper/internal/assets/gcp"
	"github.com/hugh/asset-shipper/internal/assets/types"
)

// Re-export types for callers outside the engine
type (
	Record       = types.Record
	Document     = types.Document
	TagTuple     = types.TagTuple
	AssetState   = types.AssetState
	TypeMetadata = types.TypeMetadata
	CloudProfile = types.CloudProfile
)

var profiles = map[string]types.CloudProfile{
	aws.Name:   aws.New(),
	azure.Name: azure.New(),
	gcp.Name:   gcp.New(),
}

// ProfileFor returns the cloud profile of a data source, or nil for sources
// without special conventions.
func ProfileFor(source string) types.CloudProfile {
	return profiles[source]
}
