package assets

import (
	"context"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

// DocumentHelper translates mapper records of one asset type into documents.
// The reconciliation engine only talks to documents through this interface.
type DocumentHelper interface {
	IDValue(record types.Record) string
	DocID(record types.Record) (string, error)
	CreateFrom(ctx context.Context, record types.Record) (*types.Document, error)
	UpdateFrom(ctx context.Context, record types.Record, doc *types.Document) error
	Remove(doc *types.Document)

	// OpinionKey returns the reporting source and service when the helper
	// runs the opinion workflow.
	OpinionKey() (source, service string, ok bool)
	CreatePrimaryStub(ctx context.Context, record types.Record) (*types.Document, error)
	UpdatePrimaryStub(ctx context.Context, record types.Record, doc *types.Document) error
}

// AccountResolver maps a cloud account id to its display name.
type AccountResolver interface {
	AccountName(ctx context.Context, tenantID, source, accountID string) (string, error)
}

// PolicyLookup answers whether any enabled policy targets an asset type.
type PolicyLookup interface {
	IsTypeManaged(ctx context.Context, tenantID, source, assetType string) (bool, error)
}

// TypeRegistry returns asset type metadata. AssetType returns nil when the
// type is not registered.
type TypeRegistry interface {
	AssetType(ctx context.Context, tenantID, source, assetType string) (*types.TypeMetadata, error)
	ListAssetTypes(ctx context.Context, tenantID, source string) ([]string, error)
}

// RecordSource loads mapper output for one job prefix.
type RecordSource interface {
	ListTypes(ctx context.Context, prefix string) ([]string, error)
	LoadRecords(ctx context.Context, prefix, assetType string) ([]types.Record, error)
	LoadTags(ctx context.Context, prefix, assetType string) ([]types.TagTuple, error)
	LoadRelations(ctx context.Context, prefix, assetType string) (map[string][]types.Record, error)
}

// Notifier publishes the completion of a unit of work.
type Notifier interface {
	PublishCompletion(ctx context.Context, event CompletionEvent) error
}

// Compile-time interface satisfaction checks
var (
	_ DocumentHelper = (*Translator)(nil)
)
