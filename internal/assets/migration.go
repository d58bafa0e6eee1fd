package assets

import (
	"log/slog"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

// IdentityMigration moves a document stored under an older id scheme onto the
// currently computed id. Legacy-named values win because the current-named
// copies of a stale document were written under the old scheme.
type IdentityMigration struct {
	logger *slog.Logger
}

// NewIdentityMigration creates a migration step
func NewIdentityMigration(logger *slog.Logger) *IdentityMigration {
	return &IdentityMigration{logger: logger}
}

// Apply copies legacy values onto the canonical fields. The document takes
// its legacy "_docid" as its identity when one is stored, otherwise docID.
// Either way the repository key stays the id the document was loaded under.
func (m *IdentityMigration) Apply(doc *types.Document, docID string) {
	oldID := doc.DocID
	newID := docID
	if v, ok := doc.LegacyValue(types.FieldDocID); ok && v != "" {
		newID = v
	}

	for _, f := range types.StringFields {
		if v, ok := doc.LegacyValue(f.Alias); ok && v != "" {
			f.Set(doc, v)
		}
	}
	for _, f := range types.BoolFields {
		if v, ok := doc.LegacyValue(f.Alias); ok && v != "" {
			f.Set(doc, v == "true")
		}
	}
	for _, f := range types.TimeFields {
		v, ok := doc.LegacyValue(f.Alias)
		if !ok || v == "" {
			continue
		}
		if ts, err := types.ParseTimestamp(v); err == nil && !ts.IsZero() {
			f.Set(doc, ts)
		}
	}

	doc.DocID = newID

	m.logger.Info("migrated document identity",
		"old_id", oldID,
		"new_id", newID,
		"computed_id", docID,
		"source", doc.Source,
		"type", doc.EntityType,
	)
}
