package assets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

// DefaultOpinionService names the reporting service when a job gives none.
const DefaultOpinionService = "default"

// StateFunc computes the state of a freshly written primary document.
type StateFunc func(doc *types.Document) types.AssetState

// StateFromPolicy returns the state function for a type whose managed status
// is already known.
func StateFromPolicy(isManaged bool) StateFunc {
	return func(doc *types.Document) types.AssetState {
		if doc.PrimaryProvider == "" {
			return types.AssetStateSuspicious
		}
		if isManaged {
			return types.AssetStateManaged
		}
		return types.AssetStateUnmanaged
	}
}

// TranslatorConfig holds everything a translator needs for one asset type.
type TranslatorConfig struct {
	TenantID          string
	DataSource        string
	SourceDisplayName string
	Type              types.TypeMetadata

	// ReportingSource selects the opinion workflow when it differs from
	// DataSource.
	ReportingSource      string
	ReportingService     string
	ReportingServiceName string

	TagPrefix  string
	Tags       []types.TagTuple
	TagWorkers int

	// ScanTime stamps every date written by the run.
	ScanTime time.Time
	State    StateFunc
	Accounts AccountResolver
}

// Translator converts mapper records into documents for one asset type.
type Translator struct {
	cfg       TranslatorConfig
	profile   types.CloudProfile
	tags      *tagIndex
	migration *IdentityMigration
	logger    *slog.Logger
}

// NewTranslator creates a translator and indexes the tag side list
func NewTranslator(ctx context.Context, cfg TranslatorConfig, logger *slog.Logger) (*Translator, error) {
	if cfg.Type.Name == "" || cfg.Type.IDField == "" {
		return nil, fmt.Errorf("asset type %q: %w", cfg.Type.Name, ErrMissingMetadata)
	}
	if cfg.TagPrefix == "" {
		cfg.TagPrefix = types.DefaultTagPrefix
	}
	if cfg.ScanTime.IsZero() {
		cfg.ScanTime = time.Now()
	}
	if cfg.ReportingSource != "" && cfg.ReportingService == "" {
		cfg.ReportingService = DefaultOpinionService
	}

	tags, err := buildTagIndex(ctx, cfg.Tags, cfg.Type.DocIDFields, cfg.TagWorkers)
	if err != nil {
		return nil, fmt.Errorf("indexing tags: %w", err)
	}

	return &Translator{
		cfg:       cfg,
		profile:   ProfileFor(cfg.DataSource),
		tags:      tags,
		migration: NewIdentityMigration(logger),
		logger:    logger,
	}, nil
}

// IsOpinion reports whether records describe another source's assets.
func (t *Translator) IsOpinion() bool {
	return t.cfg.ReportingSource != "" && t.cfg.ReportingSource != t.cfg.DataSource
}

// OpinionKey implements DocumentHelper
func (t *Translator) OpinionKey() (string, string, bool) {
	if !t.IsOpinion() {
		return "", "", false
	}
	return t.cfg.ReportingSource, t.cfg.ReportingService, true
}

// IDValue returns the record's value for the type's id field
func (t *Translator) IDValue(record types.Record) string {
	return record.String(t.cfg.Type.IDField)
}

// DocID computes the document id of a record
func (t *Translator) DocID(record types.Record) (string, error) {
	return BuildDocID(record, t.cfg.DataSource, t.cfg.Type.Name, t.cfg.Type.DocIDFields)
}

// CreateFrom builds a new document. It returns a nil document when the
// record has no id value.
func (t *Translator) CreateFrom(ctx context.Context, record types.Record) (*types.Document, error) {
	if t.IDValue(record) == "" {
		return nil, nil
	}
	docID, err := t.DocID(record)
	if err != nil {
		return nil, err
	}

	doc := t.newDocument(docID, record)
	t.applyRecord(ctx, record, doc)

	if t.IsOpinion() {
		doc.ReportingSource = t.cfg.ReportingSource
		doc.ReportingSourceService = t.cfg.ReportingService
		MergeOpinion(doc, t.cfg.ReportingSource, t.cfg.ReportingService, t.opinionFrom(record))
		return doc, nil
	}

	doc.PrimaryProvider = rawData(record)
	if t.cfg.State != nil {
		doc.AssetState = t.cfg.State(doc)
	}
	return doc, nil
}

// UpdateFrom merges a record into an existing document. Fields are only
// added or overwritten, never cleared.
func (t *Translator) UpdateFrom(ctx context.Context, record types.Record, doc *types.Document) error {
	docID, err := t.DocID(record)
	if err != nil {
		return err
	}
	if doc.DocID != docID {
		t.migration.Apply(doc, docID)
	}

	t.applyRecord(ctx, record, doc)
	t.touch(record, doc)

	if t.IsOpinion() {
		MergeOpinion(doc, t.cfg.ReportingSource, t.cfg.ReportingService, t.opinionFrom(record))
		return nil
	}

	if raw := rawData(record); raw != "" {
		doc.PrimaryProvider = raw
	}
	if t.cfg.State != nil && (doc.AssetState == "" || doc.AssetState == types.AssetStateReconciling) {
		doc.AssetState = t.cfg.State(doc)
	}
	return nil
}

// Remove marks a document as no longer present in the source.
func (t *Translator) Remove(doc *types.Document) {
	doc.IsLatest = false
}

// CreatePrimaryStub builds the primary placeholder for an asset only known
// through an opinion. Records carrying primary-shaped fields produce a
// suspicious stub; bare identity records stay reconciling until the primary
// source reports.
func (t *Translator) CreatePrimaryStub(ctx context.Context, record types.Record) (*types.Document, error) {
	docID, err := t.DocID(record)
	if err != nil {
		return nil, err
	}

	doc := t.newDocument(docID, record)
	t.applyRecord(ctx, record, doc)
	doc.AssetState = stubState(record)
	return doc, nil
}

// UpdatePrimaryStub refreshes a placeholder primary from an opinion record.
// The state is left to the state pass.
func (t *Translator) UpdatePrimaryStub(ctx context.Context, record types.Record, doc *types.Document) error {
	docID, err := t.DocID(record)
	if err != nil {
		return err
	}
	if doc.DocID != docID {
		t.migration.Apply(doc, docID)
	}
	t.applyRecord(ctx, record, doc)
	t.touch(record, doc)
	return nil
}

func (t *Translator) newDocument(docID string, record types.Record) *types.Document {
	now := types.NewTimestamp(t.cfg.ScanTime)
	doc := &types.Document{
		DocID:                 docID,
		EntityType:            t.cfg.Type.Name,
		EntityTypeDisplayName: t.cfg.Type.DisplayName,
		Source:                t.cfg.DataSource,
		SourceDisplayName:     t.cfg.SourceDisplayName,
		DocType:               t.cfg.Type.Name,
		IsEntity:              true,
		IsLatest:              true,
		FirstDiscoveryDate:    t.recordDate(record, types.FieldFirstDiscoveryDate, now),
		LastDiscoveryDate:     t.recordDate(record, types.FieldLastDiscoveryDate, now),
		LoadDate:              now,
	}
	doc.SetRelation(t.cfg.Type.Name+types.RelationsSuffix, t.cfg.Type.Name)
	return doc
}

// touch stamps a re-observed document.
func (t *Translator) touch(record types.Record, doc *types.Document) {
	now := types.NewTimestamp(t.cfg.ScanTime)

	doc.IsLatest = true
	doc.IsEntity = true
	doc.LoadDate = now
	doc.LastDiscoveryDate = t.recordDate(record, types.FieldLastDiscoveryDate, now)
	if doc.FirstDiscoveryDate.IsZero() {
		doc.FirstDiscoveryDate = t.recordDate(record, types.FieldFirstDiscoveryDate, now)
	}
	if doc.EntityType == "" {
		doc.EntityType = t.cfg.Type.Name
		doc.DocType = t.cfg.Type.Name
	}
	if doc.Source == "" {
		doc.Source = t.cfg.DataSource
	}
	if t.cfg.Type.DisplayName != "" {
		doc.EntityTypeDisplayName = t.cfg.Type.DisplayName
	}
	if t.cfg.SourceDisplayName != "" {
		doc.SourceDisplayName = t.cfg.SourceDisplayName
	}
	doc.SetRelation(t.cfg.Type.Name+types.RelationsSuffix, t.cfg.Type.Name)
}

// commonFields are copied from the record with legacy-then-current precedence.
var commonFields = []types.StringField{
	fieldFor(types.FieldResourceID),
	fieldFor(types.FieldResourceName),
	fieldFor(types.FieldAccountID),
	fieldFor(types.FieldAccountName),
	fieldFor(types.FieldRegion),
}

func fieldFor(a types.FieldAlias) types.StringField {
	for _, f := range types.StringFields {
		if f.Alias == a {
			return f
		}
	}
	panic("assets: no document field for " + a.Current)
}

// applyRecord copies record values onto doc additively.
func (t *Translator) applyRecord(ctx context.Context, record types.Record, doc *types.Document) {
	for _, f := range commonFields {
		if v := f.Alias.From(record); v != "" {
			f.Set(doc, v)
		}
	}

	if t.profile != nil {
		if types.FieldAccountID.From(record) == "" && t.profile.AccountIDFallback() != "" {
			if v := record.String(t.profile.AccountIDFallback()); v != "" {
				doc.AccountID = v
			}
		}
		if types.FieldAccountName.From(record) == "" && t.profile.AccountNameFallback() != "" {
			if v := record.String(t.profile.AccountNameFallback()); v != "" {
				doc.AccountName = v
			}
		}
	}

	if doc.AccountName == "" && doc.AccountID != "" && t.cfg.Accounts != nil {
		name, err := t.cfg.Accounts.AccountName(ctx, t.cfg.TenantID, t.cfg.DataSource, doc.AccountID)
		if err != nil {
			t.logger.Warn("failed to resolve account name",
				"tenant", t.cfg.TenantID,
				"source", t.cfg.DataSource,
				"account_id", doc.AccountID,
				"error", err,
			)
		} else if name != "" {
			doc.AccountName = name
		}
	}

	if t.profile != nil {
		t.profile.Decorate(record, doc)
	}

	for key, value := range record {
		switch {
		case strings.HasPrefix(key, t.cfg.TagPrefix):
			if v := types.StringValue(value); v != "" {
				doc.SetTag(strings.TrimPrefix(key, t.cfg.TagPrefix), v)
			}
		case !types.IsKnownField(key):
			doc.SetAdditional(key, value)
		}
	}

	for _, tuple := range t.tags.lookup(record) {
		doc.SetTag(tuple[types.TagKey], tuple[types.TagValue])
	}
}

func (t *Translator) opinionFrom(record types.Record) types.Opinion {
	now := types.NewTimestamp(t.cfg.ScanTime)
	return types.Opinion{
		Data:          rawData(record),
		FirstScanDate: now,
		LastScanDate:  now,
		ServiceName:   t.cfg.ReportingServiceName,
		DeepLink:      types.FieldDeepLink.From(record),
	}
}

func (t *Translator) recordDate(record types.Record, field types.FieldAlias, fallback types.Timestamp) types.Timestamp {
	raw := field.From(record)
	if raw == "" {
		return fallback
	}
	ts, err := types.ParseTimestamp(raw)
	if err != nil || ts.IsZero() {
		t.logger.Debug("ignoring unparseable record date", "field", field.Current, "value", raw)
		return fallback
	}
	return ts
}

// rawData returns the provider payload carried by a record, falling back to
// the record itself.
func rawData(record types.Record) string {
	if v := types.FieldRawData.From(record); v != "" {
		return v
	}
	return record.JSON()
}

// primaryShapedFields are the fields a primary scan would populate.
var primaryShapedFields = []types.FieldAlias{
	types.FieldResourceName,
	types.FieldAccountID,
	types.FieldAccountName,
	types.FieldRegion,
}

func stubState(record types.Record) types.AssetState {
	for _, f := range primaryShapedFields {
		if f.From(record) != "" {
			return types.AssetStateSuspicious
		}
	}
	return types.AssetStateReconciling
}
