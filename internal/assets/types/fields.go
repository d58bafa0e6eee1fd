package types

// FieldAlias pairs the legacy (flat, pre-migration) name of a reserved field
// with its current name. Both names are written on every serialization.
type FieldAlias struct {
	Legacy  string
	Current string
}

// Reserved document fields.
var (
	FieldDocID                 = FieldAlias{Legacy: "_docid", Current: "docId"}
	FieldEntity                = FieldAlias{Legacy: "_entity", Current: "isEntity"}
	FieldEntityType            = FieldAlias{Legacy: "_entitytype", Current: "entityType"}
	FieldEntityTypeDisplayName = FieldAlias{Legacy: "_entitytypedisplayname", Current: "entityTypeDisplayName"}
	FieldSource                = FieldAlias{Legacy: "_cloudType", Current: "source"}
	FieldSourceDisplayName     = FieldAlias{Legacy: "_cloudTypeDisplayName", Current: "sourceDisplayName"}
	FieldDocType               = FieldAlias{Legacy: "_docType", Current: "docType"}
	FieldResourceID            = FieldAlias{Legacy: "_resourceid", Current: "resourceId"}
	FieldResourceName          = FieldAlias{Legacy: "_resourcename", Current: "resourceName"}
	FieldAccountID             = FieldAlias{Legacy: "accountid", Current: "accountId"}
	FieldAccountName           = FieldAlias{Legacy: "accountname", Current: "accountName"}
	FieldRegion                = FieldAlias{Legacy: "region", Current: "region"}
	FieldLatest                = FieldAlias{Legacy: "latest", Current: "isLatest"}
	FieldFirstDiscoveryDate    = FieldAlias{Legacy: "firstdiscoveredon", Current: "firstDiscoveryDate"}
	FieldLastDiscoveryDate     = FieldAlias{Legacy: "discoverydate", Current: "lastDiscoveryDate"}
	FieldLoadDate              = FieldAlias{Legacy: "_loaddate", Current: "loadDate"}
	FieldReportingSource       = FieldAlias{Legacy: "_reporting_source", Current: "reportingSource"}
	FieldReportingService      = FieldAlias{Legacy: "_reporting_source_service", Current: "reportingSourceService"}
	FieldAssetIDDisplayName    = FieldAlias{Legacy: "assetIdDisplayName", Current: "assetIdDisplayName"}
)

// Mapper-only fields. They are consumed by the translator and never copied
// into AdditionalProperties.
var (
	FieldRawData   = FieldAlias{Legacy: "_rawdata", Current: "rawData"}
	FieldDeepLink  = FieldAlias{Legacy: "_deeplink", Current: "deepLink"}
	FieldAssetName = FieldAlias{Legacy: "_assetname", Current: "assetName"}
)

// Current-only document fields.
const (
	KeyPrimaryProvider = "primaryProvider"
	KeyAssetState      = "assetState"
	KeyOpinions        = "opinions"
	KeyTags            = "tags"

	// DefaultTagPrefix marks flat mapper keys that belong in Tags.
	DefaultTagPrefix = "tags."

	// RelationsSuffix ends the join-relation key written for every document.
	RelationsSuffix = "_relations"
)

// Cloud specific source keys used as account fallbacks and display names.
const (
	KeySubscription      = "subscription"
	KeySubscriptionName  = "subscriptionName"
	KeyProject           = "project"
	KeyProjectName       = "projectName"
	KeyResourceGroupName = "resourceGroupName"
)

// Names returns the distinct field names of the alias.
func (a FieldAlias) Names() []string {
	if a.Legacy == a.Current || a.Legacy == "" {
		return []string{a.Current}
	}
	return []string{a.Legacy, a.Current}
}

// From reads the alias from a record. The legacy name is checked first and the
// current name second, so a non-blank current value wins.
func (a FieldAlias) From(r Record) string {
	value := ""
	if a.Legacy != "" {
		value = r.String(a.Legacy)
	}
	if current := r.String(a.Current); current != "" {
		value = current
	}
	return value
}

// StringField binds an aliased field to its canonical struct member. The
// table below is the single place that knows how a document's string fields
// map onto both schemas.
type StringField struct {
	Alias FieldAlias
	Get   func(d *Document) string
	Set   func(d *Document, v string)
}

// StringFields lists every aliased string field on Document.
var StringFields = []StringField{
	{FieldDocID, func(d *Document) string { return d.DocID }, func(d *Document, v string) { d.DocID = v }},
	{FieldEntityType, func(d *Document) string { return d.EntityType }, func(d *Document, v string) { d.EntityType = v }},
	{FieldEntityTypeDisplayName, func(d *Document) string { return d.EntityTypeDisplayName }, func(d *Document, v string) { d.EntityTypeDisplayName = v }},
	{FieldSource, func(d *Document) string { return d.Source }, func(d *Document, v string) { d.Source = v }},
	{FieldSourceDisplayName, func(d *Document) string { return d.SourceDisplayName }, func(d *Document, v string) { d.SourceDisplayName = v }},
	{FieldDocType, func(d *Document) string { return d.DocType }, func(d *Document, v string) { d.DocType = v }},
	{FieldResourceID, func(d *Document) string { return d.ResourceID }, func(d *Document, v string) { d.ResourceID = v }},
	{FieldResourceName, func(d *Document) string { return d.ResourceName }, func(d *Document, v string) { d.ResourceName = v }},
	{FieldAccountID, func(d *Document) string { return d.AccountID }, func(d *Document, v string) { d.AccountID = v }},
	{FieldAccountName, func(d *Document) string { return d.AccountName }, func(d *Document, v string) { d.AccountName = v }},
	{FieldRegion, func(d *Document) string { return d.Region }, func(d *Document, v string) { d.Region = v }},
	{FieldReportingSource, func(d *Document) string { return d.ReportingSource }, func(d *Document, v string) { d.ReportingSource = v }},
	{FieldReportingService, func(d *Document) string { return d.ReportingSourceService }, func(d *Document, v string) { d.ReportingSourceService = v }},
	{FieldAssetIDDisplayName, func(d *Document) string { return d.AssetIDDisplayName }, func(d *Document, v string) { d.AssetIDDisplayName = v }},
}

// BoolField binds an aliased boolean field.
type BoolField struct {
	Alias FieldAlias
	Get   func(d *Document) bool
	Set   func(d *Document, v bool)
}

// BoolFields lists every aliased boolean field on Document.
var BoolFields = []BoolField{
	{FieldEntity, func(d *Document) bool { return d.IsEntity }, func(d *Document, v bool) { d.IsEntity = v }},
	{FieldLatest, func(d *Document) bool { return d.IsLatest }, func(d *Document, v bool) { d.IsLatest = v }},
}

// TimeField binds an aliased timestamp field.
type TimeField struct {
	Alias FieldAlias
	Get   func(d *Document) Timestamp
	Set   func(d *Document, v Timestamp)
}

// TimeFields lists every aliased timestamp field on Document.
var TimeFields = []TimeField{
	{FieldFirstDiscoveryDate, func(d *Document) Timestamp { return d.FirstDiscoveryDate }, func(d *Document, v Timestamp) { d.FirstDiscoveryDate = v }},
	{FieldLastDiscoveryDate, func(d *Document) Timestamp { return d.LastDiscoveryDate }, func(d *Document, v Timestamp) { d.LastDiscoveryDate = v }},
	{FieldLoadDate, func(d *Document) Timestamp { return d.LoadDate }, func(d *Document, v Timestamp) { d.LoadDate = v }},
}

var knownFields = buildKnownFields()

func buildKnownFields() map[string]bool {
	known := map[string]bool{
		KeyPrimaryProvider: true,
		KeyAssetState:      true,
		KeyOpinions:        true,
		KeyTags:            true,
	}
	add := func(a FieldAlias) {
		for _, n := range a.Names() {
			known[n] = true
		}
	}
	for _, f := range StringFields {
		add(f.Alias)
	}
	for _, f := range BoolFields {
		add(f.Alias)
	}
	for _, f := range TimeFields {
		add(f.Alias)
	}
	add(FieldRawData)
	add(FieldDeepLink)
	add(FieldAssetName)
	return known
}

// IsKnownField reports whether key is modeled by Document (or consumed by the
// translator) and therefore must not land in AdditionalProperties.
func IsKnownField(key string) bool {
	if knownFields[key] {
		return true
	}
	return len(key) > len(RelationsSuffix) && key[len(key)-len(RelationsSuffix):] == RelationsSuffix
}
