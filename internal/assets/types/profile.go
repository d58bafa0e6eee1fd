package types

// CloudProfile captures the record conventions of one data source.
type CloudProfile interface {
	// Name returns the data source identifier (e.g., "aws", "azure", "gcp")
	Name() string

	// AccountIDFallback names the record field read when accountId is blank
	AccountIDFallback() string

	// AccountNameFallback names the record field read when accountName is blank
	AccountNameFallback() string

	// Decorate sets source specific derived fields on a document
	Decorate(record Record, doc *Document)
}
