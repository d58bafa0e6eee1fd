package aws

import (
	"strings"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

// Name is the data source identifier for AWS.
const Name = "aws"

// Profile implements types.CloudProfile for AWS records
type Profile struct{}

// New creates the AWS profile
func New() *Profile {
	return &Profile{}
}

// Name returns the data source identifier
func (p *Profile) Name() string {
	return Name
}

// AccountIDFallback returns "" since AWS mappers always emit accountid
func (p *Profile) AccountIDFallback() string {
	return ""
}

// AccountNameFallback returns "" since AWS has no alternate account name field
func (p *Profile) AccountNameFallback() string {
	return ""
}

// Decorate is a no-op for AWS
func (p *Profile) Decorate(types.Record, *types.Document) {}

// UsesLegacyPrefix reports whether ids built from keyFields carry the doubled
// "aws_<type>_" prefix. Types keyed on the legacy accountid field were
// indexed that way before the current scheme and must keep resolving to the
// same documents.
func UsesLegacyPrefix(source string, keyFields []string) bool {
	if source != Name {
		return false
	}
	for _, f := range keyFields {
		if strings.TrimSpace(f) == types.FieldAccountID.Legacy {
			return true
		}
	}
	return false
}
