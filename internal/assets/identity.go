package assets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hugh/asset-shipper/internal/assets/aws"
	"github.com/hugh/asset-shipper/internal/assets/types"
)

var (
	// ErrInvalidIdentity is returned when a key field is blank.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrMissingIDField is returned when a record has no value for the
	// type's id field. It aborts the whole reconciliation.
	ErrMissingIDField = errors.New("record missing id field")

	// ErrMissingMetadata is returned when an asset type or relation has no
	// registered metadata.
	ErrMissingMetadata = errors.New("missing asset type metadata")
)

// IdentityError describes a record whose key fields cannot form a document id.
type IdentityError struct {
	KeyFields []string
	Record    string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("invalid identity: key fields [%s] must all be non-blank in record %s",
		strings.Join(e.KeyFields, ", "), e.Record)
}

func (e *IdentityError) Unwrap() error {
	return ErrInvalidIdentity
}

// BuildDocID derives the stable document id of a record from its key fields.
func BuildDocID(record types.Record, source, assetType string, keyFields []string) (string, error) {
	if len(keyFields) == 0 {
		return "", &IdentityError{KeyFields: keyFields, Record: record.JSON()}
	}

	values := make([]string, 0, len(keyFields))
	for _, field := range keyFields {
		v := record.String(strings.TrimSpace(field))
		if v == "" {
			return "", &IdentityError{KeyFields: keyFields, Record: record.JSON()}
		}
		values = append(values, v)
	}

	prefix := IndexName(source, assetType) + "_"
	id := prefix + strings.Join(values, "_")
	if aws.UsesLegacyPrefix(source, keyFields) {
		id = prefix + id
	}
	return id, nil
}

// IndexName returns the primary index of a data source and asset type.
func IndexName(source, assetType string) string {
	return source + "_" + assetType
}

// OpinionIndexName returns the index holding opinions about the primary index.
func OpinionIndexName(source, assetType string) string {
	return IndexName(source, assetType) + "_opinions"
}
