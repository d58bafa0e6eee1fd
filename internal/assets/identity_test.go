package assets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

func TestBuildDocID(t *testing.T) {
	tests := []struct {
		name      string
		record    types.Record
		source    string
		assetType string
		keyFields []string
		want      string
	}{
		{
			name:      "single key field",
			record:    types.Record{"id": "q13"},
			source:    "test",
			assetType: "ec2",
			keyFields: []string{"id"},
			want:      "test_ec2_q13",
		},
		{
			name:      "multiple key fields joined in order",
			record:    types.Record{"accountId": "123", "id": "i-9"},
			source:    "aws",
			assetType: "ec2",
			keyFields: []string{"accountId", "id"},
			want:      "aws_ec2_123_i-9",
		},
		{
			name:      "legacy aws account key doubles the prefix",
			record:    types.Record{"accountid": "123", "id": "i-9"},
			source:    "aws",
			assetType: "ec2",
			keyFields: []string{"accountid", "id"},
			want:      "aws_ec2_aws_ec2_123_i-9",
		},
		{
			name:      "numeric values keep integer form",
			record:    types.Record{"id": float64(42)},
			source:    "gcp",
			assetType: "vm",
			keyFields: []string{"id"},
			want:      "gcp_vm_42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildDocID(tt.record, tt.source, tt.assetType, tt.keyFields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDocID_InvalidIdentity(t *testing.T) {
	record := types.Record{"id": "q13", "region": "  "}

	_, err := BuildDocID(record, "test", "ec2", []string{"id", "region"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidIdentity))

	var identityErr *IdentityError
	require.True(t, errors.As(err, &identityErr))
	assert.Equal(t, []string{"id", "region"}, identityErr.KeyFields)
	assert.Contains(t, err.Error(), "id, region")
	assert.Contains(t, err.Error(), `"id":"q13"`)
}

func TestBuildDocID_Deterministic(t *testing.T) {
	record := types.Record{"a": "1", "b": "2"}
	first, err := BuildDocID(record, "s", "t", []string{"a", "b"})
	require.NoError(t, err)
	second, err := BuildDocID(record, "s", "t", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIndexNames(t *testing.T) {
	assert.Equal(t, "aws_ec2", IndexName("aws", "ec2"))
	assert.Equal(t, "aws_ec2_opinions", OpinionIndexName("aws", "ec2"))
}
