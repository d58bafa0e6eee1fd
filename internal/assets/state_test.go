package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

func TestNextAssetState(t *testing.T) {
	tests := []struct {
		name       string
		current    types.AssetState
		provider   bool
		hasOpinion bool
		managed    bool
		want       types.AssetState
	}{
		{"unstated with provider managed", "", true, false, true, types.AssetStateManaged},
		{"unstated with provider unmanaged", "", true, false, false, types.AssetStateUnmanaged},
		{"unstated without provider", "", false, false, true, types.AssetStateSuspicious},
		{"suspicious confirmed by primary", types.AssetStateSuspicious, true, false, true, types.AssetStateManaged},
		{"suspicious still unconfirmed", types.AssetStateSuspicious, false, false, false, types.AssetStateSuspicious},
		{"managed loses policy", types.AssetStateManaged, true, false, false, types.AssetStateUnmanaged},
		{"unmanaged gains policy", types.AssetStateUnmanaged, true, false, true, types.AssetStateManaged},
		{"reconciling is sticky", types.AssetStateReconciling, true, false, true, types.AssetStateReconciling},
		{"opinion without primary overrides reconciling", types.AssetStateReconciling, false, true, true, types.AssetStateSuspicious},
		{"opinion without primary overrides managed", types.AssetStateManaged, false, true, true, types.AssetStateSuspicious},
		{"opinion with primary follows policy", types.AssetStateSuspicious, true, true, false, types.AssetStateUnmanaged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := types.StateRecord{AssetState: tt.current, HasPrimaryProvider: tt.provider}
			assert.Equal(t, tt.want, NextAssetState(rec, tt.hasOpinion, tt.managed))
		})
	}
}

func TestEvaluateAssetStates_OnlyChangedStates(t *testing.T) {
	primaries := map[string]types.StateRecord{
		"a": {DocID: "a", AssetState: types.AssetStateManaged, HasPrimaryProvider: true},
		"b": {DocID: "b", AssetState: types.AssetStateUnmanaged, HasPrimaryProvider: true},
		"c": {DocID: "c", AssetState: types.AssetStateReconciling},
	}
	opinions := map[string]types.StateRecord{
		"c": {DocID: "c"},
	}

	updated := EvaluateAssetStates(primaries, opinions, true)

	assert.Len(t, updated, 2)
	assert.Equal(t, types.AssetStateManaged, updated["b"].AssetState)
	assert.Equal(t, types.AssetStateSuspicious, updated["c"].AssetState)
	assert.NotContains(t, updated, "a")
}

func TestEvaluateAssetStates_Empty(t *testing.T) {
	assert.Empty(t, EvaluateAssetStates(nil, nil, false))
}
