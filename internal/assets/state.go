package assets

import (
	"github.com/hugh/asset-shipper/internal/assets/types"
)

// NextAssetState applies the state transition rules to one primary.
func NextAssetState(current types.StateRecord, hasOpinion, isManaged bool) types.AssetState {
	managed := types.AssetStateUnmanaged
	if isManaged {
		managed = types.AssetStateManaged
	}

	// Something reports the asset but the primary source does not.
	if hasOpinion && !current.HasPrimaryProvider {
		return types.AssetStateSuspicious
	}

	switch current.AssetState {
	case types.AssetStateReconciling:
		return types.AssetStateReconciling
	case types.AssetStateManaged, types.AssetStateUnmanaged:
		return managed
	default:
		if !current.HasPrimaryProvider {
			return types.AssetStateSuspicious
		}
		return managed
	}
}

// EvaluateAssetStates returns the primaries whose state changes, keyed by doc
// id, with the new state set. Unchanged primaries are omitted.
func EvaluateAssetStates(primaries, opinions map[string]types.StateRecord, isManaged bool) map[string]types.StateRecord {
	updated := make(map[string]types.StateRecord)
	for docID, rec := range primaries {
		_, hasOpinion := opinions[docID]
		next := NextAssetState(rec, hasOpinion, isManaged)
		if next == rec.AssetState {
			continue
		}
		rec.DocID = docID
		rec.AssetState = next
		updated[docID] = rec
	}
	return updated
}
