package assets

import (
	"github.com/hugh/asset-shipper/internal/assets/types"
)

// MergeOpinion sets the opinion of (source, service) on doc. The opinion map
// is replaced rather than mutated so documents sharing a map are unaffected.
// A previously recorded first scan date is kept.
func MergeOpinion(doc *types.Document, source, service string, op types.Opinion) {
	merged := doc.Opinions.Clone()
	services := merged[source]
	if services == nil {
		services = make(map[string]types.Opinion)
	}
	if prev, ok := services[service]; ok && !prev.FirstScanDate.IsZero() {
		op.FirstScanDate = prev.FirstScanDate
	}
	services[service] = op
	merged[source] = services
	doc.Opinions = merged
}

// RemoveOpinion drops the opinion of (source, service) and returns how many
// opinions remain on doc.
func RemoveOpinion(doc *types.Document, source, service string) int {
	if !HasOpinion(doc, source, service) {
		return doc.Opinions.Count()
	}

	merged := doc.Opinions.Clone()
	delete(merged[source], service)
	if len(merged[source]) == 0 {
		delete(merged, source)
	}
	if len(merged) == 0 {
		merged = nil
	}
	doc.Opinions = merged
	return merged.Count()
}

// HasOpinion reports whether doc carries an opinion from (source, service).
func HasOpinion(doc *types.Document, source, service string) bool {
	_, ok := doc.Opinions.Get(source, service)
	return ok
}
