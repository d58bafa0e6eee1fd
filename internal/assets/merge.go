package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

// MergeResult partitions the documents touched by one reconciliation.
type MergeResult struct {
	NewAssets     map[string]*types.Document
	UpdatedAssets map[string]*types.Document
	MissingAssets map[string]*types.Document

	// Opinion workflow only.
	NewPrimaryAssets     map[string]*types.Document
	UpdatedPrimaryAssets map[string]*types.Document
	DeletedPrimaryAssets map[string]*types.Document
	DeletedOpinionAssets map[string]*types.Document
}

// NewMergeResult returns a result with every partition allocated.
func NewMergeResult() *MergeResult {
	return &MergeResult{
		NewAssets:            make(map[string]*types.Document),
		UpdatedAssets:        make(map[string]*types.Document),
		MissingAssets:        make(map[string]*types.Document),
		NewPrimaryAssets:     make(map[string]*types.Document),
		UpdatedPrimaryAssets: make(map[string]*types.Document),
		DeletedPrimaryAssets: make(map[string]*types.Document),
		DeletedOpinionAssets: make(map[string]*types.Document),
	}
}

// Empty reports whether the result has nothing to write.
func (r *MergeResult) Empty() bool {
	return len(r.NewAssets)+len(r.UpdatedAssets)+len(r.MissingAssets)+
		len(r.NewPrimaryAssets)+len(r.UpdatedPrimaryAssets)+
		len(r.DeletedPrimaryAssets)+len(r.DeletedOpinionAssets) == 0
}

// Merger runs the reconciliation of a full snapshot against stored documents.
type Merger struct {
	logger *slog.Logger
}

// NewMerger creates a new merger
func NewMerger(logger *slog.Logger) *Merger {
	return &Merger{logger: logger}
}

// Process reconciles latest against existing. The snapshot is authoritative:
// anything in existing that latest no longer mentions is tombstoned (primary
// workflow) or loses this reporter's opinion (opinion workflow).
// existingPrimary is only read in the opinion workflow.
func (m *Merger) Process(ctx context.Context, helper DocumentHelper, existing map[string]*types.Document, latest []types.Record, existingPrimary map[string]*types.Document) (*MergeResult, error) {
	if existing == nil {
		existing = map[string]*types.Document{}
	}
	if existingPrimary == nil {
		existingPrimary = map[string]*types.Document{}
	}
	opSource, opService, opinion := helper.OpinionKey()

	res := NewMergeResult()

	for i, record := range latest {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if helper.IDValue(record) == "" {
			return nil, fmt.Errorf("record %d: %w", i, ErrMissingIDField)
		}

		docID, err := helper.DocID(record)
		if err != nil {
			if errors.Is(err, ErrInvalidIdentity) {
				m.logger.Warn("skipping record with invalid identity", "index", i, "error", err)
				continue
			}
			return nil, err
		}

		switch {
		case res.NewAssets[docID] != nil:
			// Duplicate within the snapshot: fold into the pending document.
			if err := helper.UpdateFrom(ctx, record, res.NewAssets[docID]); err != nil {
				return nil, fmt.Errorf("updating %s: %w", docID, err)
			}
		case existing[docID] != nil:
			doc := existing[docID]
			if err := helper.UpdateFrom(ctx, record, doc); err != nil {
				return nil, fmt.Errorf("updating %s: %w", docID, err)
			}
			res.UpdatedAssets[docID] = doc
		default:
			doc, err := helper.CreateFrom(ctx, record)
			if err != nil {
				return nil, fmt.Errorf("creating %s: %w", docID, err)
			}
			if doc == nil {
				continue
			}
			res.NewAssets[docID] = doc
		}

		if opinion {
			if err := m.reconcilePrimary(ctx, helper, record, docID, existingPrimary, res); err != nil {
				return nil, err
			}
		}
	}

	for _, docID := range sortedIDs(existing) {
		if res.NewAssets[docID] != nil || res.UpdatedAssets[docID] != nil {
			continue
		}
		doc := existing[docID]

		if opinion {
			m.retireOpinion(docID, doc, opSource, opService, existingPrimary, res)
			continue
		}

		helper.Remove(doc)
		res.MissingAssets[docID] = doc
	}

	return res, nil
}

func (m *Merger) reconcilePrimary(ctx context.Context, helper DocumentHelper, record types.Record, docID string, existingPrimary map[string]*types.Document, res *MergeResult) error {
	if stub := res.NewPrimaryAssets[docID]; stub != nil {
		return helper.UpdatePrimaryStub(ctx, record, stub)
	}

	primary := existingPrimary[docID]
	if primary == nil {
		stub, err := helper.CreatePrimaryStub(ctx, record)
		if err != nil {
			return fmt.Errorf("creating primary stub %s: %w", docID, err)
		}
		res.NewPrimaryAssets[docID] = stub
		return nil
	}

	if isStub(primary) {
		if err := helper.UpdatePrimaryStub(ctx, record, primary); err != nil {
			return fmt.Errorf("updating primary stub %s: %w", docID, err)
		}
		res.UpdatedPrimaryAssets[docID] = primary
	}
	return nil
}

func (m *Merger) retireOpinion(docID string, doc *types.Document, source, service string, existingPrimary map[string]*types.Document, res *MergeResult) {
	if !HasOpinion(doc, source, service) {
		return
	}

	if RemoveOpinion(doc, source, service) > 0 {
		res.UpdatedAssets[docID] = doc
		return
	}

	res.DeletedOpinionAssets[docID] = doc
	if primary := existingPrimary[docID]; primary != nil && isStub(primary) {
		res.DeletedPrimaryAssets[docID] = primary
	}
	m.logger.Debug("removed last opinion", "doc_id", docID, "reporting_source", source)
}

// isStub reports whether a primary document was synthesized from opinions.
// Unstated documents without a provider predate the state field and are
// treated as ordinary primaries.
func isStub(doc *types.Document) bool {
	return doc.IsOpinionStub() && doc.AssetState != ""
}

func sortedIDs(docs map[string]*types.Document) []string {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
