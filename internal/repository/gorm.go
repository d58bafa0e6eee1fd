package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hugh/asset-shipper/internal/assets/types"
	"github.com/hugh/asset-shipper/internal/database/models"
)

// DefaultBatchSize is the number of rows written per statement.
const DefaultBatchSize = 500

var filterColumns = map[string]string{
	"source":     "source",
	"entityType": "entity_type",
	"assetState": "asset_state",
	"isLatest":   "is_latest",
}

// Store implements Repository on top of gorm.
type Store struct {
	db        *gorm.DB
	batchSize int
	logger    *slog.Logger
}

// NewStore creates a new document store
func NewStore(db *gorm.DB, batchSize int, logger *slog.Logger) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize, logger: logger}
}

// GetAssets implements Repository
func (s *Store) GetAssets(ctx context.Context, index Index, latestOnly bool, filters Filters) (map[string]*types.Document, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND index_name = ? AND routing = ?", index.Tenant, index.Name, "")
	if latestOnly {
		q = q.Where("is_latest = ?", true)
	}
	for key, value := range filters {
		col, ok := filterColumns[key]
		if !ok {
			return nil, wrap("get assets", fmt.Errorf("unsupported filter %q", key))
		}
		q = q.Where(col+" = ?", value)
	}

	var rows []models.AssetDocument
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrap("get assets "+index.String(), err)
	}

	docs := make(map[string]*types.Document, len(rows))
	for _, row := range rows {
		doc := &types.Document{}
		if err := json.Unmarshal(row.Body, doc); err != nil {
			return nil, wrap("decode "+row.DocID, err)
		}
		docs[row.DocID] = doc
	}
	return docs, nil
}

// GetStates implements Repository
func (s *Store) GetStates(ctx context.Context, index Index) (map[string]types.StateRecord, error) {
	var rows []models.AssetDocument
	err := s.db.WithContext(ctx).
		Select("doc_id", "asset_state", "has_primary_provider").
		Where("tenant_id = ? AND index_name = ? AND routing = ? AND is_latest = ?", index.Tenant, index.Name, "", true).
		Find(&rows).Error
	if err != nil {
		return nil, wrap("get states "+index.String(), err)
	}

	states := make(map[string]types.StateRecord, len(rows))
	for _, row := range rows {
		states[row.DocID] = types.StateRecord{
			DocID:              row.DocID,
			AssetState:         types.AssetState(row.AssetState),
			HasPrimaryProvider: row.HasPrimaryProvider,
		}
	}
	return states, nil
}

// GetDocument implements Repository
func (s *Store) GetDocument(ctx context.Context, index Index, docID string) (*types.Document, error) {
	var row models.AssetDocument
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND index_name = ? AND doc_id = ?", index.Tenant, index.Name, docID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", index, docID, ErrNotFound)
	}
	if err != nil {
		return nil, wrap("get document "+docID, err)
	}

	doc := &types.Document{}
	if err := json.Unmarshal(row.Body, doc); err != nil {
		return nil, wrap("decode "+docID, err)
	}
	return doc, nil
}

// NewBatch implements Repository
func (s *Store) NewBatch() Batch {
	return &gormBatch{db: s.db, size: s.batchSize, logger: s.logger}
}

type opKind int

const (
	opUpsert opKind = iota
	opUpdate
	opDelete
)

type batchOp struct {
	kind   opKind
	row    models.AssetDocument
	fields map[string]any
}

type gormBatch struct {
	mu     sync.Mutex
	db     *gorm.DB
	size   int
	logger *slog.Logger
	ops    []batchOp
	closed bool
}

func (b *gormBatch) add(op batchOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatchClosed
	}
	b.ops = append(b.ops, op)
	return nil
}

// Upsert serializes doc immediately, so later changes to doc are not written.
func (b *gormBatch) Upsert(index Index, docID string, doc *types.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", docID, err)
	}
	return b.add(batchOp{kind: opUpsert, row: models.AssetDocument{
		TenantID:           index.Tenant,
		IndexName:          index.Name,
		DocID:              docID,
		Source:             doc.Source,
		EntityType:         doc.EntityType,
		IsLatest:           doc.IsLatest,
		AssetState:         string(doc.AssetState),
		HasPrimaryProvider: doc.PrimaryProvider != "",
		Body:               datatypes.JSON(body),
	}})
}

func (b *gormBatch) RoutedUpsert(index Index, routing, docID string, doc any) error {
	if routing == "" {
		return fmt.Errorf("routed upsert of %s: empty routing key", docID)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", docID, err)
	}
	return b.add(batchOp{kind: opUpsert, row: models.AssetDocument{
		TenantID:  index.Tenant,
		IndexName: index.Name,
		DocID:     docID,
		Routing:   routing,
		IsLatest:  true,
		Body:      datatypes.JSON(body),
	}})
}

func (b *gormBatch) UpdateFields(index Index, docID string, fields map[string]any) error {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return b.add(batchOp{
		kind:   opUpdate,
		row:    models.AssetDocument{TenantID: index.Tenant, IndexName: index.Name, DocID: docID},
		fields: copied,
	})
}

func (b *gormBatch) Delete(index Index, docID string) error {
	return b.add(batchOp{
		kind: opDelete,
		row:  models.AssetDocument{TenantID: index.Tenant, IndexName: index.Name, DocID: docID},
	})
}

func (b *gormBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// Cancel discards every buffered write.
func (b *gormBatch) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
	b.closed = true
}

// Flush writes every buffered operation in one transaction, in the order
// they were added.
func (b *gormBatch) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatchClosed
	}
	ops := b.ops
	b.ops = nil
	b.closed = true
	b.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []models.AssetDocument
		pos := map[string]int{}

		writePending := func() error {
			if len(pending) == 0 {
				return nil
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tenant_id"}, {Name: "index_name"}, {Name: "doc_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"routing", "source", "entity_type", "is_latest",
					"asset_state", "has_primary_provider", "body", "updated_at",
				}),
			}).CreateInBatches(pending, b.size).Error
			pending = nil
			pos = map[string]int{}
			return err
		}

		for _, op := range ops {
			if op.kind == opUpsert {
				// One statement cannot touch the same row twice; the later write wins.
				key := rowKey(op.row)
				if i, ok := pos[key]; ok {
					pending[i] = op.row
					continue
				}
				pos[key] = len(pending)
				pending = append(pending, op.row)
				continue
			}

			if err := writePending(); err != nil {
				return err
			}
			switch op.kind {
			case opDelete:
				if err := tx.Where("tenant_id = ? AND index_name = ? AND doc_id = ?",
					op.row.TenantID, op.row.IndexName, op.row.DocID).
					Delete(&models.AssetDocument{}).Error; err != nil {
					return err
				}
			case opUpdate:
				if err := b.applyUpdate(tx, op); err != nil {
					return err
				}
			}
		}
		return writePending()
	})
	if err != nil {
		return wrap("flush", err)
	}

	b.logger.Debug("flushed batch", "operations", len(ops))
	return nil
}

// applyUpdate merges fields into a stored body. Missing documents are skipped.
func (b *gormBatch) applyUpdate(tx *gorm.DB, op batchOp) error {
	var row models.AssetDocument
	err := tx.Where("tenant_id = ? AND index_name = ? AND doc_id = ?",
		op.row.TenantID, op.row.IndexName, op.row.DocID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		b.logger.Warn("skipping update of missing document", "index", op.row.IndexName, "doc_id", op.row.DocID)
		return nil
	}
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(row.Body))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return fmt.Errorf("decoding %s: %w", row.DocID, err)
	}
	for k, v := range op.fields {
		body[k] = v
	}

	// Re-decode so column mirrors and legacy names stay in sync with the body.
	doc, err := types.DocumentFromMap(body)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", row.DocID, err)
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", row.DocID, err)
	}

	return tx.Model(&models.AssetDocument{}).
		Where("tenant_id = ? AND index_name = ? AND doc_id = ?", row.TenantID, row.IndexName, row.DocID).
		Updates(map[string]any{
			"body":                 datatypes.JSON(merged),
			"asset_state":          string(doc.AssetState),
			"is_latest":            doc.IsLatest,
			"has_primary_provider": doc.PrimaryProvider != "",
		}).Error
}

func rowKey(row models.AssetDocument) string {
	return row.TenantID + "\x00" + row.IndexName + "\x00" + row.DocID
}
