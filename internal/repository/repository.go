package repository

import (
	"context"
	"errors"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

var (
	// ErrRepository marks every failure of the document store.
	ErrRepository = errors.New("repository failure")

	// ErrNotFound is returned when an addressed document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrBatchClosed is returned when a flushed or cancelled batch is reused.
	ErrBatchClosed = errors.New("batch already flushed or cancelled")
)

// Error wraps a store failure. It matches both ErrRepository and the cause.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{ErrRepository, e.Err}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Index addresses one index of one tenant.
type Index struct {
	Tenant string
	Name   string
}

func (i Index) String() string {
	return i.Tenant + "/" + i.Name
}

// Filters restricts GetAssets by document field. Keys are current field names.
type Filters map[string]any

// Repository reads documents and opens write batches.
type Repository interface {
	// GetAssets returns the documents of an index keyed by doc id. Child
	// relation documents are never returned.
	GetAssets(ctx context.Context, index Index, latestOnly bool, filters Filters) (map[string]*types.Document, error)

	// GetStates returns the state projection of the latest documents.
	GetStates(ctx context.Context, index Index) (map[string]types.StateRecord, error)

	// GetDocument returns one document or ErrNotFound.
	GetDocument(ctx context.Context, index Index, docID string) (*types.Document, error)

	// NewBatch opens a write batch.
	NewBatch() Batch
}

// Batch buffers writes until Flush. Nothing is visible to readers before
// Flush returns, and Cancel discards every buffered write.
type Batch interface {
	Upsert(index Index, docID string, doc *types.Document) error
	RoutedUpsert(index Index, routing, docID string, doc any) error
	UpdateFields(index Index, docID string, fields map[string]any) error
	Delete(index Index, docID string) error
	Len() int
	Flush(ctx context.Context) error
	Cancel()
}
