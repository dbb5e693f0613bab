package repository

import (
	"context"

	"docintake/internal/model"
)

// DocumentRepository defines data access for extracted document records.
// Records are append-only: there is no update or delete.
type DocumentRepository interface {
	// Create inserts a record. ID and CreatedAt are assigned by the store and
	// returned in the stored copy.
	Create(ctx context.Context, doc *model.DocumentRecord) (*model.DocumentRecord, error)

	// List returns every record in insertion order (created_at, then id).
	List(ctx context.Context) ([]model.DocumentRecord, error)
}
