// Package memory keeps document records in process memory. It backs the
// service when no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"docintake/internal/model"
	"docintake/internal/repository"
)

type DocumentMemory struct {
	mu   sync.RWMutex
	docs []model.DocumentRecord
	now  func() time.Time
}

func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{now: time.Now}
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

func (r *DocumentMemory) Create(ctx context.Context, doc *model.DocumentRecord) (*model.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := *doc
	stored.ID = uuid.NewString()
	stored.CreatedAt = r.now().UTC()

	r.mu.Lock()
	r.docs = append(r.docs, stored)
	r.mu.Unlock()

	return &stored, nil
}

func (r *DocumentMemory) List(ctx context.Context) ([]model.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.DocumentRecord, len(r.docs))
	copy(out, r.docs)
	return out, nil
}
