package search

import (
	"context"
	"sync"
)

// MemoryStore is a process-local VectorStore. Contents are lost on restart;
// it backs tests and single-node deployments that do not need persistence.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
	dim  int
}

// NewMemoryStore returns an empty store. A positive dim makes Upsert reject
// vectors of any other length.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document), dim: dim}
}

// Upsert stores doc under doc.Key, replacing any previous document.
func (m *MemoryStore) Upsert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.dim > 0 && len(doc.Vector) != m.dim {
		return ErrDimensionMismatch
	}
	doc.Vector = append([]float32(nil), doc.Vector...)
	m.mu.Lock()
	m.docs[doc.Key] = doc
	m.mu.Unlock()
	return nil
}

// Similar returns the best matches for q.
func (m *MemoryStore) Similar(ctx context.Context, q Query) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	m.mu.RUnlock()
	return rank(docs, q), nil
}

// Len returns the number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
