package testutil

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/nanobook/nanobook/internal/vectorstore"
)

// MemoryIndex is an in-memory rag.VectorIndex with the same ordering
// semantics as the pgvector-backed store: cosine similarity descending,
// ties broken by record id ascending.
//
// Thread-safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]vectorstore.Record

	// Optional failure injection, applied on the next matching call.
	UpsertErr error
	SearchErr error
	ResetErr  error
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]vectorstore.Record)}
}

func (m *MemoryIndex) Upsert(_ context.Context, rec vectorstore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if len(rec.Embedding) != vectorstore.Dimension {
		return vectorstore.ErrDimensionMismatch
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *MemoryIndex) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if rec.DocumentID == documentID {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryIndex) Search(_ context.Context, vec []float32, limit int) ([]vectorstore.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	hits := make([]vectorstore.Hit, 0, len(m.records))
	for _, rec := range m.records {
		hits = append(hits, vectorstore.Hit{
			Record:     rec,
			Similarity: cosine(vec, rec.Embedding),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of stored records.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Get returns the stored record for id, if present.
func (m *MemoryIndex) Get(id string) (vectorstore.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

func (m *MemoryIndex) Reset(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResetErr != nil {
		return 0, m.ResetErr
	}
	n := int64(len(m.records))
	m.records = make(map[string]vectorstore.Record)
	return n, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
