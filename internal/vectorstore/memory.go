package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
)

// snapshot is an immutable view of the collection. Snapshots share one backing array:
// later inserts only append past len(records), which no published snapshot can see.
type snapshot struct {
	dimension int
	records   []Record
}

// MemoryIndex is an in-process VectorIndex.
// Writers are serialized by a mutex; readers load the current snapshot without locking,
// so a search never blocks on an insert and never observes part of a batch.
type MemoryIndex struct {
	mu   sync.Mutex
	ids  map[string]int // record id -> position in records, guarded by mu
	snap atomic.Pointer[snapshot]
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	m := &MemoryIndex{ids: map[string]int{}}
	m.snap.Store(&snapshot{})
	return m
}

// Insert stores records atomically.
func (m *MemoryIndex) Insert(ctx context.Context, records []Record) error {
	return m.insertWith(ctx, records, nil)
}

// insertWith validates records against the current contents, runs persist (if any) while the
// write lock is held, and publishes the new snapshot only if persist succeeds.
func (m *MemoryIndex) insertWith(ctx context.Context, records []Record, persist func(dimension int) error) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	dim, err := validateBatch(cur.dimension, m.contains, records)
	if err != nil {
		return err
	}

	if persist != nil {
		if err := persist(dim); err != nil {
			return err
		}
	}

	all := cur.records
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		m.ids[r.ID] = len(all)
		all = append(all, r)
	}
	m.snap.Store(&snapshot{dimension: dim, records: all})

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "inserted records", "count", len(records), "total", len(all))
	return nil
}

func (m *MemoryIndex) contains(id string) bool {
	_, ok := m.ids[id]
	return ok
}

// validateBatch checks ids and dimensions and returns the dimension the collection will have.
// exists reports whether an id is already stored; it may be nil.
func validateBatch(dimension int, exists func(id string) bool, records []Record) (int, error) {
	dim := dimension
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("%w: record %d has empty id", apperr.ErrInvalidArgument, i)
		}
		if len(r.Vector) == 0 {
			return 0, fmt.Errorf("%w: record %s has empty vector", apperr.ErrInvalidArgument, r.ID)
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return 0, fmt.Errorf("%w: record %s has dimension %d, collection has %d", apperr.ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
		if exists != nil && exists(r.ID) {
			return 0, fmt.Errorf("%w: %s", apperr.ErrDuplicateID, r.ID)
		}
		if _, ok := seen[r.ID]; ok {
			return 0, fmt.Errorf("%w: %s repeated in batch", apperr.ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return dim, nil
}

// load replaces the contents with records read from persistent storage, in insertion order.
func (m *MemoryIndex) load(dimension int, records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ids = make(map[string]int, len(records))
	for i, r := range records {
		m.ids[r.ID] = i
	}
	m.snap.Store(&snapshot{dimension: dimension, records: records})
}

// Lookup returns the record stored under id.
func (m *MemoryIndex) Lookup(ctx context.Context, id string) (Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}

	m.mu.Lock()
	pos, ok := m.ids[id]
	s := m.snap.Load()
	m.mu.Unlock()

	if !ok {
		return Result{}, false, nil
	}
	r := s.records[pos]
	return Result{ID: r.ID, SourceID: r.SourceID, Index: r.Index, Text: r.Text}, true, nil
}

// Search returns at most k records ranked by cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be greater than 0, got %d", apperr.ErrInvalidArgument, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := m.snap.Load()
	if len(s.records) == 0 {
		return []Result{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, collection has %d", apperr.ErrDimensionMismatch, len(query), s.dimension)
	}

	results := make([]Result, len(s.records))
	for i, r := range s.records {
		results[i] = Result{
			ID:       r.ID,
			SourceID: r.SourceID,
			Index:    r.Index,
			Text:     r.Text,
			Score:    CosineSimilarity(query, r.Vector),
		}
	}
	return rankTopK(results, k), nil
}

// Count returns the number of records.
func (m *MemoryIndex) Count(context.Context) (int, error) {
	return len(m.snap.Load().records), nil
}

// Dimension returns the established dimension, 0 while empty.
func (m *MemoryIndex) Dimension() int {
	return m.snap.Load().dimension
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}
