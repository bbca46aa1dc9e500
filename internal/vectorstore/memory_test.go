package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"reportrag/internal/apperr"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 0}, b: []float32{5, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testRecords() []Record {
	return []Record{
		{ID: "a:0", SourceID: "a", Index: 0, Vector: []float32{1, 0, 0}, Text: "east"},
		{ID: "a:1", SourceID: "a", Index: 1, Vector: []float32{0, 1, 0}, Text: "north"},
		{ID: "b:0", SourceID: "b", Index: 0, Vector: []float32{0.9, 0.1, 0}, Text: "mostly east"},
	}
}

func TestMemoryIndex_InsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	if err := idx.Insert(ctx, testRecords()); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if idx.Dimension() != 3 {
		t.Errorf("Dimension() = %d, want 3", idx.Dimension())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].ID != "a:0" || results[1].ID != "b:0" {
		t.Errorf("Search() order = %s, %s, want a:0, b:0", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("Search() results not in descending score order")
	}
	if results[1].SourceID != "b" || results[1].Text != "mostly east" {
		t.Errorf("results[1] = %+v", results[1])
	}
}

func TestMemoryIndex_Search(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		records   []Record
		query     []float32
		k         int
		wantIDs   []string
		wantErrIs error
	}{
		{
			name:    "empty collection",
			query:   []float32{1, 0},
			k:       5,
			wantIDs: []string{},
		},
		{
			name:    "k larger than collection",
			records: testRecords(),
			query:   []float32{0, 1, 0},
			k:       10,
			wantIDs: []string{"a:1", "b:0", "a:0"},
		},
		{
			name: "ties broken by insertion order",
			records: []Record{
				{ID: "first", Vector: []float32{0, 1}},
				{ID: "second", Vector: []float32{1, 0}},
				{ID: "third", Vector: []float32{1, 0}},
				{ID: "fourth", Vector: []float32{2, 0}},
			},
			query:   []float32{1, 0},
			k:       3,
			wantIDs: []string{"second", "third", "fourth"},
		},
		{
			name:      "zero k",
			records:   testRecords(),
			query:     []float32{1, 0, 0},
			k:         0,
			wantErrIs: apperr.ErrInvalidArgument,
		},
		{
			name:      "negative k on empty collection",
			query:     []float32{1},
			k:         -1,
			wantErrIs: apperr.ErrInvalidArgument,
		},
		{
			name:      "query dimension mismatch",
			records:   testRecords(),
			query:     []float32{1, 0},
			k:         1,
			wantErrIs: apperr.ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewMemoryIndex()
			if err := idx.Insert(ctx, tt.records); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}

			results, err := idx.Search(ctx, tt.query, tt.k)
			if tt.wantErrIs != nil {
				if !errors.Is(err, tt.wantErrIs) {
					t.Errorf("Search() error = %v, want %v", err, tt.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("Search() unexpected error: %v", err)
			}
			if results == nil {
				t.Fatal("Search() returned nil slice, want empty")
			}
			if len(results) != len(tt.wantIDs) {
				t.Fatalf("Search() returned %d results, want %d", len(results), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if results[i].ID != id {
					t.Errorf("results[%d].ID = %q, want %q", i, results[i].ID, id)
				}
			}
		})
	}
}

func TestMemoryIndex_InsertRejects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		batch     []Record
		wantErrIs error
	}{
		{
			name:      "dimension mismatch against collection",
			batch:     []Record{{ID: "c:0", Vector: []float32{1, 0}}},
			wantErrIs: apperr.ErrDimensionMismatch,
		},
		{
			name:      "dimension mismatch inside batch",
			batch:     []Record{{ID: "c:0", Vector: []float32{1, 0, 0}}, {ID: "c:1", Vector: []float32{1}}},
			wantErrIs: apperr.ErrDimensionMismatch,
		},
		{
			name:      "duplicate against collection",
			batch:     []Record{{ID: "c:0", Vector: []float32{1, 0, 0}}, {ID: "a:0", Vector: []float32{1, 0, 0}}},
			wantErrIs: apperr.ErrDuplicateID,
		},
		{
			name:      "duplicate inside batch",
			batch:     []Record{{ID: "c:0", Vector: []float32{1, 0, 0}}, {ID: "c:0", Vector: []float32{0, 1, 0}}},
			wantErrIs: apperr.ErrInvalidArgument,
		},
		{
			name:      "empty id",
			batch:     []Record{{ID: "", Vector: []float32{1, 0, 0}}},
			wantErrIs: apperr.ErrInvalidArgument,
		},
		{
			name:      "empty vector",
			batch:     []Record{{ID: "c:0"}},
			wantErrIs: apperr.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewMemoryIndex()
			if err := idx.Insert(ctx, testRecords()); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}

			err := idx.Insert(ctx, tt.batch)
			if !errors.Is(err, tt.wantErrIs) {
				t.Errorf("Insert() error = %v, want %v", err, tt.wantErrIs)
			}

			// Rejected batches leave the collection untouched
			if n, _ := idx.Count(ctx); n != 3 {
				t.Errorf("Count() = %d after rejected batch, want 3", n)
			}
		})
	}
}

func TestMemoryIndex_InsertCopiesVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	vec := []float32{1, 0}
	if err := idx.Insert(ctx, []Record{{ID: "a:0", Vector: vec}}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	vec[0], vec[1] = 0, 1

	results, err := idx.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if results[0].Score < 0.999 {
		t.Errorf("stored vector changed with caller slice, score = %v", results[0].Score)
	}
}

func TestMemoryIndex_InsertWithPersistFailure(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	persistErr := errors.New("disk full")
	err := idx.insertWith(ctx, testRecords(), func(int) error { return persistErr })
	if !errors.Is(err, persistErr) {
		t.Fatalf("insertWith() error = %v, want %v", err, persistErr)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("Count() = %d after failed persist, want 0", n)
	}
	if idx.Dimension() != 0 {
		t.Errorf("Dimension() = %d after failed persist, want 0", idx.Dimension())
	}
}

func TestMemoryIndex_ConcurrentInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	const writers = 8
	const perBatch = 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]Record, perBatch)
			for i := range batch {
				batch[i] = Record{ID: fmt.Sprintf("doc%d:%d", w, i), Vector: []float32{float32(w + 1), float32(i + 1)}}
			}
			if err := idx.Insert(ctx, batch); err != nil {
				t.Errorf("Insert() error = %v", err)
			}
		}(w)
	}

	// Readers only ever see whole batches
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				results, err := idx.Search(ctx, []float32{1, 1}, 1000)
				if err != nil {
					if errors.Is(err, apperr.ErrDimensionMismatch) {
						continue
					}
					t.Errorf("Search() error = %v", err)
					return
				}
				if len(results)%perBatch != 0 {
					t.Errorf("Search() saw %d results, not a whole number of batches", len(results))
					return
				}
			}
		}()
	}
	wg.Wait()

	if n, _ := idx.Count(ctx); n != writers*perBatch {
		t.Errorf("Count() = %d, want %d", n, writers*perBatch)
	}
}

func TestMemoryIndex_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := NewMemoryIndex()
	if err := idx.Insert(ctx, testRecords()); !errors.Is(err, context.Canceled) {
		t.Errorf("Insert() error = %v, want context.Canceled", err)
	}
	if _, err := idx.Search(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Search() error = %v, want context.Canceled", err)
	}
}

func TestMemoryIndex_Lookup(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	if _, ok, err := idx.Lookup(ctx, "a:0"); err != nil || ok {
		t.Fatalf("Lookup() on empty index = ok %v, err %v", ok, err)
	}
	if err := idx.Insert(ctx, testRecords()); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, ok, err := idx.Lookup(ctx, "b:0")
	if err != nil || !ok {
		t.Fatalf("Lookup() = ok %v, err %v", ok, err)
	}
	want := Result{ID: "b:0", SourceID: "b", Index: 0, Text: "mostly east"}
	if got != want {
		t.Errorf("Lookup() = %+v, want %+v", got, want)
	}
	if _, ok, _ := idx.Lookup(ctx, "c:0"); ok {
		t.Error("Lookup() found a record that was never inserted")
	}
}

func TestMemoryIndex_SnapshotsShareStorage(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	const inserts = 200
	var first *snapshot
	arrays := map[*Record]struct{}{}
	for i := 0; i < inserts; i++ {
		rec := Record{ID: fmt.Sprintf("doc%d:0", i), Vector: []float32{1, float32(i)}, Text: fmt.Sprint(i)}
		if err := idx.Insert(ctx, []Record{rec}); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
		s := idx.snap.Load()
		if first == nil {
			first = s
		}
		arrays[&s.records[0]] = struct{}{}
	}

	// Appends grow the shared array geometrically instead of copying it on every insert
	if len(arrays) > 20 {
		t.Errorf("%d inserts used %d backing arrays", inserts, len(arrays))
	}
	if len(first.records) != 1 || first.records[0].Text != "0" {
		t.Errorf("first snapshot changed: %+v", first.records)
	}
	if n, _ := idx.Count(ctx); n != inserts {
		t.Errorf("Count() = %d, want %d", n, inserts)
	}
}
