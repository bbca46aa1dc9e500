package storage

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestRecordRepo_GetCollection_NotFound(t *testing.T) {
	repo := NewRecordRepo(newTestDB(t))

	_, err := repo.GetCollection(context.Background(), "docs")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCollection() error = %v, want ErrNotFound", err)
	}
}

func TestRecordRepo_InsertBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepo(newTestDB(t))

	first := []RecordRow{
		{ID: "a:0", SourceID: "a", ChunkIndex: 0, Text: "alpha", Vector: []float32{1, 0}},
		{ID: "a:1", SourceID: "a", ChunkIndex: 1, Text: "beta", Vector: []float32{0, 1}},
	}
	if err := repo.InsertBatch(ctx, "docs", 2, first); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if first[0].Seq != 0 || first[1].Seq != 1 {
		t.Errorf("seqs = %d, %d, want 0, 1", first[0].Seq, first[1].Seq)
	}

	second := []RecordRow{
		{ID: "b:0", SourceID: "b", ChunkIndex: 0, Text: "gamma", Vector: []float32{0.5, -0.5}},
	}
	if err := repo.InsertBatch(ctx, "docs", 2, second); err != nil {
		t.Fatalf("InsertBatch() second error = %v", err)
	}
	if second[0].Seq != 2 {
		t.Errorf("seq = %d, want 2", second[0].Seq)
	}

	coll, err := repo.GetCollection(ctx, "docs")
	if err != nil {
		t.Fatalf("GetCollection() error = %v", err)
	}
	if coll.Dimension != 2 {
		t.Errorf("Dimension = %d, want 2", coll.Dimension)
	}

	rows, err := repo.List(ctx, "docs")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	wantIDs := []string{"a:0", "a:1", "b:0"}
	if len(rows) != len(wantIDs) {
		t.Fatalf("List() returned %d rows, want %d", len(rows), len(wantIDs))
	}
	for i, id := range wantIDs {
		if rows[i].ID != id {
			t.Errorf("rows[%d].ID = %q, want %q", i, rows[i].ID, id)
		}
	}
	if rows[2].Vector[0] != 0.5 || rows[2].Vector[1] != -0.5 {
		t.Errorf("rows[2].Vector = %v, want [0.5 -0.5]", rows[2].Vector)
	}
	if rows[1].Text != "beta" || rows[1].ChunkIndex != 1 || rows[1].SourceID != "a" {
		t.Errorf("rows[1] = %+v", rows[1])
	}

	n, err := repo.Count(ctx, "docs")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestRecordRepo_InsertBatch_DimensionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepo(newTestDB(t))

	if err := repo.InsertBatch(ctx, "docs", 2, []RecordRow{{ID: "a:0", SourceID: "a", Vector: []float32{1, 0}}}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	err := repo.InsertBatch(ctx, "docs", 3, []RecordRow{{ID: "b:0", SourceID: "b", Vector: []float32{1, 0, 0}}})
	if !errors.Is(err, ErrDimensionConflict) {
		t.Errorf("InsertBatch() error = %v, want ErrDimensionConflict", err)
	}
}

func TestRecordRepo_InsertBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepo(newTestDB(t))

	if err := repo.InsertBatch(ctx, "docs", 1, []RecordRow{{ID: "a:0", SourceID: "a", Vector: []float32{1}}}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	// Second row collides with an existing id, so the whole batch must roll back
	batch := []RecordRow{
		{ID: "b:0", SourceID: "b", Vector: []float32{1}},
		{ID: "a:0", SourceID: "a", Vector: []float32{1}},
	}
	if err := repo.InsertBatch(ctx, "docs", 1, batch); err == nil {
		t.Fatal("InsertBatch() with duplicate id expected error, got nil")
	}

	n, err := repo.Count(ctx, "docs")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d after failed batch, want 1", n)
	}
	if batch[0].Seq != 0 {
		t.Errorf("failed batch should not assign seqs, got %d", batch[0].Seq)
	}
}

func TestRecordRepo_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepo(newTestDB(t))

	if err := repo.InsertBatch(ctx, "one", 1, []RecordRow{{ID: "a:0", SourceID: "a", Vector: []float32{1}}}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if err := repo.InsertBatch(ctx, "two", 2, []RecordRow{{ID: "a:0", SourceID: "a", Vector: []float32{1, 1}}}); err != nil {
		t.Fatalf("InsertBatch() into second collection error = %v", err)
	}

	rows, err := repo.List(ctx, "two")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Seq != 0 {
		t.Errorf("List(two) = %+v, want one row with seq 0", rows)
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{0, 1, -1, 0.25, math.MaxFloat32, float32(math.Inf(-1))}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("DecodeVector() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeVector() with truncated blob expected error")
	}
}
