package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// RecordRepo persists collection records. Rows are append-only.
type RecordRepo struct {
	db *sql.DB
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// GetCollection gets a collection by name. Returns ErrNotFound if it has no records yet.
func (r *RecordRepo) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var c Collection
	var createdAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT name, dimension, created_at FROM collections WHERE name = ?",
		name,
	).Scan(&c.Name, &c.Dimension, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	return &c, nil
}

// InsertBatch appends rows to a collection in one transaction, creating the collection
// with the given dimension on first use. Seq values are assigned here and written back
// into rows. Either every row is stored or none is.
func (r *RecordRepo) InsertBatch(ctx context.Context, collection string, dimension int, rows []RecordRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, ?)",
		collection, dimension,
	); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx,
		"SELECT dimension FROM collections WHERE name = ?", collection,
	).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read collection dimension: %w", err)
	}
	if stored != dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, batch has %d", ErrDimensionConflict, collection, stored, dimension)
	}

	var nextSeq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq) + 1, 0) FROM records WHERE collection = ?", collection,
	).Scan(&nextSeq); err != nil {
		return fmt.Errorf("failed to read next sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO records (collection, seq, id, source_id, chunk_index, text, vector) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	seqs := make([]int64, len(rows))
	for i, row := range rows {
		seqs[i] = nextSeq + int64(i)
		if _, err := stmt.ExecContext(ctx,
			collection, seqs[i], row.ID, row.SourceID, row.ChunkIndex, row.Text, EncodeVector(row.Vector),
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	for i := range rows {
		rows[i].Seq = seqs[i]
	}
	return nil
}

// List returns all records of a collection in insertion order.
func (r *RecordRepo) List(ctx context.Context, collection string) ([]RecordRow, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT seq, id, source_id, chunk_index, text, vector FROM records WHERE collection = ? ORDER BY seq",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []RecordRow
	for rows.Next() {
		var rec RecordRow
		var blob []byte
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.SourceID, &rec.ChunkIndex, &rec.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Vector, err = DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Count returns the number of records in a collection.
func (r *RecordRepo) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE collection = ?", collection,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// EncodeVector serializes a vector as little-endian float32 bits.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
