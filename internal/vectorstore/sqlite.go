package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
	"reportrag/internal/storage"
)

const (
	sqliteFileName = "index.db"
	lockFileName   = "LOCK"
)

// SQLiteIndex is a disk-backed VectorIndex stored under <dir>/<collection>/index.db.
// Records are cached in a MemoryIndex at open; inserts commit to SQLite before they
// become visible to searches.
type SQLiteIndex struct {
	collection string
	db         *sql.DB
	repo       *storage.RecordRepo
	mem        *MemoryIndex
	lock       *writerLock
}

// OpenSQLiteIndex opens (or creates) the named collection below dir.
// Only one open handle per collection is allowed; a second one fails with ErrStoreUnavailable.
func OpenSQLiteIndex(ctx context.Context, dir, collection string) (*SQLiteIndex, error) {
	logger := contextutil.LoggerFromContext(ctx)

	collDir := filepath.Join(dir, collection)
	if err := os.MkdirAll(collDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create collection directory: %v", apperr.ErrStoreUnavailable, err)
	}

	lock, err := acquireWriterLock(filepath.Join(collDir, lockFileName))
	if err != nil {
		return nil, err
	}

	db, err := storage.New(filepath.Join(collDir, sqliteFileName))
	if err != nil {
		_ = lock.release()
		return nil, fmt.Errorf("%w: failed to open database: %v", apperr.ErrStoreUnavailable, err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		_ = lock.release()
		return nil, fmt.Errorf("%w: failed to migrate database: %v", apperr.ErrStoreUnavailable, err)
	}

	idx := &SQLiteIndex{
		collection: collection,
		db:         db,
		repo:       storage.NewRecordRepo(db),
		mem:        NewMemoryIndex(),
		lock:       lock,
	}
	if err := idx.loadCache(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "opened collection", "collection", collection, "path", collDir, "records", len(idx.mem.snap.Load().records), "dimension", idx.mem.Dimension())
	return idx, nil
}

func (s *SQLiteIndex) loadCache(ctx context.Context) error {
	dimension := 0
	coll, err := s.repo.GetCollection(ctx, s.collection)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	default:
		dimension = coll.Dimension
	}

	rows, err := s.repo.List(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		if len(row.Vector) != dimension {
			return fmt.Errorf("%w: stored record %s has dimension %d, collection has %d", apperr.ErrStoreUnavailable, row.ID, len(row.Vector), dimension)
		}
		records = append(records, Record{
			ID:       row.ID,
			SourceID: row.SourceID,
			Index:    row.ChunkIndex,
			Vector:   row.Vector,
			Text:     row.Text,
		})
	}
	s.mem.load(dimension, records)
	return nil
}

// Insert validates the batch, commits it in one transaction and then publishes it.
func (s *SQLiteIndex) Insert(ctx context.Context, records []Record) error {
	return s.mem.insertWith(ctx, records, func(dimension int) error {
		rows := make([]storage.RecordRow, len(records))
		for i, r := range records {
			rows[i] = storage.RecordRow{
				ID:         r.ID,
				SourceID:   r.SourceID,
				ChunkIndex: r.Index,
				Text:       r.Text,
				Vector:     r.Vector,
			}
		}
		if err := s.repo.InsertBatch(ctx, s.collection, dimension, rows); err != nil {
			if errors.Is(err, storage.ErrDimensionConflict) {
				return fmt.Errorf("%w: %v", apperr.ErrDimensionMismatch, err)
			}
			return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
		}
		return nil
	})
}

// Search returns at most k records ranked by cosine similarity.
func (s *SQLiteIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	return s.mem.Search(ctx, query, k)
}

// Lookup returns the record stored under id.
func (s *SQLiteIndex) Lookup(ctx context.Context, id string) (Result, bool, error) {
	return s.mem.Lookup(ctx, id)
}

// Count returns the number of committed records, read from the database.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return n, nil
}

// Dimension returns the established dimension, 0 while empty.
func (s *SQLiteIndex) Dimension() int {
	return s.mem.Dimension()
}

// Close closes the database and releases the collection lock.
func (s *SQLiteIndex) Close() error {
	var errs []error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		s.db = nil
	}
	if err := s.lock.release(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release lock: %w", err))
	}
	return errors.Join(errs...)
}
