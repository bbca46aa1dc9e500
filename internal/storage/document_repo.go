package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks reportrag/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"fmt"
)

// DocumentStore defines the interface for the ingested-document registry.
type DocumentStore interface {
	// Get gets a document by collection and id. Returns nil and ErrNotFound if not found.
	Get(ctx context.Context, collection, id string) (*DocumentRecord, error)
	// Upsert registers an ingested document, replacing an earlier entry with the same id.
	Upsert(ctx context.Context, doc *DocumentRecord) error
	// List returns the documents of a collection ordered by ingestion time.
	List(ctx context.Context, collection string) ([]*DocumentRecord, error)
}

// DocumentRepo provides methods for document registry operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Get gets a document by collection and id. Returns nil and ErrNotFound if not found.
func (r *DocumentRepo) Get(ctx context.Context, collection, id string) (*DocumentRecord, error) {
	var doc DocumentRecord
	var ingestedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT collection, id, source_path, content_hash, chunk_count, ingested_at FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&doc.Collection, &doc.ID, &doc.SourcePath, &doc.ContentHash, &doc.ChunkCount, &ingestedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	if ingestedAt.Valid {
		doc.IngestedAt = ingestedAt.Time
	}
	return &doc, nil
}

// Upsert registers an ingested document, replacing an earlier entry with the same id.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *DocumentRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, source_path, content_hash, chunk_count) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			source_path = excluded.source_path,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			ingested_at = CURRENT_TIMESTAMP`,
		doc.Collection, doc.ID, doc.SourcePath, doc.ContentHash, doc.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// List returns the documents of a collection ordered by ingestion time.
// Returns an empty slice if none exist (not an error).
func (r *DocumentRepo) List(ctx context.Context, collection string) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT collection, id, source_path, content_hash, chunk_count, ingested_at FROM documents WHERE collection = ? ORDER BY ingested_at, rowid",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	docs := []*DocumentRecord{}
	for rows.Next() {
		var doc DocumentRecord
		var ingestedAt sql.NullTime
		if err := rows.Scan(&doc.Collection, &doc.ID, &doc.SourcePath, &doc.ContentHash, &doc.ChunkCount, &ingestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if ingestedAt.Valid {
			doc.IngestedAt = ingestedAt.Time
		}
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}
