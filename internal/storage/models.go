package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrDimensionConflict is returned when a batch disagrees with the stored collection dimension.
	ErrDimensionConflict = errors.New("collection dimension conflict")
)

// Collection represents a named set of records sharing one vector dimension.
type Collection struct {
	Name      string
	Dimension int
	CreatedAt time.Time
}

// RecordRow is one embedded chunk as persisted in the records table.
type RecordRow struct {
	Seq        int64     // Insertion order within the collection (starts at 0)
	ID         string    // "<source_id>:<chunk_index>"
	SourceID   string    // Document the chunk came from
	ChunkIndex int       // Sequence index within the document
	Text       string    // Chunk text content
	Vector     []float32 // Embedding, stored as little-endian float32 bits
}

// DocumentRecord tracks a document that has been ingested into a collection.
type DocumentRecord struct {
	Collection  string
	ID          string
	SourcePath  string // Empty for documents ingested from raw text
	ContentHash string // SHA256 hex string of the ingested text
	ChunkCount  int
	IngestedAt  time.Time
}
