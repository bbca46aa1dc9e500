package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_index.go -package=mocks reportrag/internal/vectorstore VectorIndex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Record is an embedded chunk owned by the index once inserted.
type Record struct {
	ID       string
	SourceID string
	Index    int
	Vector   []float32
	Text     string
}

// RecordID builds the record id for a chunk: "<sourceID>:<index>".
func RecordID(sourceID string, index int) string {
	return sourceID + ":" + strconv.Itoa(index)
}

// ParseRecordID recovers the source document id and sequence index from a record id.
func ParseRecordID(id string) (sourceID string, index int, err error) {
	sep := strings.LastIndex(id, ":")
	if sep <= 0 || sep == len(id)-1 {
		return "", 0, fmt.Errorf("malformed record id %q", id)
	}
	index, err = strconv.Atoi(id[sep+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("malformed record id %q", id)
	}
	return id[:sep], index, nil
}

// Result is a ranked search hit.
type Result struct {
	ID       string
	SourceID string
	Index    int
	Text     string
	Score    float32
}

// VectorIndex defines the interface for a named collection of records.
// All vectors in a collection share one dimension and all record IDs are unique.
type VectorIndex interface {
	// Insert stores records atomically: either the whole batch is visible or none of it.
	// The first successful insert establishes the collection dimension.
	Insert(ctx context.Context, records []Record) error

	// Search returns at most k records ranked by cosine similarity, descending.
	// Ties are broken by insertion order, earlier first.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// Lookup returns the record stored under id, without a score. ok is false if no
	// such record exists.
	Lookup(ctx context.Context, id string) (result Result, ok bool, err error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)

	// Dimension returns the established vector dimension, or 0 for an empty collection.
	Dimension() int

	// Close releases the underlying resources.
	Close() error
}
