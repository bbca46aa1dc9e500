package vectorstore

import (
	"context"
	"fmt"
	"regexp"

	"reportrag/internal/apperr"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Options selects and configures a VectorIndex implementation.
type Options struct {
	Backend    string
	Dir        string // Parent directory of collection directories (sqlite)
	Collection string
	QdrantURL  string
}

// Open constructs the VectorIndex selected by opts.Backend.
func Open(ctx context.Context, opts Options) (VectorIndex, error) {
	if err := ValidateCollectionName(opts.Collection); err != nil {
		return nil, err
	}

	switch opts.Backend {
	case BackendMemory:
		return NewMemoryIndex(), nil
	case BackendSQLite, "":
		if opts.Dir == "" {
			return nil, &apperr.ValidationError{Field: "dir", Message: "vector store directory is required"}
		}
		return OpenSQLiteIndex(ctx, opts.Dir, opts.Collection)
	case BackendQdrant:
		if opts.QdrantURL == "" {
			return nil, &apperr.ValidationError{Field: "qdrant_url", Message: "Qdrant URL is required"}
		}
		return NewQdrantIndex(ctx, opts.QdrantURL, opts.Collection)
	default:
		return nil, &apperr.ValidationError{Field: "backend", Message: fmt.Sprintf("unknown vector backend %q", opts.Backend)}
	}
}

// ValidateCollectionName rejects names that are unsafe as a directory or collection name.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) || name == "." || name == ".." {
		return &apperr.ValidationError{Field: "collection", Message: fmt.Sprintf("invalid collection name %q", name)}
	}
	return nil
}
