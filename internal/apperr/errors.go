package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned for malformed chunking parameters, non-positive k,
	// empty identifiers and similar caller mistakes.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch is returned when a vector length disagrees with the
	// dimension established by the collection.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrModelUnavailable is returned when the embedding model cannot be loaded or
	// fails during inference.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrStoreUnavailable is returned when the persistent index cannot be opened or written.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateID is returned when a record or document id already exists.
	// It matches ErrInvalidArgument with errors.Is.
	ErrDuplicateID = fmt.Errorf("%w: duplicate id", ErrInvalidArgument)
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap lets validation errors match ErrInvalidArgument.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// OpError records the pipeline operation that failed together with the document id
// or query it was working on, so callers can log and retry manually.
type OpError struct {
	Op         string
	DocumentID string
	Query      string
	Err        error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.DocumentID != "" {
		fmt.Fprintf(&b, " document=%q", e.DocumentID)
	}
	if e.Query != "" {
		fmt.Fprintf(&b, " query=%q", e.Query)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Kind returns the taxonomy sentinel err belongs to, or nil if it matches none.
func Kind(err error) error {
	for _, kind := range []error{ErrInvalidArgument, ErrDimensionMismatch, ErrModelUnavailable, ErrStoreUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
