package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reportrag/internal/apperr"
)

// ErrUnsupportedFormat is returned by ForPath for file types without an extractor.
var ErrUnsupportedFormat = fmt.Errorf("%w: unsupported document format", apperr.ErrInvalidArgument)

// Extractor turns a raw document into plain text for chunking.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Options tunes the extractors returned by ForPath.
type Options struct {
	StripPDFHeadersFooters bool
}

// ForPath picks an extractor by file extension.
func ForPath(path string, opts Options) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return &PDFExtractor{StripHeadersFooters: opts.StripPDFHeadersFooters}, nil
	case ".md", ".markdown":
		return NewMarkdownExtractor(), nil
	case ".txt", ".text":
		return PlainTextExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Supported reports whether ForPath has an extractor for path.
func Supported(path string) bool {
	_, err := ForPath(path, Options{})
	return err == nil
}

// File reads path and extracts its text with the extractor chosen by ForPath.
func File(ctx context.Context, path string, opts Options) (string, error) {
	ex, err := ForPath(path, opts)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	text, err := ex.Extract(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", path, err)
	}
	return text, nil
}

// DocumentID derives a document id from a file path: the base name without extension.
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PlainTextExtractor returns the input unchanged, minus a UTF-8 byte order mark.
type PlainTextExtractor struct{}

// Extract implements Extractor.
func (PlainTextExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
