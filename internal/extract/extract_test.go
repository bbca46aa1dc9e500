package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reportrag/internal/apperr"
)

func TestForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "reports/annual_2024.pdf", want: "*extract.PDFExtractor"},
		{path: "REPORT.PDF", want: "*extract.PDFExtractor"},
		{path: "notes/readme.md", want: "*extract.MarkdownExtractor"},
		{path: "notes/readme.markdown", want: "*extract.MarkdownExtractor"},
		{path: "plain.txt", want: "extract.PlainTextExtractor"},
		{path: "image.png", wantErr: true},
		{path: "no_extension", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ex, err := ForPath(tt.path, Options{})
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("ForPath() error = %v, want ErrUnsupportedFormat", err)
				}
				if !errors.Is(err, apperr.ErrInvalidArgument) {
					t.Error("ErrUnsupportedFormat should match ErrInvalidArgument")
				}
				if Supported(tt.path) {
					t.Errorf("Supported(%q) = true", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForPath() unexpected error: %v", err)
			}
			if got := typeName(ex); got != tt.want {
				t.Errorf("ForPath() = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(ex Extractor) string {
	switch ex.(type) {
	case *PDFExtractor:
		return "*extract.PDFExtractor"
	case *MarkdownExtractor:
		return "*extract.MarkdownExtractor"
	case PlainTextExtractor:
		return "extract.PlainTextExtractor"
	default:
		return "unknown"
	}
}

func TestDocumentID(t *testing.T) {
	tests := map[string]string{
		"data/raw/Haycarb_2024.pdf": "Haycarb_2024",
		"notes.md":                  "notes",
		"/abs/path/archive.tar.gz":  "archive.tar",
		"noext":                     "noext",
	}
	for path, want := range tests {
		if got := DocumentID(path); got != want {
			t.Errorf("DocumentID(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestPlainTextExtractor(t *testing.T) {
	got, err := PlainTextExtractor{}.Extract(context.Background(), []byte("\ufeffhello\nworld"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "hello\nworld" {
		t.Errorf("Extract() = %q, want %q", got, "hello\nworld")
	}
}

func TestForPath_PDFOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want bool
	}{
		{name: "default keeps every line", opts: Options{}, want: false},
		{name: "strip headers and footers", opts: Options{StripPDFHeadersFooters: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := ForPath("annual.pdf", tt.opts)
			if err != nil {
				t.Fatalf("ForPath() error = %v", err)
			}
			pdfEx, ok := ex.(*PDFExtractor)
			if !ok {
				t.Fatalf("ForPath() = %T, want *PDFExtractor", ex)
			}
			if pdfEx.StripHeadersFooters != tt.want {
				t.Errorf("StripHeadersFooters = %v, want %v", pdfEx.StripHeadersFooters, tt.want)
			}
		})
	}
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(path, []byte("# Title\n\nBody text."), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := File(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if got != "Title\n\nBody text." {
		t.Errorf("File() = %q", got)
	}

	if _, err := File(context.Background(), filepath.Join(dir, "missing.txt"), Options{}); err == nil {
		t.Error("File() with missing file expected error")
	}
	if _, err := File(context.Background(), filepath.Join(dir, "doc.docx"), Options{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("File() with unsupported format error = %v", err)
	}
}
