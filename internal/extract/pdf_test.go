package extract

import (
	"context"
	"testing"
)

func TestPDFExtractor_EmptyInput(t *testing.T) {
	got, err := (&PDFExtractor{}).Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "" {
		t.Errorf("Extract() = %q, want empty", got)
	}
}

func TestPDFExtractor_InvalidInput(t *testing.T) {
	_, err := (&PDFExtractor{}).Extract(context.Background(), []byte("this is not a pdf"))
	if err == nil {
		t.Error("Extract() with non-PDF data expected error")
	}
}

func TestStripHeaderFooter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "long page", in: "Header\nbody one\nbody two\nPage 3\n", want: "body one\nbody two"},
		{name: "two lines kept", in: "only\ntwo", want: "only\ntwo"},
		{name: "single line kept", in: "single", want: "single"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHeaderFooter(tt.in); got != tt.want {
				t.Errorf("stripHeaderFooter() = %q, want %q", got, tt.want)
			}
		})
	}
}
