package embedding

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"reportrag/internal/apperr"
)

func TestNewHashEmbedder(t *testing.T) {
	tests := []struct {
		name      string
		dimension int
		wantErr   bool
	}{
		{name: "minilm sized", dimension: 384},
		{name: "tiny", dimension: 1},
		{name: "zero", dimension: 0, wantErr: true},
		{name: "negative", dimension: -4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewHashEmbedder(tt.dimension)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrModelUnavailable) {
					t.Errorf("NewHashEmbedder() error = %v, want ErrModelUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewHashEmbedder() unexpected error: %v", err)
			}
			if e.Dimension() != tt.dimension {
				t.Errorf("Dimension() = %d, want %d", e.Dimension(), tt.dimension)
			}
		})
	}
}

func TestHashEmbedder_Embed(t *testing.T) {
	e, err := NewHashEmbedder(64)
	if err != nil {
		t.Fatalf("NewHashEmbedder() error = %v", err)
	}
	ctx := context.Background()

	empty, err := e.Embed(ctx, nil)
	if err != nil {
		t.Fatalf("Embed(nil) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Embed(nil) returned %d vectors, want 0", len(empty))
	}

	vectors, err := e.Embed(ctx, []string{"Annual revenue increased", "", "annual REVENUE increased!"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("Embed() returned %d vectors, want 3", len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 64 {
			t.Errorf("vector %d has length %d, want 64", i, len(vec))
		}
	}
	if norm := l2(vectors[0]); math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector norm = %v, want 1", norm)
	}
	if norm := l2(vectors[1]); norm != 0 {
		t.Errorf("empty text norm = %v, want 0", norm)
	}
	if !reflect.DeepEqual(vectors[0], vectors[2]) {
		t.Error("case and punctuation should not change the vector")
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	a, _ := NewHashEmbedder(128)
	b, _ := NewHashEmbedder(128)
	ctx := context.Background()

	va, err := a.Embed(ctx, []string{"carbon products"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	vb, err := b.Embed(ctx, []string{"carbon products"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if !reflect.DeepEqual(va, vb) {
		t.Error("identical text should yield identical vectors across instances")
	}
}

func TestHashEmbedder_BatchInvariance(t *testing.T) {
	e, _ := NewHashEmbedder(384)
	ctx := context.Background()

	pairs := [][2]string{
		{"net profit after tax", "board of directors"},
		{"", "something"},
		{"same", "same"},
	}
	for _, pair := range pairs {
		batch, err := e.Embed(ctx, []string{pair[0], pair[1]})
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		single, err := e.Embed(ctx, []string{pair[0]})
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if !reflect.DeepEqual(batch[0], single[0]) {
			t.Errorf("Embed([%q, %q])[0] != Embed([%q])[0]", pair[0], pair[1], pair[0])
		}
	}
}

func TestHashEmbedder_Similarity(t *testing.T) {
	e, _ := NewHashEmbedder(384)
	vectors, err := e.Embed(context.Background(), []string{
		"activated carbon production capacity",
		"carbon production capacity expanded",
		"shareholder meeting held in colombo",
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	related := dot(vectors[0], vectors[1])
	unrelated := dot(vectors[0], vectors[2])
	if related <= unrelated {
		t.Errorf("related similarity %v should exceed unrelated %v", related, unrelated)
	}
}

func TestHashEmbedder_ContextCancelled(t *testing.T) {
	e, _ := NewHashEmbedder(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, []string{"text"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Embed() error = %v, want context.Canceled", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantErr  bool
		wantName string
	}{
		{name: "hash", opts: Options{Backend: BackendHash, Dimension: 16}, wantName: "hash-16"},
		{name: "hash cached", opts: Options{Backend: BackendHash, Dimension: 16, CacheSize: 8, CacheTTL: 1e9}, wantName: "hash-16"},
		{name: "openai default model", opts: Options{Backend: BackendOpenAI, BaseURL: "http://localhost:8081"}, wantName: DefaultModel},
		{name: "hash bad dimension", opts: Options{Backend: BackendHash}, wantErr: true},
		{name: "unknown", opts: Options{Backend: "onnx"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.opts)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrModelUnavailable) {
					t.Errorf("New() error = %v, want ErrModelUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if e.ModelName() != tt.wantName {
				t.Errorf("ModelName() = %q, want %q", e.ModelName(), tt.wantName)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize() = %v, want [0.6 0.8]", v)
	}

	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Normalize() changed zero vector: %v", zero)
	}
}

func l2(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
