package embedding

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks reportrag/internal/embedding Embedder

import (
	"context"
	"fmt"
	"math"
	"time"

	"reportrag/internal/apperr"
)

// DefaultModel is the sentence model the pipeline is tuned for.
const DefaultModel = "all-MiniLM-L6-v2"

// Embedder maps texts to fixed-dimension vectors.
// Implementations must be deterministic for a fixed model and batch invariant:
// the vector for a text never depends on the other texts in the same call.
type Embedder interface {
	// Embed returns one vector per text, in input order. Empty input yields an empty result.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName identifies the model producing the vectors.
	ModelName() string
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

const (
	BackendOpenAI = "openai"
	BackendHash   = "hash"
)

// Options selects and configures an Embedder.
type Options struct {
	Backend   string
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int // hash backend only
	BatchSize int
	CacheSize int
	CacheTTL  time.Duration
}

// New builds the embedder described by opts, wrapped in a cache when configured.
func New(opts Options) (Embedder, error) {
	var e Embedder
	switch opts.Backend {
	case BackendOpenAI, "":
		model := opts.Model
		if model == "" {
			model = DefaultModel
		}
		e = NewOpenAIEmbedder(opts.BaseURL, opts.APIKey, model, opts.BatchSize)
	case BackendHash:
		h, err := NewHashEmbedder(opts.Dimension)
		if err != nil {
			return nil, err
		}
		e = h
	default:
		return nil, fmt.Errorf("%w: unknown embedding backend %q", apperr.ErrModelUnavailable, opts.Backend)
	}
	return WithCache(e, opts.CacheSize, opts.CacheTTL), nil
}
