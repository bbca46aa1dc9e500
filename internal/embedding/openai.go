package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
)

const defaultBatchSize = 32

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint (llama.cpp, TEI, Ollama
// and similar servers hosting a sentence model).
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
}

// NewOpenAIEmbedder creates an embedder for baseURL (e.g. "http://localhost:8081").
// The "/v1" API prefix is appended when missing. batchSize <= 0 selects the default.
func NewOpenAIEmbedder(baseURL, apiKey, model string, batchSize int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = apiBaseURL(baseURL)
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		batchSize: batchSize,
	}
}

func apiBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}

// ModelName returns the configured model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Embed sends texts in batches and returns L2-normalized vectors in input order.
// Every failure is reported as apperr.ErrModelUnavailable.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	result := make([][]float32, 0, len(texts))
	dimension := 0
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			logger.ErrorContext(ctx, "failed to embed batch", "model", e.model, "offset", start, "size", end-start, "error", err)
			return nil, fmt.Errorf("%w: %s: %w", apperr.ErrModelUnavailable, e.model, err)
		}
		for i, vec := range batch {
			if dimension == 0 {
				dimension = len(vec)
			}
			if len(vec) == 0 || len(vec) != dimension {
				return nil, fmt.Errorf("%w: embedding %d has size %d, expected %d", apperr.ErrModelUnavailable, start+i, len(vec), dimension)
			}
		}
		result = append(result, batch...)
	}

	logger.DebugContext(ctx, "embedded texts", "model", e.model, "count", len(texts), "dimension", dimension)
	return result, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Servers may return data out of order; Index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) || vectors[data.Index] != nil {
			return nil, fmt.Errorf("invalid embedding index %d", data.Index)
		}
		vec := make([]float32, len(data.Embedding))
		copy(vec, data.Embedding)
		Normalize(vec)
		vectors[data.Index] = vec
	}
	return vectors, nil
}
