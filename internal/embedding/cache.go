package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
)

// CachedEmbedder keeps recently computed vectors in an expiring LRU and only
// forwards cache misses to the wrapped embedder.
type CachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

// WithCache wraps e in an LRU of the given size and TTL. It returns e unchanged
// when size or ttl is not positive.
func WithCache(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &CachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// ModelName returns the wrapped embedder's model name.
func (c *CachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

// Embed serves cached vectors and embeds the misses in a single call, keeping input order.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if cached, ok := c.cache.Get(text); ok {
			result[i] = cloneVector(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "embedding cache lookup",
		"model", c.next.ModelName(), "hits", len(texts)-len(missTexts), "misses", len(missTexts))

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", apperr.ErrModelUnavailable, len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		result[missIdx[j]] = vec
		c.cache.Add(missTexts[j], cloneVector(vec))
	}
	return result, nil
}

func cloneVector(v []float32) []float32 {
	clone := make([]float32, len(v))
	copy(clone, v)
	return clone
}
