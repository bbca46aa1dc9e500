package vectorstore

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors of equal length.
// Returns 0 when either vector has zero norm.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// rankTopK sorts results by score descending and truncates to k.
// Input must be in insertion order; the stable sort keeps earlier records ahead on ties.
func rankTopK(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}
