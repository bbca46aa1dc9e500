package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "v2.0"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// IngestStats summarizes an IngestDir run.
type IngestStats struct {
	// DocsProcessed is the number of files ingested or confirmed unchanged.
	DocsProcessed int `json:"docs_processed"`
	// DocsUnchanged is the number of files skipped because identical content was already stored.
	DocsUnchanged int `json:"docs_unchanged"`
	// DocsFailed is the number of files that could not be ingested.
	DocsFailed int `json:"docs_failed"`
	// DocsWith0Chunks is the number of newly ingested documents that produced no chunks.
	DocsWith0Chunks int `json:"docs_with_0_chunks"`
	// ChunksStored is the number of chunks embedded and stored in this run.
	ChunksStored int `json:"chunks_stored"`
	// ChunkTokenStats contains statistics about estimated token counts per stored chunk.
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	// IndexVersion is a hash identifying the index build (chunker + embedding model + params).
	IndexVersion string `json:"index_version"`

	tokenCounts []int
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	// Min is the minimum token count across all chunks.
	Min int `json:"min"`
	// Max is the maximum token count across all chunks.
	Max int `json:"max"`
	// Mean is the mean token count across all chunks.
	Mean float64 `json:"mean"`
	// P95 is the 95th percentile token count.
	P95 int `json:"p95"`
}

func newIngestStats(indexVersion string) *IngestStats {
	return &IngestStats{IndexVersion: indexVersion}
}

// record adds one successful ingest to the totals.
func (s *IngestStats) record(res ingestResult) {
	s.DocsProcessed++
	if res.unchanged {
		s.DocsUnchanged++
		return
	}
	if res.count == 0 {
		s.DocsWith0Chunks++
	}
	s.ChunksStored += res.count
	for _, c := range res.chunks {
		s.tokenCounts = append(s.tokenCounts, estimateTokens(c.Text))
	}
}

// finish computes the token statistics from the recorded chunks.
func (s *IngestStats) finish() {
	s.ChunkTokenStats = computeTokenStats(s.tokenCounts)
}

// estimateTokens approximates a token count from the rune count (~4 chars per token).
func estimateTokens(text string) int {
	runeCount := utf8.RuneCountInString(text)
	tokenCount := int(math.Round(float64(runeCount) / TokensPerRune))
	if tokenCount < 1 {
		tokenCount = 1 // Minimum 1 token
	}
	return tokenCount
}

// IndexVersion hashes the chunker version, embedding model and chunking parameters.
// Collections built with different versions should not be mixed.
func (p *Pipeline) IndexVersion() string {
	input := fmt.Sprintf("%s|%s|maxSize=%d|overlap=%d",
		ChunkerVersion, p.embedder.ModelName(), p.chunker.MaxSize, p.chunker.Overlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16] // 16 hex chars = 64 bits
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	// Sort for percentile calculation
	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	// Compute mean
	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	// Compute p95
	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
