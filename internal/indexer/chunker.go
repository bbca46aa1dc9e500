package indexer

import (
	"fmt"

	"reportrag/internal/apperr"
)

const (
	DefaultChunkSize    = 1000 // Max runes per chunk
	DefaultChunkOverlap = 200  // Runes shared by consecutive chunks
)

// separatorLevels lists breakpoints from most to least preferred:
// paragraph, line, sentence, word. A hard cut is the fallback.
var separatorLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// Chunker splits text into overlapping chunks of at most MaxSize runes.
type Chunker struct {
	MaxSize int
	Overlap int
}

// NewChunker creates a chunker after validating 0 <= overlap < maxSize.
func NewChunker(maxSize, overlap int) (*Chunker, error) {
	c := &Chunker{MaxSize: maxSize, Overlap: overlap}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chunker) validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: chunk size must be greater than 0, got %d", apperr.ErrInvalidArgument, c.MaxSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", apperr.ErrInvalidArgument, c.MaxSize, c.Overlap)
	}
	return nil
}

// Chunk splits text into chunks tagged with sourceID and their sequence index.
//
// Each cut is placed at the largest breakpoint within MaxSize runes of the cursor,
// preferring paragraph, then line, sentence and word boundaries; the separator stays
// with the preceding chunk. Breakpoints inside the first Overlap runes are ignored so
// the cursor always moves forward. The next chunk starts Overlap runes before the cut.
func (c *Chunker) Chunk(sourceID, text string) ([]Chunk, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	start := 0
	for {
		if len(runes)-start <= c.MaxSize {
			chunks = append(chunks, newChunk(sourceID, len(chunks), runes, start, len(runes)))
			break
		}

		end := c.breakpoint(runes, start)
		chunks = append(chunks, newChunk(sourceID, len(chunks), runes, start, end))
		start = end - c.Overlap
	}

	return chunks, nil
}

// breakpoint returns the cut position for the chunk starting at start.
// The result is always in (start+Overlap, start+MaxSize].
func (c *Chunker) breakpoint(runes []rune, start int) int {
	lo := start + c.Overlap
	hi := start + c.MaxSize
	for _, level := range separatorLevels {
		best := -1
		for _, sep := range level {
			if cut := lastCut(runes, lo, hi, []rune(sep)); cut > best {
				best = cut
			}
		}
		if best != -1 {
			return best
		}
	}
	return hi
}

// lastCut finds the last occurrence of sep whose end lies in (lo, hi] and returns
// the position just after it, or -1.
func lastCut(runes []rune, lo, hi int, sep []rune) int {
	for cut := hi; cut > lo; cut-- {
		begin := cut - len(sep)
		if begin < 0 {
			break
		}
		if hasPrefixAt(runes, begin, sep) {
			return cut
		}
	}
	return -1
}

func hasPrefixAt(runes []rune, at int, sep []rune) bool {
	for i, r := range sep {
		if runes[at+i] != r {
			return false
		}
	}
	return true
}

func newChunk(sourceID string, index int, runes []rune, start, end int) Chunk {
	return Chunk{
		SourceID: sourceID,
		Index:    index,
		Text:     string(runes[start:end]),
		Start:    start,
		End:      end,
	}
}
