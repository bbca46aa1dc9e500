package indexer

// Chunk represents a chunk of text from a source document.
type Chunk struct {
	SourceID string // Document the chunk was cut from
	Index    int    // Sequence index within the document (starts at 0)
	Text     string // Chunk text content
	Start    int    // Rune offset of the first character in the chunked text
	End      int    // Rune offset one past the last character
}
