package rag

// AskRequest represents a RAG query request.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question"`
	// K is the number of chunks to retrieve. 0 selects the retriever default.
	K int `json:"k,omitempty"`
	// Debug enables debug mode, returning the retrieved chunks and the prompt.
	Debug bool `json:"debug,omitempty"`
}

// Reference represents a chunk that was used in the answer.
type Reference struct {
	// DocumentID is the document the chunk came from.
	DocumentID string `json:"document_id"`
	// ChunkIndex is the chunk index within the document.
	ChunkIndex int `json:"chunk_index"`
	// Score is the cosine similarity between question and chunk.
	Score float32 `json:"score"`
}

// AskResponse represents the response from a RAG query.
type AskResponse struct {
	// Answer is the generated answer from the LLM.
	Answer string `json:"answer"`
	// References are the chunks that were used to generate the answer, best first.
	References []Reference `json:"references"`
	// Debug contains debug information when debug mode is enabled.
	Debug *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo contains detailed retrieval information for debugging and evaluation.
type DebugInfo struct {
	// RetrievedChunks contains all retrieved chunks with scores and ranks.
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	// Prompt is the exact prompt sent to the model.
	Prompt string `json:"prompt"`
	// Model is the model that produced the answer.
	Model string `json:"model"`
}

// RetrievedChunk represents a retrieved chunk with scoring information.
type RetrievedChunk struct {
	// ChunkID is the record identifier ("<document_id>:<chunk_index>").
	ChunkID string `json:"chunk_id"`
	// Score is the vector similarity score.
	Score float32 `json:"score"`
	// Text is the chunk text.
	Text string `json:"text"`
	// Rank is the rank of this chunk in the retrieval results (1-based).
	Rank int `json:"rank"`
}
