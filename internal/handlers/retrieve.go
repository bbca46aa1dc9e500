package handlers

import (
	"context"
	"net/http"

	"reportrag/internal/contextutil"
	"reportrag/internal/vectorstore"
)

// Searcher returns the k chunks most similar to query. It is implemented by *indexer.Pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.Result, error)
}

// RetrieveHandler handles HTTP requests for similarity search.
type RetrieveHandler struct {
	searcher Searcher
}

// NewRetrieveHandler creates a new RetrieveHandler.
func NewRetrieveHandler(searcher Searcher) *RetrieveHandler {
	return &RetrieveHandler{searcher: searcher}
}

// RetrieveRequest represents the HTTP request payload for retrieval.
// K == 0 selects the server default.
type RetrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// RetrievedChunk is one search hit.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// RetrieveResponse lists hits best first.
type RetrieveResponse struct {
	Results []RetrievedChunk `json:"results"`
}

// ServeHTTP embeds the query and returns the top k chunks.
func (h *RetrieveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RetrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	results, err := h.searcher.Search(ctx, req.Query, req.K)
	if err != nil {
		handleError(ctx, w, err, "Failed to retrieve chunks")
		return
	}

	resp := RetrieveResponse{Results: make([]RetrievedChunk, len(results))}
	for i, res := range results {
		resp.Results[i] = RetrievedChunk{
			ID:         res.ID,
			DocumentID: res.SourceID,
			ChunkIndex: res.Index,
			Text:       res.Text,
			Score:      res.Score,
		}
	}
	writeJSON(ctx, w, resp)
}
