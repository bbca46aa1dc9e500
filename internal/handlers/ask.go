package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"reportrag/internal/contextutil"
	"reportrag/internal/rag"
)

// AskHandler handles HTTP requests for RAG queries.
type AskHandler struct {
	ragEngine rag.Engine
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(ragEngine rag.Engine) *AskHandler {
	return &AskHandler{ragEngine: ragEngine}
}

// AskRequest represents the HTTP request payload for RAG queries.
// This mirrors the rag.AskRequest but is defined here for HTTP layer separation.
type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// AskResponse represents the HTTP response payload for RAG queries.
type AskResponse struct {
	// The generated answer
	Answer string `json:"answer"`

	// Chunks the answer was grounded on, best first
	References []ReferenceResponse `json:"references"`

	// Debug contains debug information when debug mode is enabled (via ?debug=true query parameter).
	Debug *rag.DebugInfo `json:"debug,omitempty"`
}

// ReferenceResponse represents a reference in the HTTP response.
type ReferenceResponse struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// ServeHTTP answers a question from the retrieved context.
// With ?stream=true the answer is sent as Server-Sent Events.
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ragReq := rag.AskRequest{
		Question: req.Question,
		K:        req.K,
		Debug:    queryFlag(r, "debug"),
	}

	if queryFlag(r, "stream") {
		h.handleStreamingAsk(w, r, ragReq)
		return
	}

	ragResp, err := h.ragEngine.Ask(ctx, ragReq)
	if err != nil {
		handleError(ctx, w, err, "Failed to process RAG query")
		return
	}

	writeJSON(ctx, w, AskResponse{
		Answer:     ragResp.Answer,
		References: toReferenceResponses(ragResp.References),
		Debug:      ragResp.Debug,
	})
}

func queryFlag(r *http.Request, name string) bool {
	v := strings.ToLower(r.URL.Query().Get(name))
	return v == "true" || v == "1"
}

func toReferenceResponses(refs []rag.Reference) []ReferenceResponse {
	out := make([]ReferenceResponse, len(refs))
	for i, ref := range refs {
		out[i] = ReferenceResponse{DocumentID: ref.DocumentID, ChunkIndex: ref.ChunkIndex, Score: ref.Score}
	}
	return out
}

// handleStreamingAsk streams answer fragments as "data: <json string>" events, then a
// "references" event and a final "data: [DONE]".
func (h *AskHandler) handleStreamingAsk(w http.ResponseWriter, r *http.Request, req rag.AskRequest) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	resp, err := h.ragEngine.AskStream(ctx, req, func(chunk string) error {
		start()
		// JSON-encode fragments so embedded newlines don't break SSE framing
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			handleError(ctx, w, err, "Failed to process RAG query")
			return
		}
		logger.ErrorContext(ctx, "error streaming answer", "error", err)
		payload, _ := json.Marshal(ErrorResponse{Error: err.Error()})
		_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}

	start()
	refs, _ := json.Marshal(toReferenceResponses(resp.References))
	_, _ = fmt.Fprintf(w, "event: references\ndata: %s\n\n", refs)
	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}
