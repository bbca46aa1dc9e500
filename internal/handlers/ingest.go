package handlers

import (
	"context"
	"net/http"

	"reportrag/internal/contextutil"
	"reportrag/internal/indexer"
)

// Ingester stores documents. It is implemented by *indexer.Pipeline.
type Ingester interface {
	Ingest(ctx context.Context, documentID, rawText string) (int, error)
	IngestDir(ctx context.Context, dir string) (*indexer.IngestStats, error)
}

// IngestHandler handles HTTP requests for ingesting raw text.
type IngestHandler struct {
	ingester Ingester
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ingester Ingester) *IngestHandler {
	return &IngestHandler{ingester: ingester}
}

// IngestRequest represents the HTTP request payload for ingestion.
type IngestRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// IngestResponse represents the HTTP response payload for ingestion.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// ServeHTTP chunks, embeds and stores the posted text.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req IngestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.ingester.Ingest(ctx, req.DocumentID, req.Text)
	if err != nil {
		handleError(ctx, w, err, "Failed to ingest document")
		return
	}

	writeJSON(ctx, w, IngestResponse{DocumentID: req.DocumentID, Chunks: n})
}

// IngestDirHandler starts ingestion of every supported file in the raw data directory.
type IngestDirHandler struct {
	ingester Ingester
	dir      string
}

// NewIngestDirHandler creates a new IngestDirHandler for dir.
func NewIngestDirHandler(ingester Ingester, dir string) *IngestDirHandler {
	return &IngestDirHandler{ingester: ingester, dir: dir}
}

// IngestDirResponse represents the response from the directory ingestion endpoint.
type IngestDirResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP triggers ingestion in the background and returns 202 immediately.
func (h *IngestDirHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	logger.InfoContext(ctx, "directory ingestion triggered via API", "dir", h.dir)

	// Use a detached context so ingestion continues after the HTTP request completes
	go func() {
		ingestCtx := contextutil.WithLogger(context.Background(), logger)
		stats, err := h.ingester.IngestDir(ingestCtx, h.dir)
		if err != nil {
			logger.ErrorContext(ingestCtx, "directory ingestion completed with errors", "error", err)
			return
		}
		logger.InfoContext(ingestCtx, "directory ingestion completed successfully",
			"docs_processed", stats.DocsProcessed, "chunks_stored", stats.ChunksStored)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(ctx, w, IngestDirResponse{
		Message: "Ingestion started. Check server logs for progress.",
		Status:  "accepted",
	})
}
