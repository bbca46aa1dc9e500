package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reportrag/internal/handlers"
	"reportrag/internal/rag"
	"reportrag/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Ingester   handlers.Ingester
	Searcher   handlers.Searcher
	RAGEngine  rag.Engine
	Index      vectorstore.VectorIndex
	LLM        handlers.Pinger // Optional; nil skips the model health check
	RawDataDir string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/ingest", handlers.NewIngestHandler(deps.Ingester))
		r.Method(http.MethodPost, "/ingest/dir", handlers.NewIngestDirHandler(deps.Ingester, deps.RawDataDir))
		r.Method(http.MethodPost, "/retrieve", handlers.NewRetrieveHandler(deps.Searcher))
		r.Method(http.MethodPost, "/ask", handlers.NewAskHandler(deps.RAGEngine))
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.Index, deps.LLM))
	})

	return r
}
