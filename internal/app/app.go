package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"reportrag/internal/apperr"
	"reportrag/internal/config"
	"reportrag/internal/contextutil"
	"reportrag/internal/embedding"
	"reportrag/internal/extract"
	"reportrag/internal/indexer"
	"reportrag/internal/llm"
	"reportrag/internal/preprocess"
	"reportrag/internal/rag"
	"reportrag/internal/storage"
	"reportrag/internal/vectorstore"
)

// App holds the components built from a Config.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Documents *storage.DocumentRepo
	Embedder  embedding.Embedder
	Index     vectorstore.VectorIndex
	Pipeline  *indexer.Pipeline
	LLM       *llm.Client
	Engine    rag.Engine
}

// NewLogger builds the slog logger selected by LOG_FORMAT and LOG_LEVEL.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens the document registry and the vector index and wires the pipeline and
// answer engine. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := contextutil.LoggerFromContext(ctx)

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", apperr.ErrStoreUnavailable, err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to run migrations: %w", apperr.ErrStoreUnavailable, err)
	}
	logger.InfoContext(ctx, "database initialized", "path", cfg.DBPath)

	embedder, err := embedding.New(embedding.Options{
		Backend:   cfg.EmbeddingBackend,
		BaseURL:   cfg.EmbeddingBaseURL,
		APIKey:    cfg.EmbeddingAPIKey,
		Model:     cfg.EmbeddingModelName,
		Dimension: cfg.EmbeddingDimension,
		BatchSize: cfg.EmbeddingBatchSize,
		CacheSize: cfg.EmbeddingCacheSize,
		CacheTTL:  cfg.EmbeddingCacheTTL,
	})
	if err != nil {
		_ = db.Close()
		return nil, apperr.WrapError(err, "failed to create embedder")
	}

	index, err := vectorstore.Open(ctx, vectorstore.Options{
		Backend:    cfg.VectorBackend,
		Dir:        cfg.VectorStoreDir,
		Collection: cfg.CollectionName,
		QdrantURL:  cfg.QdrantURL,
	})
	if err != nil {
		_ = db.Close()
		return nil, apperr.WrapError(err, "failed to open vector index")
	}
	logger.InfoContext(ctx, "vector index ready", "backend", cfg.VectorBackend, "collection", cfg.CollectionName, "dimension", index.Dimension())

	chunker, err := indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		_ = index.Close()
		_ = db.Close()
		return nil, err
	}

	documents := storage.NewDocumentRepo(db)
	opts := []indexer.Option{
		indexer.WithDocumentStore(documents, cfg.CollectionName),
		indexer.WithDefaultTopK(cfg.DefaultTopK),
		indexer.WithExtractOptions(extract.Options{StripPDFHeadersFooters: cfg.PDFStripHeadersFooters}),
	}
	if cfg.PreprocessEnabled {
		opts = append(opts, indexer.WithPreprocessor(preprocess.Preprocess))
	}
	if cfg.ProcessedDataDir != "" {
		opts = append(opts, indexer.WithProcessedDir(cfg.ProcessedDataDir))
	}
	pipeline := indexer.NewPipeline(chunker, embedder, index, opts...)

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)

	return &App{
		Config:    cfg,
		DB:        db,
		Documents: documents,
		Embedder:  embedder,
		Index:     index,
		Pipeline:  pipeline,
		LLM:       llmClient,
		Engine:    rag.NewEngine(pipeline, llmClient),
	}, nil
}

// CheckEmbedder embeds a sample text and verifies its size against the collection
// dimension once one is established.
func (a *App) CheckEmbedder(ctx context.Context) error {
	vectors, err := a.Embedder.Embed(ctx, []string{"dimension check"})
	if err != nil {
		return apperr.WrapError(err, "failed to validate embedder")
	}
	if len(vectors) != 1 {
		return fmt.Errorf("%w: expected 1 sample embedding, got %d", apperr.ErrModelUnavailable, len(vectors))
	}
	if dim := a.Index.Dimension(); dim > 0 && len(vectors[0]) != dim {
		return fmt.Errorf("%w: embedder %s produces %d dimensions, collection %s has %d",
			apperr.ErrDimensionMismatch, a.Embedder.ModelName(), len(vectors[0]), a.Config.CollectionName, dim)
	}
	return nil
}

// Close releases the vector index and the database.
func (a *App) Close() error {
	return errors.Join(a.Index.Close(), a.DB.Close())
}
