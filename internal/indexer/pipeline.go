package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
	"reportrag/internal/embedding"
	"reportrag/internal/extract"
	"reportrag/internal/storage"
	"reportrag/internal/vectorstore"
)

// DefaultTopK is the number of chunks Retrieve returns when k is 0.
const DefaultTopK = 5

// Pipeline chunks and embeds documents into a VectorIndex and answers similarity queries.
type Pipeline struct {
	chunker      *Chunker
	embedder     embedding.Embedder
	index        vectorstore.VectorIndex
	documents    storage.DocumentStore
	collection   string
	preprocess   func(string) string
	processedDir string
	defaultK     int
	extractOpts  extract.Options
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithDocumentStore records ingested documents in store under collection, making
// re-ingestion of unchanged content a no-op.
func WithDocumentStore(store storage.DocumentStore, collection string) Option {
	return func(p *Pipeline) {
		p.documents = store
		p.collection = collection
	}
}

// WithPreprocessor filters raw text (and queries) before chunking and embedding.
func WithPreprocessor(fn func(string) string) Option {
	return func(p *Pipeline) {
		p.preprocess = fn
	}
}

// WithProcessedDir writes every stored chunk to <dir>/<document>_chunk_<i>.txt.
func WithProcessedDir(dir string) Option {
	return func(p *Pipeline) {
		p.processedDir = dir
	}
}

// WithExtractOptions sets the options used to extract text from files.
func WithExtractOptions(opts extract.Options) Option {
	return func(p *Pipeline) {
		p.extractOpts = opts
	}
}

// WithDefaultTopK overrides the k used when Retrieve is called with k == 0.
func WithDefaultTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.defaultK = k
		}
	}
}

// NewPipeline creates a new ingestion and retrieval pipeline.
func NewPipeline(chunker *Chunker, embedder embedding.Embedder, index vectorstore.VectorIndex, opts ...Option) *Pipeline {
	p := &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		defaultK: DefaultTopK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest chunks rawText, embeds every chunk and stores the records under documentID.
// It returns the number of chunks stored. No records are stored unless chunking and embedding succeed.
func (p *Pipeline) Ingest(ctx context.Context, documentID, rawText string) (int, error) {
	res, err := p.ingest(ctx, documentID, rawText, "")
	return res.count, err
}

// ingestResult describes one ingest call. chunks is nil when the document was unchanged.
type ingestResult struct {
	count     int
	unchanged bool
	chunks    []Chunk
}

func (p *Pipeline) ingest(ctx context.Context, documentID, rawText, sourcePath string) (ingestResult, error) {
	logger := contextutil.LoggerFromContext(ctx).With("document_id", documentID)

	fail := func(err error) (ingestResult, error) {
		return ingestResult{}, &apperr.OpError{Op: "ingest", DocumentID: documentID, Err: err}
	}

	if strings.TrimSpace(documentID) == "" {
		return fail(&apperr.ValidationError{Field: "document_id", Message: "document id is required"})
	}

	sum := sha256.Sum256([]byte(rawText))
	hashHex := hex.EncodeToString(sum[:])

	text := rawText
	if p.preprocess != nil {
		text = p.preprocess(rawText)
	}

	chunks, err := p.chunker.Chunk(documentID, text)
	if err != nil {
		return fail(fmt.Errorf("failed to chunk document: %w", err))
	}

	if p.documents != nil {
		res, done, err := p.reconcile(ctx, documentID, hashHex, sourcePath, chunks)
		if err != nil {
			return fail(err)
		}
		if done {
			return res, nil
		}
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fail(fmt.Errorf("failed to generate embeddings: %w", err))
		}
		if len(vectors) != len(chunks) {
			return fail(fmt.Errorf("%w: embedding count mismatch: expected %d, got %d", apperr.ErrModelUnavailable, len(chunks), len(vectors)))
		}

		records := make([]vectorstore.Record, len(chunks))
		for i, c := range chunks {
			records[i] = vectorstore.Record{
				ID:       vectorstore.RecordID(documentID, c.Index),
				SourceID: documentID,
				Index:    c.Index,
				Vector:   vectors[i],
				Text:     c.Text,
			}
		}

		if err := p.index.Insert(ctx, records); err != nil {
			return fail(fmt.Errorf("failed to insert records: %w", err))
		}
	} else {
		logger.WarnContext(ctx, "no chunks generated")
	}

	if p.documents != nil {
		doc := &storage.DocumentRecord{
			Collection:  p.collection,
			ID:          documentID,
			SourcePath:  sourcePath,
			ContentHash: hashHex,
			ChunkCount:  len(chunks),
		}
		if err := p.documents.Upsert(ctx, doc); err != nil {
			return fail(fmt.Errorf("%w: records stored but document registration failed: %v", apperr.ErrStoreUnavailable, err))
		}
	}

	if p.processedDir != "" {
		if err := writeChunks(p.processedDir, documentID, chunks); err != nil {
			logger.WarnContext(ctx, "failed to write processed chunks", "dir", p.processedDir, "error", err)
		}
	}

	logger.InfoContext(ctx, "ingested document", "chunks", len(chunks), "model", p.embedder.ModelName())
	return ingestResult{count: len(chunks), chunks: chunks}, nil
}

// reconcile compares the registry entry for documentID with the records the index holds.
// done reports that nothing has to be stored: the content is already present.
// A registry entry whose records are missing from the index is ignored, and records
// stored by an earlier run that failed to register them are adopted if they match chunks.
func (p *Pipeline) reconcile(ctx context.Context, documentID, hashHex, sourcePath string, chunks []Chunk) (res ingestResult, done bool, err error) {
	logger := contextutil.LoggerFromContext(ctx).With("document_id", documentID)

	existing, err := p.documents.Get(ctx, p.collection, documentID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return ingestResult{}, false, fmt.Errorf("%w: failed to check document registry: %v", apperr.ErrStoreUnavailable, err)
	}

	if existing != nil {
		held := true
		if existing.ChunkCount > 0 {
			_, held, err = p.index.Lookup(ctx, vectorstore.RecordID(documentID, existing.ChunkCount-1))
			if err != nil {
				return ingestResult{}, false, fmt.Errorf("failed to check stored records: %w", err)
			}
		}
		switch {
		case held && existing.ContentHash == hashHex:
			logger.DebugContext(ctx, "skipping unchanged document", "hash", hashHex)
			return ingestResult{count: existing.ChunkCount, unchanged: true}, true, nil
		case held:
			return ingestResult{}, false, fmt.Errorf("%w: document %s was ingested with different content", apperr.ErrDuplicateID, documentID)
		default:
			logger.WarnContext(ctx, "registered document has no records in the index, ingesting again", "chunks", existing.ChunkCount)
		}
	}

	if len(chunks) == 0 {
		return ingestResult{}, false, nil
	}
	_, found, err := p.index.Lookup(ctx, vectorstore.RecordID(documentID, 0))
	if err != nil {
		return ingestResult{}, false, fmt.Errorf("failed to check stored records: %w", err)
	}
	if !found {
		return ingestResult{}, false, nil
	}

	matches, err := p.holdsChunks(ctx, documentID, chunks)
	if err != nil {
		return ingestResult{}, false, err
	}
	if !matches {
		return ingestResult{}, false, fmt.Errorf("%w: document %s has stored records with different content", apperr.ErrDuplicateID, documentID)
	}

	doc := &storage.DocumentRecord{
		Collection:  p.collection,
		ID:          documentID,
		SourcePath:  sourcePath,
		ContentHash: hashHex,
		ChunkCount:  len(chunks),
	}
	if err := p.documents.Upsert(ctx, doc); err != nil {
		return ingestResult{}, false, fmt.Errorf("%w: failed to register stored records: %v", apperr.ErrStoreUnavailable, err)
	}
	logger.InfoContext(ctx, "registered previously stored records", "chunks", len(chunks))
	return ingestResult{count: len(chunks), unchanged: true}, true, nil
}

// holdsChunks reports whether the index stores exactly chunks for documentID.
func (p *Pipeline) holdsChunks(ctx context.Context, documentID string, chunks []Chunk) (bool, error) {
	for _, c := range chunks {
		r, ok, err := p.index.Lookup(ctx, vectorstore.RecordID(documentID, c.Index))
		if err != nil {
			return false, fmt.Errorf("failed to check stored records: %w", err)
		}
		if !ok || r.Text != c.Text {
			return false, nil
		}
	}
	_, extra, err := p.index.Lookup(ctx, vectorstore.RecordID(documentID, len(chunks)))
	if err != nil {
		return false, fmt.Errorf("failed to check stored records: %w", err)
	}
	return !extra, nil
}

// writeChunks dumps chunk texts to <dir>/<documentID>_chunk_<i>.txt.
func writeChunks(dir, documentID string, chunks []Chunk) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create processed directory: %w", err)
	}
	base := filepath.Base(documentID)
	for _, c := range chunks {
		name := fmt.Sprintf("%s_chunk_%d.txt", base, c.Index)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(c.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// Search embeds query once and returns at most k scored results.
// k == 0 selects the default; negative k is rejected.
func (p *Pipeline) Search(ctx context.Context, query string, k int) ([]vectorstore.Result, error) {
	fail := func(err error) ([]vectorstore.Result, error) {
		return nil, &apperr.OpError{Op: "retrieve", Query: query, Err: err}
	}

	if k == 0 {
		k = p.defaultK
	}
	if k < 0 {
		return fail(&apperr.ValidationError{Field: "k", Message: fmt.Sprintf("must be positive, got %d", k)})
	}
	if strings.TrimSpace(query) == "" {
		return fail(&apperr.ValidationError{Field: "query", Message: "query is required"})
	}

	text := query
	if p.preprocess != nil {
		if processed := p.preprocess(query); processed != "" {
			text = processed
		}
	}

	vectors, err := p.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fail(fmt.Errorf("failed to embed query: %w", err))
	}
	if len(vectors) != 1 {
		return fail(fmt.Errorf("%w: expected 1 query embedding, got %d", apperr.ErrModelUnavailable, len(vectors)))
	}

	results, err := p.index.Search(ctx, vectors[0], k)
	if err != nil {
		return fail(fmt.Errorf("failed to search index: %w", err))
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "retrieved chunks", "k", k, "results", len(results))
	return results, nil
}

// Retrieve returns the texts of the k most similar chunks, best first.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	results, err := p.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts, nil
}

// IngestFile extracts text from path and ingests it under the file name without extension.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	res, err := p.ingestFile(ctx, path)
	return res.count, err
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) (ingestResult, error) {
	documentID := extract.DocumentID(path)
	text, err := extract.File(ctx, path, p.extractOpts)
	if err != nil {
		return ingestResult{}, &apperr.OpError{Op: "ingest", DocumentID: documentID, Err: err}
	}
	return p.ingest(ctx, documentID, text, path)
}

// IngestDir ingests every supported file below dir. Hidden directories are skipped.
// Errors for individual files are logged but don't stop the run; the returned error
// reports how many files failed.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (*IngestStats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if extract.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	stats := newIngestStats(p.IndexVersion())
	if len(files) == 0 {
		logger.WarnContext(ctx, "no documents found", "dir", dir)
		return stats, nil
	}

	logger.InfoContext(ctx, "starting ingestion", "dir", dir, "total_files", len(files))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := p.ingestFile(ctx, path)
		if err != nil {
			stats.DocsFailed++
			logger.ErrorContext(ctx, "failed to ingest file", "path", path, "error", err)
			continue
		}
		stats.record(res)
	}
	stats.finish()

	logger.InfoContext(ctx, "ingestion completed", "total_files", len(files), "success", stats.DocsProcessed, "unchanged", stats.DocsUnchanged, "errors", stats.DocsFailed, "chunks", stats.ChunksStored)

	if stats.DocsFailed > 0 {
		return stats, fmt.Errorf("ingestion completed with %d errors", stats.DocsFailed)
	}
	return stats, nil
}
