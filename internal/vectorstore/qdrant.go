package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
)

// pointNamespace derives stable Qdrant point UUIDs from record IDs.
var pointNamespace = uuid.MustParse("6f1c2b9e-4a53-4d7e-9c1a-2f0e8d7b5a31")

// tieSlack is how many extra candidates a search fetches so that records tied at the
// k-th score can be reordered by insertion sequence.
const tieSlack = 8

// Payload keys stored on every point.
const (
	payloadRecordID   = "record_id"
	payloadSourceID   = "source_id"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
	payloadSeq        = "seq"
)

// QdrantIndex implements VectorIndex on a remote Qdrant collection with cosine distance.
// The collection is created on first insert. Writes from this handle are serialized;
// running more than one writer process against a collection is not supported.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string

	mu        sync.Mutex
	nextSeq   int64
	dimension atomic.Int64
}

// NewQdrantIndex connects to Qdrant and opens the named collection.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantIndex(ctx context.Context, urlStr, collection string) (*QdrantIndex, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Qdrant client: %v", apperr.ErrStoreUnavailable, err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: collection,
	}
	if err := idx.loadState(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// grpcAddress maps a Qdrant HTTP URL to the gRPC host and port.
func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid Qdrant URL: %v", apperr.ErrInvalidArgument, err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// loadState reads the collection dimension and point count, if the collection exists.
func (s *QdrantIndex) loadState(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: failed to check collection existence: %v", apperr.ErrStoreUnavailable, err)
	}
	if !exists {
		logger.InfoContext(ctx, "collection does not exist yet", "collection", s.collection)
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: failed to get collection info: %v", apperr.ErrStoreUnavailable, err)
	}
	size := vectorSize(info)
	if size == 0 {
		return fmt.Errorf("%w: could not determine collection vector size", apperr.ErrStoreUnavailable)
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to count points: %v", apperr.ErrStoreUnavailable, err)
	}

	s.dimension.Store(int64(size))
	s.nextSeq = int64(count)
	logger.InfoContext(ctx, "collection validated", "collection", s.collection, "vector_size", size, "points", count)
	return nil
}

// vectorSize extracts the vector size from collection info, 0 if unknown.
func vectorSize(info *qdrant.CollectionInfo) int {
	if info == nil {
		return 0
	}
	if config := info.Config; config != nil && config.Params != nil {
		if vectorsConfig := config.Params.GetVectorsConfig(); vectorsConfig != nil {
			if params := vectorsConfig.GetParams(); params != nil {
				return int(params.Size)
			}
		}
	}
	return 0
}

// checkVectorSize rejects inserting size-dimensional vectors into an existing collection
// created with another size. An unknown size (0) is accepted.
func checkVectorSize(collection string, existing, size int) error {
	if existing != 0 && existing != size {
		return fmt.Errorf("%w: collection %s has vector size %d, records have %d", apperr.ErrDimensionMismatch, collection, existing, size)
	}
	return nil
}

// PointID returns the Qdrant point UUID for a record ID.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// Insert upserts the batch after checking dimensions and rejecting IDs already present.
func (s *QdrantIndex) Insert(ctx context.Context, records []Record) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := validateBatch(int(s.dimension.Load()), nil, records)
	if err != nil {
		return err
	}

	ids := make([]*qdrant.PointId, len(records))
	for i, r := range records {
		ids[i] = qdrant.NewID(PointID(r.ID))
	}

	if s.dimension.Load() == 0 {
		if err := s.ensureCollection(ctx, dim); err != nil {
			return err
		}
	} else {
		existing, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.collection,
			Ids:            ids,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("%w: failed to check existing points: %v", apperr.ErrStoreUnavailable, err)
		}
		if len(existing) > 0 {
			id := convertPayloadToMap(existing[0].GetPayload())[payloadRecordID]
			return fmt.Errorf("%w: %v", apperr.ErrDuplicateID, id)
		}
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      ids[i],
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadRecordID:   r.ID,
				payloadSourceID:   r.SourceID,
				payloadChunkIndex: int64(r.Index),
				payloadText:       r.Text,
				payloadSeq:        s.nextSeq + int64(i),
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", s.collection, "count", len(points), "error", err)
		return fmt.Errorf("%w: failed to upsert points: %v", apperr.ErrStoreUnavailable, err)
	}

	s.nextSeq += int64(len(records))
	s.dimension.Store(int64(dim))
	logger.InfoContext(ctx, "upserted points", "collection", s.collection, "count", len(points))
	return nil
}

// ensureCollection creates the collection with the given vector size if it does not exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context, size int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: failed to check collection existence: %v", apperr.ErrStoreUnavailable, err)
	}
	if exists {
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("%w: failed to get collection info: %v", apperr.ErrStoreUnavailable, err)
		}
		return checkVectorSize(s.collection, vectorSize(info), size)
	}

	logger.InfoContext(ctx, "creating collection", "collection", s.collection, "vector_size", size)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// Search queries Qdrant and re-ranks hits by (score desc, seq asc).
func (s *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be greater than 0, got %d", apperr.ErrInvalidArgument, k)
	}
	dim := int(s.dimension.Load())
	if dim == 0 {
		return []Result{}, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, collection has %d", apperr.ErrDimensionMismatch, len(query), dim)
	}

	limit := uint64(k + tieSlack)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", s.collection, "k", k, "error", err)
		return nil, fmt.Errorf("%w: failed to search points: %v", apperr.ErrStoreUnavailable, err)
	}

	hits := make([]scoredHit, 0, len(scoredPoints))
	for _, p := range scoredPoints {
		hits = append(hits, hitFromPayload(convertPayloadToMap(p.GetPayload()), p.GetScore()))
	}
	results := rankHits(hits, k)

	logger.DebugContext(ctx, "search completed", "collection", s.collection, "k", k, "results", len(results))
	return results, nil
}

// scoredHit is a search candidate with its insertion sequence.
type scoredHit struct {
	result Result
	seq    int64
}

// hitFromPayload decodes a point payload. Points missing the source or chunk index fields
// fall back to the values encoded in the record id.
func hitFromPayload(meta map[string]any, score float32) scoredHit {
	h := scoredHit{result: Result{Score: score}}
	h.result.ID, _ = meta[payloadRecordID].(string)
	h.result.Text, _ = meta[payloadText].(string)
	h.seq, _ = meta[payloadSeq].(int64)

	sourceID, hasSource := meta[payloadSourceID].(string)
	index, hasIndex := meta[payloadChunkIndex].(int64)
	if (!hasSource || !hasIndex) && h.result.ID != "" {
		if parsedSource, parsedIndex, err := ParseRecordID(h.result.ID); err == nil {
			if !hasSource {
				sourceID = parsedSource
			}
			if !hasIndex {
				index = int64(parsedIndex)
			}
		}
	}
	h.result.SourceID = sourceID
	h.result.Index = int(index)
	return h
}

// rankHits orders hits by score descending, then insertion sequence, and keeps k.
func rankHits(hits []scoredHit, k int) []Result {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].result.Score != hits[j].result.Score {
			return hits[i].result.Score > hits[j].result.Score
		}
		return hits[i].seq < hits[j].seq
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results
}

// Lookup fetches the point for id.
func (s *QdrantIndex) Lookup(ctx context.Context, id string) (Result, bool, error) {
	if s.dimension.Load() == 0 {
		return Result{}, false, nil
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: failed to get point: %v", apperr.ErrStoreUnavailable, err)
	}
	if len(points) == 0 {
		return Result{}, false, nil
	}
	return hitFromPayload(convertPayloadToMap(points[0].GetPayload()), 0).result, true, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	if s.dimension.Load() == 0 {
		return 0, nil
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count points: %v", apperr.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// Dimension returns the established dimension, 0 before the first insert.
func (s *QdrantIndex) Dimension() int {
	return int(s.dimension.Load())
}

// Close closes the gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
