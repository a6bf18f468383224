package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection used when none is configured.
const DefaultCollection = "speech_chunks"

const (
	vectorName = "content"
	typeChunk  = "chunk"
	typeInfo   = "index_info"
)

// infoPointID is the fixed point holding IndexInfo. It carries no vector.
var infoPointID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("speechqa:index-info")).String()

// QdrantConfig holds the connection details for a Qdrant server.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// QdrantBackend keeps the store in one Qdrant collection.
type QdrantBackend struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantBackend connects over gRPC and fails fast if Qdrant does not become
// healthy within the retry window.
func NewQdrantBackend(cfg QdrantConfig, logger *slog.Logger) (*QdrantBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	b := &QdrantBackend{client: client, collection: cfg.Collection, logger: logger}
	if err := b.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	return b, nil
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (b *QdrantBackend) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return qdrantHealth(ctx, b.client)
	}, backoff.WithContext(newExponentialBackOff(), ctx))
}

func qdrantHealth(ctx context.Context, client *qdrant.Client) error {
	result, err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

func (b *QdrantBackend) Name() string { return "qdrant" }

// Exists reports whether the collection exists and holds at least one chunk.
func (b *QdrantBackend) Exists(ctx context.Context) (bool, error) {
	ok, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	if !ok {
		return false, nil
	}
	n, err := countChunks(ctx, b.client, b.collection)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create makes a fresh collection sized for the given dimension. An empty
// leftover collection from an aborted build is replaced.
func (b *QdrantBackend) Create(ctx context.Context, dimension int) (Builder, error) {
	exists, err := b.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: collection %s", ErrStoreExists, b.collection)
	}
	if err := b.dropIfPresent(ctx); err != nil {
		return nil, err
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	// "type" separates chunks from the info point in every filter.
	_, err = b.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: b.collection,
		FieldName:      "type",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index for field type: %w", err)
	}

	return &qdrantBuilder{backend: b, dimension: dimension}, nil
}

// Open returns the collection as a store. A missing collection is ErrStoreNotFound.
func (b *QdrantBackend) Open(ctx context.Context) (Store, error) {
	ok, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v %s", ErrStoreNotFound, ErrCollectionNotFound, b.collection)
	}
	s := &QdrantStore{client: b.client, collection: b.collection}
	info, err := s.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	s.dimension = info.Dimension
	return s, nil
}

// Remove drops the collection.
func (b *QdrantBackend) Remove(ctx context.Context) error {
	return b.dropIfPresent(ctx)
}

func (b *QdrantBackend) dropIfPresent(ctx context.Context) error {
	ok, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !ok {
		return nil
	}
	if err := b.client.DeleteCollection(ctx, b.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

type qdrantBuilder struct {
	backend   *QdrantBackend
	dimension int
}

func (w *qdrantBuilder) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := w.backend.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: w.backend.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newExponentialBackOff(), ctx))
}

// AddChunks upserts in batches of 100 points.
func (w *qdrantBuilder) AddChunks(ctx context.Context, chunks []*Chunk) error {
	for i, chunk := range chunks {
		if len(chunk.Embedding) != w.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), w.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(chunk.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"type":    typeChunk,
					"index":   chunk.Index,
					"source":  chunk.Source,
					"content": chunk.Content,
				}),
			}
		}

		if err := w.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (w *qdrantBuilder) SetInfo(ctx context.Context, info *IndexInfo) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(infoPointID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":            typeInfo,
			"embedding_model": info.EmbeddingModel,
			"dimension":       info.Dimension,
			"chunks":          info.Chunks,
			"source":          info.Source,
			"built_at":        info.BuiltAt.UTC().Format(time.RFC3339),
		}),
	}
	return w.upsertWithRetry(ctx, []*qdrant.PointStruct{point})
}

func (w *qdrantBuilder) Commit(ctx context.Context) (Store, error) {
	return w.backend.Open(ctx)
}

func (w *qdrantBuilder) Abort(ctx context.Context) error {
	return w.backend.dropIfPresent(ctx)
}

// QdrantStore answers similarity queries from a Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

func (s *QdrantStore) Search(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &using,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("type", typeChunk)},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, &ScoredChunk{
			Chunk: &Chunk{
				ID:      result.Id.GetUuid(),
				Index:   int(payload["index"].GetIntegerValue()),
				Source:  payload["source"].GetStringValue(),
				Content: payload["content"].GetStringValue(),
			},
			Score: float64(result.Score),
		})
	}
	return scored, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := countChunks(ctx, s.client, s.collection)
	return int(n), err
}

func countChunks(ctx context.Context, client *qdrant.Client, collection string) (uint64, error) {
	n, err := client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("type", typeChunk)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *QdrantStore) Info(ctx context.Context) (*IndexInfo, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(infoPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get index info: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("index info point missing")
	}

	payload := points[0].Payload
	builtAt, err := time.Parse(time.RFC3339, payload["built_at"].GetStringValue())
	if err != nil {
		builtAt = time.Time{}
	}
	return &IndexInfo{
		EmbeddingModel: payload["embedding_model"].GetStringValue(),
		Dimension:      int(payload["dimension"].GetIntegerValue()),
		Chunks:         int(payload["chunks"].GetIntegerValue()),
		Source:         payload["source"].GetStringValue(),
		BuiltAt:        builtAt,
	}, nil
}

func (s *QdrantStore) Health(ctx context.Context) error {
	return qdrantHealth(ctx, s.client)
}

// Close closes the shared client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
