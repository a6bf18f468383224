// Package indexer builds the vector store from the source document, or opens
// the one already on disk.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/speechqa/internal/loader"
	"github.com/bull/speechqa/internal/splitter"
	"github.com/bull/speechqa/internal/storage"
)

// ErrNoChunks is returned when the source document yields nothing to index.
var ErrNoChunks = errors.New("document produced no chunks")

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// BuildResult contains statistics about a build.
type BuildResult struct {
	Source    string
	Chunks    int
	Dimension int
	Duration  time.Duration
}

// Pipeline orchestrates load, split, embed and persist.
type Pipeline struct {
	loader   loader.Loader
	splitter splitter.Splitter
	embedder Embedder
	backend  storage.Backend
	logger   *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(
	loader loader.Loader,
	splitter splitter.Splitter,
	embedder Embedder,
	backend storage.Backend,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		backend:  backend,
		logger:   logger,
	}
}

// OpenOrBuild loads the store if it exists and builds it otherwise.
func (p *Pipeline) OpenOrBuild(ctx context.Context) (storage.Store, error) {
	exists, err := p.backend.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check vector store: %w", err)
	}
	if exists {
		return p.LoadVectorDB(ctx)
	}

	p.logger.Info("Creating vector DB...", "backend", p.backend.Name())
	store, _, err := p.BuildVectorDB(ctx)
	return store, err
}

// Rebuild discards any existing store and builds a new one.
func (p *Pipeline) Rebuild(ctx context.Context) (storage.Store, *BuildResult, error) {
	p.logger.Info("Removing existing vector store", "backend", p.backend.Name())
	if err := p.backend.Remove(ctx); err != nil {
		return nil, nil, fmt.Errorf("remove vector store: %w", err)
	}
	return p.BuildVectorDB(ctx)
}

// LoadVectorDB opens the persisted store. A store built with a different
// embedding model than the configured one is used anyway, with a warning.
func (p *Pipeline) LoadVectorDB(ctx context.Context) (storage.Store, error) {
	p.logger.Info("Loading existing vector DB...", "backend", p.backend.Name())

	store, err := p.backend.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	info, err := store.Info(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("read index info: %w", err)
	}
	if info.EmbeddingModel != p.embedder.Model() {
		p.logger.Warn("Vector store was built with a different embedding model; rebuild if answers look wrong",
			"stored_model", info.EmbeddingModel,
			"configured_model", p.embedder.Model(),
		)
	}
	p.logger.Debug("Loaded vector store", "chunks", info.Chunks, "dimension", info.Dimension, "built_at", info.BuiltAt)
	return store, nil
}

// BuildVectorDB loads and splits the document, embeds every chunk and
// persists the result. Nothing is left behind if any step fails.
func (p *Pipeline) BuildVectorDB(ctx context.Context) (storage.Store, *BuildResult, error) {
	start := time.Now()

	doc, err := p.loader.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load: %w", err)
	}
	p.logger.Debug("Loaded document", "source", doc.Source, "size", len(doc.Content))

	chunks, err := p.splitter.SplitDocument(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("split: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoChunks, doc.Source)
	}
	p.logger.Info("Chunks created", "count", len(chunks))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, nil, fmt.Errorf("embeddings: got %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	dimension := len(embeddings[0])
	if dimension == 0 {
		return nil, nil, fmt.Errorf("embeddings: model %s returned empty vectors", p.embedder.Model())
	}

	storageChunks := make([]*storage.Chunk, len(chunks))
	for i, chunk := range chunks {
		storageChunks[i] = &storage.Chunk{
			ID:        chunk.ID,
			Index:     chunk.Index,
			Source:    chunk.Source,
			Content:   chunk.Content,
			Embedding: embeddings[i],
		}
	}

	builder, err := p.backend.Create(ctx, dimension)
	if err != nil {
		return nil, nil, fmt.Errorf("create vector store: %w", err)
	}
	store, err := p.persist(ctx, builder, storageChunks, &storage.IndexInfo{
		EmbeddingModel: p.embedder.Model(),
		Dimension:      dimension,
		Chunks:         len(storageChunks),
		Source:         doc.Source,
		BuiltAt:        time.Now(),
	})
	if err != nil {
		if abortErr := builder.Abort(ctx); abortErr != nil {
			p.logger.Warn("Failed to clean up partial vector store", "error", abortErr)
		}
		return nil, nil, err
	}

	result := &BuildResult{
		Source:    doc.Source,
		Chunks:    len(storageChunks),
		Dimension: dimension,
		Duration:  time.Since(start),
	}
	p.logger.Info("Vector store built",
		"chunks", result.Chunks,
		"dimension", result.Dimension,
		"duration", result.Duration,
	)
	return store, result, nil
}

func (p *Pipeline) persist(ctx context.Context, builder storage.Builder, chunks []*storage.Chunk, info *storage.IndexInfo) (storage.Store, error) {
	if err := builder.AddChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	if err := builder.SetInfo(ctx, info); err != nil {
		return nil, fmt.Errorf("store index info: %w", err)
	}
	store, err := builder.Commit(ctx)
	if err != nil {
		return nil, fmt.Errorf("commit vector store: %w", err)
	}
	return store, nil
}
