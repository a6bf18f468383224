package storage

import (
	"context"
	"time"
)

// Chunk is a piece of the source document together with its embedding.
type Chunk struct {
	ID        string    // UUIDv5 of source and index
	Index     int       // Position in document (0, 1, 2...)
	Source    string    // Path of the document the chunk came from
	Content   string    // Chunk text
	Embedding []float32 // Not populated on search results
}

// ScoredChunk is a search hit with its cosine similarity to the query.
type ScoredChunk struct {
	*Chunk
	Score float64
}

// IndexInfo describes how a store was built. It is written once at build time.
type IndexInfo struct {
	EmbeddingModel string
	Dimension      int
	Chunks         int
	Source         string
	BuiltAt        time.Time
}

// Store is a built vector store, read-only in normal use.
type Store interface {
	// Search returns up to limit chunks ordered by descending similarity.
	Search(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Info(ctx context.Context) (*IndexInfo, error)
	Health(ctx context.Context) error
	Close() error
}

// Builder is a store under construction. Nothing is visible at the final
// location until Commit succeeds.
type Builder interface {
	AddChunks(ctx context.Context, chunks []*Chunk) error
	SetInfo(ctx context.Context, info *IndexInfo) error
	// Commit publishes the store and returns it opened for reading.
	Commit(ctx context.Context) (Store, error)
	// Abort discards everything written so far.
	Abort(ctx context.Context) error
}

// Backend locates, creates and opens one persisted store.
type Backend interface {
	Name() string
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, dimension int) (Builder, error)
	Open(ctx context.Context) (Store, error)
	Remove(ctx context.Context) error
}
