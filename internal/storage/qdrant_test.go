//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestBackend skips the test if Qdrant is not running.
func setupTestBackend(t *testing.T) *QdrantBackend {
	backend, err := NewQdrantBackend(QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "test_" + uuid.New().String(),
	}, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() { _ = backend.Remove(context.Background()) })
	return backend
}

func TestQdrantBuildAndSearch(t *testing.T) {
	backend := setupTestBackend(t)
	ctx := context.Background()

	exists, err := backend.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	builder, err := backend.Create(ctx, 3)
	require.NoError(t, err)

	chunks := []*Chunk{
		{ID: uuid.New().String(), Index: 0, Source: "speech.txt", Content: "alpha", Embedding: []float32{1, 0, 0}},
		{ID: uuid.New().String(), Index: 1, Source: "speech.txt", Content: "beta", Embedding: []float32{0, 1, 0}},
	}
	require.NoError(t, builder.AddChunks(ctx, chunks))
	require.NoError(t, builder.SetInfo(ctx, &IndexInfo{
		EmbeddingModel: "test-model",
		Dimension:      3,
		Chunks:         2,
		Source:         "speech.txt",
		BuiltAt:        time.Now(),
	}))

	store, err := builder.Commit(ctx)
	require.NoError(t, err)

	exists, err = backend.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Content)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-model", info.EmbeddingModel)
	assert.Equal(t, 3, info.Dimension)

	_, err = store.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
