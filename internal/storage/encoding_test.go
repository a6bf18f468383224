package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEmbedding(t *testing.T) {
	orig := []float32{0.0, 1.5, -2.25, 3.75}

	decoded, err := DecodeEmbedding(EncodeEmbedding(orig))
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)

	assert.Empty(t, EncodeEmbedding(nil))
}

func TestDecodeEmbedding_BadLength(t *testing.T) {
	_, err := DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	sim, err = CosineSimilarity([]float32{2, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim, "zero vector scores zero")

	_, err = CosineSimilarity([]float32{1}, []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
