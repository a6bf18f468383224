package indexer

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/speechqa/internal/loader"
	"github.com/bull/speechqa/internal/splitter"
	"github.com/bull/speechqa/internal/storage"
)

const speech = `Friends, we meet tonight in the old town hall by the river.

The harbor lighthouse will be rebuilt before winter, so ships can find the port again.

Our schools will open a new library with books for every child in the valley.

The railway line to the mountains will carry freight and passengers by next spring.`

// hashEmbedder maps each word to one of 64 buckets, so texts sharing words
// point in similar directions.
type hashEmbedder struct {
	model string
	calls int
	err   error
}

func (e *hashEmbedder) Model() string { return e.model }

func (e *hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, 64)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%64]++
	}
	return v
}

type countingLoader struct {
	doc   *loader.Document
	calls int
}

func (l *countingLoader) Load(ctx context.Context) (*loader.Document, error) {
	l.calls++
	return l.doc, nil
}

type fixture struct {
	pipeline *Pipeline
	loader   *countingLoader
	embedder *hashEmbedder
	backend  *storage.SQLiteBackend
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := &fixture{
		loader:   &countingLoader{doc: &loader.Document{ID: "speech.txt", Source: "speech.txt", Content: content}},
		embedder: &hashEmbedder{model: "hash-64"},
		backend:  storage.NewSQLiteBackend(filepath.Join(t.TempDir(), "db"), logger),
		logs:     logs,
	}
	f.pipeline = NewPipeline(f.loader, splitter.NewCharacter(100, 0, logger), f.embedder, f.backend, logger)
	return f
}

func TestOpenOrBuild_BuildsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, speech)

	exists, err := f.backend.Exists(ctx)
	require.NoError(t, err)
	require.False(t, exists)

	store, err := f.pipeline.OpenOrBuild(ctx)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, 1, f.loader.calls)
	assert.Equal(t, 1, f.embedder.calls)
	assert.Contains(t, f.logs.String(), "Chunks created")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hash-64", info.EmbeddingModel)
	assert.Equal(t, 64, info.Dimension)
	assert.Equal(t, 4, info.Chunks)
	assert.Equal(t, "speech.txt", info.Source)
}

func TestOpenOrBuild_LoadsWhenPresent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, speech)

	store, err := f.pipeline.OpenOrBuild(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = f.pipeline.OpenOrBuild(ctx)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, 1, f.loader.calls, "load path must not read the document again")
	assert.Equal(t, 1, f.embedder.calls)
	assert.Contains(t, f.logs.String(), "Loading existing vector DB...")
}

func TestLoadVectorDB_WarnsOnModelMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, speech)

	store, _, err := f.pipeline.BuildVectorDB(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	f.embedder.model = "other-model"
	store, err = f.pipeline.LoadVectorDB(ctx)
	require.NoError(t, err)
	defer store.Close()

	assert.Contains(t, f.logs.String(), "level=WARN")
	assert.Contains(t, f.logs.String(), "stored_model=hash-64")
}

func TestLoadVectorDB_Missing(t *testing.T) {
	f := newFixture(t, speech)

	_, err := f.pipeline.LoadVectorDB(context.Background())
	require.ErrorIs(t, err, storage.ErrStoreNotFound)
}

func TestBuildVectorDB_FailureLeavesNoStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, speech)
	f.embedder.err = errors.New("embedding service down")

	_, _, err := f.pipeline.BuildVectorDB(ctx)
	require.Error(t, err)

	exists, err := f.backend.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBuildVectorDB_EmptyDocument(t *testing.T) {
	f := newFixture(t, "  \n\n  ")

	_, _, err := f.pipeline.BuildVectorDB(context.Background())
	require.ErrorIs(t, err, ErrNoChunks)
	assert.Equal(t, 0, f.embedder.calls)
}

func TestRebuild_ReplacesStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, speech)

	store, err := f.pipeline.OpenOrBuild(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	f.loader.doc = &loader.Document{ID: "speech.txt", Source: "speech.txt", Content: "A single short line."}
	store, result, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, 1, result.Chunks)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuiltStoreFindsVerbatimAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, speech)

	store, err := f.pipeline.OpenOrBuild(ctx)
	require.NoError(t, err)
	defer store.Close()

	results, err := store.Search(ctx, hashVector("When will the harbor lighthouse be rebuilt?"), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var contents []string
	for _, r := range results {
		contents = append(contents, r.Content)
	}
	assert.Contains(t, contents,
		"The harbor lighthouse will be rebuilt before winter, so ships can find the port again.")
}
