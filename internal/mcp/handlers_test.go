package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/speechqa/internal/qa"
	"github.com/bull/speechqa/internal/storage"
)

var storedChunks = []*storage.ScoredChunk{
	{Chunk: &storage.Chunk{Index: 1, Source: "speech.txt", Content: "The harbor lighthouse will be rebuilt."}, Score: 0.9},
	{Chunk: &storage.Chunk{Index: 0, Source: "speech.txt", Content: "We meet by the river."}, Score: 0.4},
	{Chunk: &storage.Chunk{Index: 2, Source: "speech.txt", Content: "A new library opens."}, Score: 0.1},
}

type fakeSearcher struct {
	gotK int
	err  error
}

func (f *fakeSearcher) K() int { return 2 }

func (f *fakeSearcher) RetrieveK(ctx context.Context, question string, k int) ([]*storage.ScoredChunk, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return storedChunks[:min(k, len(storedChunks))], nil
}

type fakeAsker struct{}

func (fakeAsker) Ask(ctx context.Context, question string) (*qa.Answer, error) {
	return &qa.Answer{Question: question, Text: "Before winter.", Sources: storedChunks[:1]}, nil
}

type fakeIndex struct {
	healthErr error
}

func (fakeIndex) Info(ctx context.Context) (*storage.IndexInfo, error) {
	return &storage.IndexInfo{
		EmbeddingModel: "all-minilm",
		Dimension:      384,
		Chunks:         3,
		Source:         "speech.txt",
		BuiltAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (fakeIndex) Count(ctx context.Context) (int, error) { return 3, nil }

func (f fakeIndex) Health(ctx context.Context) error { return f.healthErr }

func TestSearchHandler(t *testing.T) {
	searcher := &fakeSearcher{}
	handler := makeSearchHandler(searcher)

	_, out, err := handler(context.Background(), nil, SearchContextInput{Question: "lighthouse?"})
	require.NoError(t, err)
	assert.Equal(t, 2, searcher.gotK)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "The harbor lighthouse will be rebuilt.", out.Results[0].Content)
	assert.Equal(t, 0.9, out.Results[0].Score)

	_, _, err = handler(context.Background(), nil, SearchContextInput{Question: "x", K: 500})
	require.NoError(t, err)
	assert.Equal(t, maxK, searcher.gotK)
}

func TestSearchHandlerErrors(t *testing.T) {
	_, _, err := makeSearchHandler(&fakeSearcher{})(context.Background(), nil, SearchContextInput{Question: "  "})
	require.ErrorIs(t, err, errEmptyQuestion)

	boom := errors.New("boom")
	_, _, err = makeSearchHandler(&fakeSearcher{err: boom})(context.Background(), nil, SearchContextInput{Question: "q"})
	require.ErrorIs(t, err, boom)
}

func TestAskHandler(t *testing.T) {
	_, out, err := makeAskHandler(fakeAsker{})(context.Background(), nil, AskInput{Question: "When?"})
	require.NoError(t, err)
	assert.Equal(t, "Before winter.", out.Answer)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, 1, out.Sources[0].Index)
}

func TestStatusHandler(t *testing.T) {
	_, out, err := makeStatusHandler(fakeIndex{})(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, StatusOutput{
		Source:         "speech.txt",
		EmbeddingModel: "all-minilm",
		Dimension:      384,
		TotalChunks:    3,
		BuiltAt:        "2026-01-02T03:04:05Z",
	}, out)
}

func TestServerOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	server := NewServer(&Config{Searcher: &fakeSearcher{}, Asker: fakeAsker{}, Index: fakeIndex{}})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_context", "ask", "get_index_status"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask",
		Arguments: map[string]any{"question": "When is the lighthouse rebuilt?"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out AskOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "Before winter.", out.Answer)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakeIndex{})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "connected", body.Store)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakeIndex{healthErr: errors.New("closed")})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMuxRoutes(t *testing.T) {
	server := NewServer(&Config{Searcher: &fakeSearcher{}, Asker: fakeAsker{}, Index: fakeIndex{}})
	mux := NewMux(server, fakeIndex{}, &HTTPHandlerOptions{Stateless: true})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "speechqa")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
