package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Who spoke?", []string{"First passage.", "Second passage."})

	expected := "\nUse ONLY the context below to answer the question.\n\n" +
		"Context:\nFirst passage.\n\nSecond passage.\n\n" +
		"Question:\nWho spoke?\n\n" +
		"Answer:\n"
	assert.Equal(t, expected, prompt)
}

func TestBuildPromptNoContext(t *testing.T) {
	prompt := BuildPrompt("q", nil)
	assert.Contains(t, prompt, "Context:\n\n\nQuestion:\nq\n")
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
	return &client
}

func TestGenerate(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "phi3",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "The speaker."}}]
		}`))
	})

	gen := NewGenerator(client, "")
	answer, err := gen.Generate(context.Background(), "prompt text")
	require.NoError(t, err)

	assert.Equal(t, "The speaker.", answer)
	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "prompt text", got.Messages[0].Content)
}

func TestGenerateNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"phi3","choices":[]}`))
	})

	_, err := NewGenerator(client, "phi3").Generate(context.Background(), "p")
	require.Error(t, err)
}

func TestGenerateServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	})

	_, err := NewGenerator(client, "missing").Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
}
