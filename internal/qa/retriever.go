// Package qa answers questions from the vector store and runs the
// interactive question loop.
package qa

import (
	"context"
	"fmt"

	"github.com/bull/speechqa/internal/llm"
	"github.com/bull/speechqa/internal/storage"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 2

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever returns the chunks most similar to a question.
type Retriever struct {
	embedder QueryEmbedder
	store    storage.Store
	k        int
}

// NewRetriever creates a retriever returning k chunks. A non-positive k
// selects DefaultK.
func NewRetriever(embedder QueryEmbedder, store storage.Store, k int) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{embedder: embedder, store: store, k: k}
}

// K returns the configured number of results.
func (r *Retriever) K() int {
	return r.k
}

// Retrieve returns min(k, stored chunks) chunks, most similar first.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]*storage.ScoredChunk, error) {
	return r.RetrieveK(ctx, question, r.k)
}

// RetrieveK is Retrieve with an explicit k.
func (r *Retriever) RetrieveK(ctx context.Context, question string, k int) ([]*storage.ScoredChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	results, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// Answer is a generated reply together with the chunks it was given.
type Answer struct {
	Question string
	Text     string
	Sources  []*storage.ScoredChunk
}

// Answerer retrieves context for a question and asks the model.
type Answerer struct {
	retriever *Retriever
	generator Generator
}

// NewAnswerer creates an Answerer.
func NewAnswerer(retriever *Retriever, generator Generator) *Answerer {
	return &Answerer{retriever: retriever, generator: generator}
}

// Retriever returns the underlying retriever.
func (a *Answerer) Retriever() *Retriever {
	return a.retriever
}

// Ask answers question using only the retrieved chunks as context.
func (a *Answerer) Ask(ctx context.Context, question string) (*Answer, error) {
	sources, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, len(sources))
	for i, source := range sources {
		contexts[i] = source.Content
	}

	text, err := a.generator.Generate(ctx, llm.BuildPrompt(question, contexts))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Answer{Question: question, Text: text, Sources: sources}, nil
}
