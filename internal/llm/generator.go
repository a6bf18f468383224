// Package llm produces answers from a chat model given retrieved context.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultModel is the Ollama chat model used when none is configured.
const DefaultModel = "phi3"

const promptTemplate = `
Use ONLY the context below to answer the question.

Context:
%s

Question:
%s

Answer:
`

// BuildPrompt places the retrieved passages, separated by blank lines, ahead of
// the question.
func BuildPrompt(question string, contexts []string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(contexts, "\n\n"), question)
}

// Generator sends a prompt as a single user message and returns the reply.
type Generator struct {
	client *openai.Client
	model  string
}

// NewGenerator creates a generator with the given OpenAI-compatible client.
func NewGenerator(client *openai.Client, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		client: client,
		model:  model,
	}
}

// Model returns the chat model name.
func (g *Generator) Model() string {
	return g.model
}

// Generate returns the model's reply to prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
