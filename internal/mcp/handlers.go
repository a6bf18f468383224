package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/speechqa/internal/storage"
)

const maxK = 20

var errEmptyQuestion = errors.New("question must not be empty")

func toResults(chunks []*storage.ScoredChunk) []ContextResult {
	results := make([]ContextResult, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, ContextResult{
			Index:   chunk.Index,
			Source:  chunk.Source,
			Content: chunk.Content,
			Score:   chunk.Score,
		})
	}
	return results
}

// makeSearchHandler creates the search_context tool handler.
// K defaults to the retriever's k and is capped at maxK.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchContextInput,
) (*mcp.CallToolResult, SearchContextOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchContextInput) (
		*mcp.CallToolResult, SearchContextOutput, error,
	) {
		question := strings.TrimSpace(input.Question)
		if question == "" {
			return nil, SearchContextOutput{}, errEmptyQuestion
		}
		k := input.K
		if k <= 0 {
			k = searcher.K()
		}
		k = min(k, maxK)

		chunks, err := searcher.RetrieveK(ctx, question, k)
		if err != nil {
			return nil, SearchContextOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(chunks) == 0 {
			return nil, SearchContextOutput{
				Results: []ContextResult{},
				Message: "No passages stored. Rebuild the index.",
			}, nil
		}
		return nil, SearchContextOutput{Results: toResults(chunks)}, nil
	}
}

// makeAskHandler creates the ask tool handler.
func makeAskHandler(asker Asker) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		question := strings.TrimSpace(input.Question)
		if question == "" {
			return nil, AskOutput{}, errEmptyQuestion
		}

		answer, err := asker.Ask(ctx, question)
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}
		return nil, AskOutput{
			Answer:  answer.Text,
			Sources: toResults(answer.Sources),
		}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(index IndexReader) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		info, err := index.Info(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("store_error: failed to read index info: %w", err)
		}
		count, err := index.Count(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("store_error: failed to count chunks: %w", err)
		}

		out := StatusOutput{
			Source:         info.Source,
			EmbeddingModel: info.EmbeddingModel,
			Dimension:      info.Dimension,
			TotalChunks:    count,
		}
		if !info.BuiltAt.IsZero() {
			out.BuiltAt = info.BuiltAt.UTC().Format(time.RFC3339)
		}
		return nil, out, nil
	}
}
