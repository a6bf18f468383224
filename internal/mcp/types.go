// Package mcp exposes retrieval and question answering over the Model Context Protocol.
package mcp

// SearchContextInput defines the input parameters for the search_context tool.
type SearchContextInput struct {
	// Question is embedded and compared against the stored chunks.
	Question string `json:"question" jsonschema:"The question to find supporting passages for"`
	// K is the number of passages to return.
	K int `json:"k,omitempty" jsonschema:"Number of passages to return (default 2, at most 20)"`
}

// SearchContextOutput contains the retrieved passages.
type SearchContextOutput struct {
	Results []ContextResult `json:"results"`
	// Message provides informational context (e.g., "No passages stored").
	Message string `json:"message,omitempty"`
}

// ContextResult is one retrieved chunk.
type ContextResult struct {
	Index   int     `json:"index"`
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"The question to answer from the indexed document"`
}

// AskOutput contains the generated answer and the passages it was based on.
type AskOutput struct {
	Answer  string          `json:"answer"`
	Sources []ContextResult `json:"sources"`
}

// StatusInput defines the input parameters for the get_index_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the vector store.
type StatusOutput struct {
	Source         string `json:"source"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	TotalChunks    int    `json:"total_chunks"`
	BuiltAt        string `json:"built_at,omitempty"`
}
