package embedding

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL is Ollama's OpenAI-compatible endpoint.
	DefaultBaseURL = "http://localhost:11434/v1"

	// DefaultAPIKey is sent when none is configured. Ollama ignores it but the
	// client requires one.
	DefaultAPIKey = "ollama"
)

// Client wraps the OpenAI client used for both embeddings and chat.
type Client struct {
	client *openai.Client
}

// NewClient creates a client for an OpenAI-compatible server at baseURL.
// Retries are left to the callers, which back off on rate limits themselves.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid base URL %q: expected http or https", baseURL)
	}
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}

	client := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., answer generation).
func (c *Client) Client() *openai.Client {
	return c.client
}
