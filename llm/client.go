// Package llm abstracts the chat-completion and embedding providers used
// by the analysis pipeline and the docs crawler.
package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable     = errors.New("llm provider unavailable")
	ErrInvalidResponse = errors.New("llm provider returned invalid response")
)

// Request is a single chat completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string  // overrides the client default when set
	MaxTokens   int
	Temperature float64
	JSONMode    bool // ask the provider for a JSON object response
}

// Client generates completions. Implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder turns text into dense vectors for semantic search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
