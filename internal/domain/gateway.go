package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Completer is the shared LLM completion contract between layers.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Gateway combines embedding and completion. The composition root builds one;
// usecases depend on the narrow halves they need.
type Gateway interface {
	Embedder
	Completer
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding   []float32
	TotalTokens int
}

// CompletionRequest is a single prompt for the LLM gateway.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// CompletionResult carries the model output and token usage.
type CompletionResult struct {
	Text         string
	PromptTokens int
	TotalTokens  int
}
