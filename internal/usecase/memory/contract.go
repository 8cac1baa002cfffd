package memory

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain"
	dommem "github.com/kailas-cloud/ragline/internal/domain/memory"
)

// Embedder vectorizes questions and interaction summaries.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Completer produces interaction summaries.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Store persists memory entries and recalls them by vector similarity.
type Store interface {
	Append(ctx context.Context, e dommem.Entry, vector []float32) error
	Relevant(ctx context.Context, vector []float32, topK int) ([]dommem.Recall, error)
	Trim(ctx context.Context, max int) (int, error)
}
