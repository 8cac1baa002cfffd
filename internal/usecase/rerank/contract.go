package rerank

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// Completer produces the ranking completion.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}
