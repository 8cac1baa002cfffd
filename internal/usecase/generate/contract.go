package generate

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// Completer produces the answer completion.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}
