package router

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/intent"
)

// Completer runs the rewriting and labeling prompts.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Rewriter reshapes a question for retrieval. Best-effort: it never
// fails, a broken rewrite is the original question.
type Rewriter interface {
	Rewrite(ctx context.Context, question string) string
}

// Classifier labels a question with an intent category.
type Classifier interface {
	Classify(ctx context.Context, question string) intent.Intent
}

// Chain runs the single-pass retrieval pipeline.
type Chain interface {
	Query(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error)
}

// Agent runs the iterative reasoning loop.
type Agent interface {
	Run(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error)
}
