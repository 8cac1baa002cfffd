package ragchain

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
	"github.com/kailas-cloud/ragline/internal/domain/tool"
)

// Retriever supplies scored context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, ask answer.Ask) ([]retrieval.Result, error)
}

// Generator produces an answer from retrieved context.
type Generator interface {
	Generate(ctx context.Context, ask answer.Ask, docs []retrieval.Result, memoryCtx string) (answer.Answer, error)
}

// Tools selects and invokes external tools for the fallback path.
type Tools interface {
	Select(question string) (tool.Tool, bool)
	Invoke(ctx context.Context, name, input string) tool.Result
}
