package agent

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain"
	domagent "github.com/kailas-cloud/ragline/internal/domain/agent"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
	"github.com/kailas-cloud/ragline/internal/domain/tool"
)

// Completer runs the planning and validation prompts.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Retriever gathers scored context chunks, normally or over a widened pool.
type Retriever interface {
	Retrieve(ctx context.Context, ask answer.Ask) ([]retrieval.Result, error)
	RetrieveBroadened(ctx context.Context, ask answer.Ask) ([]retrieval.Result, error)
}

// Generator drafts an answer from the gathered context.
type Generator interface {
	Generate(ctx context.Context, ask answer.Ask, docs []retrieval.Result, memoryCtx string) (answer.Answer, error)
}

// Tools invokes a named tool and advertises what is registered.
type Tools interface {
	Invoke(ctx context.Context, name, input string) tool.Result
	Descriptions() string
}

// Reasoner proposes the next action over the loop state and judges drafts.
type Reasoner interface {
	Decide(ctx context.Context, st domagent.State, docs []retrieval.Result, previous string) (domagent.Decision, error)
	ValidateAnswer(ctx context.Context, question, reasoning, draft string, docs []retrieval.Result) domagent.Validation
}

// Executor performs a decided action against the outside world.
type Executor interface {
	Execute(ctx context.Context, dec domagent.Decision, ask answer.Ask, memoryCtx string, docs []retrieval.Result) (Observation, error)
	Broaden(ctx context.Context, ask answer.Ask) ([]retrieval.Result, error)
}

// Observation is what one executed action produced: a transcript line plus
// new evidence or a draft answer.
type Observation struct {
	Text  string
	Docs  []retrieval.Result
	Draft *answer.Answer
}
