package chi

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain/answer"
	dommem "github.com/kailas-cloud/ragline/internal/domain/memory"
	healthuc "github.com/kailas-cloud/ragline/internal/usecase/health"
)

// Router answers one question end to end.
type Router interface {
	Route(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error)
}

// Memory recalls and records conversation history.
type Memory interface {
	Relevant(ctx context.Context, question string, k int) ([]dommem.Match, error)
	Record(ctx context.Context, question string, ans answer.Answer) error
}

// Health runs the readiness probes.
type Health interface {
	Check(ctx context.Context) healthuc.Report
}
