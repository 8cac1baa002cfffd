// Package router sends each question down the cheapest pipeline that can
// answer it: rewrite, label the intent, then dispatch to the chain or
// the reasoning agent.
package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/intent"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

// Per-intent retrieval tuning: reasoning questions read a doubled pool,
// tool questions only a sliver of context.
const (
	complexTopKFactor = 2
	toolCallTopK      = 3
)

// Options toggle the preprocessing stages.
type Options struct {
	// Rewrite reshapes the question before classification.
	Rewrite bool
	// Classify labels the intent; disabled, every question counts as factual.
	Classify bool
}

// Service is the query router over the two answer pipelines.
type Service struct {
	rewriter   Rewriter
	classifier Classifier
	chain      Chain
	agent      Agent
	opts       Options
	logger     *zap.Logger
}

// New creates the router.
func New(rewriter Rewriter, classifier Classifier, chain Chain, agent Agent, opts Options, logger *zap.Logger) *Service {
	return &Service{rewriter: rewriter, classifier: classifier, chain: chain, agent: agent, opts: opts, logger: logger}
}

// Route answers the question over the pipeline its intent calls for.
// Rewriting and classification are best-effort; only the chosen
// pipeline's failure surfaces as an error.
func (s *Service) Route(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error) {
	original := ask.Question()
	if s.opts.Rewrite {
		if rewritten := s.rewriter.Rewrite(ctx, original); rewritten != original {
			ask = ask.WithQuestion(rewritten)
		}
	}

	it := intent.New(intent.CategoryFactual, 1)
	if s.opts.Classify {
		it = s.classifier.Classify(ctx, ask.Question())
	}

	ask = tuneForIntent(ask, it.Category())

	strategy := it.Strategy()
	if ask.UseAgent() {
		strategy = intent.StrategyAgent
	}

	metrics.RouteDecisionsTotal.WithLabelValues(string(it.Category()), string(strategy)).Inc()
	s.logger.Info("Question routed",
		zap.String("intent", string(it.Category())),
		zap.Float64("confidence", it.Confidence()),
		zap.String("strategy", string(strategy)),
		zap.Bool("rewritten", ask.Question() != original))

	if strategy == intent.StrategyAgent {
		return s.agent.Run(ctx, ask, memoryCtx)
	}
	return s.chain.Query(ctx, ask, memoryCtx)
}

// tuneForIntent adjusts the retrieval knobs per category.
func tuneForIntent(ask answer.Ask, category intent.Category) answer.Ask {
	switch category {
	case intent.CategoryComplexReasoning:
		return ask.WithTopK(ask.TopK() * complexTopKFactor)
	case intent.CategoryToolCall:
		return ask.WithTopK(toolCallTopK)
	default:
		return ask
	}
}
