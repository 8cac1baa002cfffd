// Package ragchain orchestrates the retrieve → generate → tool-fallback
// answer pipeline for straightforward questions.
package ragchain

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
	"github.com/kailas-cloud/ragline/internal/domain/tool"
	"github.com/kailas-cloud/ragline/internal/metrics"
	"github.com/kailas-cloud/ragline/internal/usecase/generate"
)

// toolResultSimilarity scores the synthetic chunk a successful tool
// invocation contributes to the fused context.
const toolResultSimilarity = 0.9

// Service answers a question in one pass: retrieve context, generate, and
// when the answer signals "no answer found", invoke one tool and generate
// again over the fused context. Tool failures keep the pre-tool answer.
type Service struct {
	retriever Retriever
	generator Generator
	tools     Tools
	logger    *zap.Logger
}

// New creates a chain service. tools may be nil when no tools are wired;
// the fallback path is then skipped.
func New(retriever Retriever, generator Generator, tools Tools, logger *zap.Logger) *Service {
	return &Service{retriever: retriever, generator: generator, tools: tools, logger: logger}
}

// Query runs the chain for one question. memoryCtx is the recalled history
// block, empty when memory is disabled or found nothing.
func (s *Service) Query(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error) {
	docs, err := s.retriever.Retrieve(ctx, ask)
	if err != nil {
		return answer.Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	ans, err := s.generator.Generate(ctx, ask, docs, memoryCtx)
	if err != nil {
		return answer.Answer{}, err
	}

	if generate.IsNoAnswer(ans.Text()) && ask.EnableTool() && s.tools != nil {
		ans, err = s.toolFallback(ctx, ask, docs, memoryCtx, ans)
		if err != nil {
			return answer.Answer{}, err
		}
	}

	metrics.AnswersTotal.WithLabelValues(string(ans.Mode()), "chain").Inc()
	return ans, nil
}

// toolFallback invokes the selected tool once and regenerates over the
// fused context. Any tool-side failure returns the pre-tool answer.
func (s *Service) toolFallback(ctx context.Context, ask answer.Ask, docs []retrieval.Result, memoryCtx string, preTool answer.Answer) (answer.Answer, error) {
	t, ok := s.tools.Select(ask.Question())
	if !ok {
		return preTool, nil
	}

	res := s.tools.Invoke(ctx, t.Name(), ask.Question())
	if !res.OK() {
		s.logger.Warn("Tool invocation failed, keeping pre-tool answer",
			zap.String("tool", t.Name()), zap.String("reason", res.Err()))
		return preTool, nil
	}

	doc, err := toolResultDoc(&res)
	if err != nil {
		s.logger.Warn("Tool returned unusable payload", zap.String("tool", t.Name()), zap.Error(err))
		return preTool, nil
	}

	s.logger.Info("Tool fallback engaged, regenerating answer", zap.String("tool", t.Name()))
	ans, err := s.generator.Generate(ctx, ask, append(docs, doc), memoryCtx)
	if err != nil {
		return answer.Answer{}, err
	}
	return ans.WithUsedTool(), nil
}

// toolResultDoc wraps a successful tool payload as a context chunk.
func toolResultDoc(res *tool.Result) (retrieval.Result, error) {
	c, err := chunk.New(res.Source(), res.Payload(), chunk.LevelChunk, res.Source(), map[string]string{
		"source": res.Source(),
		"tool":   res.ToolName(),
	})
	if err != nil {
		return retrieval.Result{}, err
	}
	return retrieval.New(c, toolResultSimilarity), nil
}
