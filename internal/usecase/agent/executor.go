package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domagent "github.com/kailas-cloud/ragline/internal/domain/agent"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// toolEvidenceSimilarity scores the synthetic chunk a successful tool call
// contributes to the gathered context.
const toolEvidenceSimilarity = 0.9

// Runner is the Executor over the real retriever, generator and tools.
type Runner struct {
	retriever Retriever
	generator Generator
	tools     Tools
	logger    *zap.Logger
}

// NewRunner creates an action executor. tools may be nil when none are wired.
func NewRunner(retriever Retriever, generator Generator, tools Tools, logger *zap.Logger) *Runner {
	return &Runner{retriever: retriever, generator: generator, tools: tools, logger: logger}
}

// Execute performs the decided action. Retrieval and generation failures
// surface as errors; tool failures become failed observations.
func (r *Runner) Execute(ctx context.Context, dec domagent.Decision, ask answer.Ask, memoryCtx string, docs []retrieval.Result) (Observation, error) {
	switch dec.Action() {
	case domagent.ActionRetrieve:
		return r.retrieve(ctx, dec, ask)
	case domagent.ActionGenerate, domagent.ActionFinish:
		return r.draft(ctx, dec, ask, memoryCtx, docs)
	case domagent.ActionTool:
		return r.toolCall(ctx, dec)
	default:
		return Observation{Text: fmt.Sprintf("未知动作: %s", dec.Action())}, nil
	}
}

// Broaden widens the retrieval pool for the re-planning path.
func (r *Runner) Broaden(ctx context.Context, ask answer.Ask) ([]retrieval.Result, error) {
	docs, err := r.retriever.RetrieveBroadened(ctx, ask)
	if err != nil {
		return nil, fmt.Errorf("broaden retrieval: %w", err)
	}
	return docs, nil
}

func (r *Runner) retrieve(ctx context.Context, dec domagent.Decision, ask answer.Ask) (Observation, error) {
	query := strings.TrimSpace(dec.Input())
	if query == "" {
		query = ask.Question()
	}

	docs, err := r.retriever.Retrieve(ctx, ask.WithQuestion(query))
	if err != nil {
		return Observation{}, fmt.Errorf("retrieve context: %w", err)
	}

	r.logger.Debug("Retrieve action finished", zap.String("query", query), zap.Int("hits", len(docs)))
	return Observation{Text: fmt.Sprintf("检索到 %d 个相关文档", len(docs)), Docs: docs}, nil
}

// draft produces a candidate answer: the decision may carry it inline,
// otherwise the generator runs over the gathered context.
func (r *Runner) draft(ctx context.Context, dec domagent.Decision, ask answer.Ask, memoryCtx string, docs []retrieval.Result) (Observation, error) {
	if text := strings.TrimSpace(dec.Input()); text != "" {
		inline := answer.New(text, sources(docs), ask.Mode(), dec.Confidence(), false)
		return Observation{Text: text, Draft: &inline}, nil
	}

	ans, err := r.generator.Generate(ctx, ask, docs, memoryCtx)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Text: ans.Text(), Draft: &ans}, nil
}

func (r *Runner) toolCall(ctx context.Context, dec domagent.Decision) (Observation, error) {
	if r.tools == nil {
		return Observation{Text: "工具调用失败: 未注册任何工具"}, nil
	}

	name, params := splitToolInput(dec.Input())
	res := r.tools.Invoke(ctx, name, params)
	if !res.OK() {
		r.logger.Warn("Tool call failed", zap.String("tool", name), zap.String("reason", res.Err()))
		return Observation{Text: "工具调用失败: " + res.Err()}, nil
	}

	c, err := chunk.New(res.Source(), res.Payload(), chunk.LevelChunk, res.Source(), map[string]string{
		"source": res.Source(),
		"tool":   res.ToolName(),
	})
	if err != nil {
		r.logger.Warn("Tool returned unusable payload", zap.String("tool", name), zap.Error(err))
		return Observation{Text: "工具调用失败: " + err.Error()}, nil
	}

	r.logger.Debug("Tool call finished", zap.String("tool", res.ToolName()))
	return Observation{
		Text: res.Payload(),
		Docs: []retrieval.Result{retrieval.New(c, toolEvidenceSimilarity)},
	}, nil
}

// splitToolInput parses the 工具名:参数 form; everything after the first
// colon is the parameter string.
func splitToolInput(input string) (name, params string) {
	name, params, _ = strings.Cut(input, ":")
	return strings.TrimSpace(name), strings.TrimSpace(params)
}

// sources lists the distinct source documents behind the results, in order.
func sources(docs []retrieval.Result) []string {
	seen := make(map[string]bool, len(docs))
	out := make([]string, 0, len(docs))
	for i := range docs {
		id := docs[i].Chunk().SourceDocID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
