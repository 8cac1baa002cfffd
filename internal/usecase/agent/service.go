// Package agent answers hard questions with a bounded reasoning loop:
// think, act, observe, repeat until a draft validates or the budget ends.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domagent "github.com/kailas-cloud/ragline/internal/domain/agent"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

// shortCircuitScore ends the loop early when a consistent draft validates
// at or above it.
const shortCircuitScore = 0.9

// replanKeepRunes caps each recalled thought in the re-planning prompt.
const replanKeepRunes = 100

// noBestAnswerText is returned when the budget runs out with no draft at all.
const noBestAnswerText = "无法生成答案"

const replanTemplate = `之前的执行路径：
%s

失败原因：%s

问题：%s

请重新规划一个更好的执行路径，避免之前的错误。`

// Options toggle the loop's recovery strategies.
type Options struct {
	// Reretrieval broadens the context before drafting on low confidence.
	Reretrieval bool
	// Replanning rebuilds the reasoning prompt after an inconsistent draft.
	Replanning bool
}

// Service drives the thinking, acting and observing phases until a
// validated answer or the iteration budget ends the loop.
type Service struct {
	reasoner Reasoner
	executor Executor
	opts     Options
	logger   *zap.Logger
}

// New creates the loop service.
func New(reasoner Reasoner, executor Executor, opts Options, logger *zap.Logger) *Service {
	return &Service{reasoner: reasoner, executor: executor, opts: opts, logger: logger}
}

// Run answers the question within ask.MaxIterations() reasoning rounds.
// An exhausted budget returns the best draft seen, flagged, with error
// nil; only backend failures surface as errors.
func (s *Service) Run(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error) {
	st := domagent.NewState(ask.Question(), ask.MaxIterations())

	var (
		docs      []retrieval.Result
		best      *answer.Answer
		bestScore float64
		previous  string
		lastConf  = 0.5
	)

	for !st.Exhausted() {
		st = st.NextIteration()

		dec, err := s.reasoner.Decide(ctx, st, docs, previous)
		if err != nil {
			return answer.Answer{}, err
		}
		lastConf = dec.Confidence()

		drafting := dec.Action() == domagent.ActionGenerate || dec.Action() == domagent.ActionFinish

		// Low confidence with budget left: widen the context before drafting.
		if s.opts.Reretrieval && drafting && dec.Confidence() < ask.ConfidenceThreshold() && st.Iteration() < st.MaxIterations() {
			more, err := s.executor.Broaden(ctx, ask)
			if err != nil {
				return answer.Answer{}, err
			}
			grown := len(docs)
			docs = mergeDocs(docs, more)
			st = st.WithSources(sources(docs[grown:])...)
			st = st.WithStep(domagent.NewStep(domagent.ActionRetrieve, dec.Thought(), ask.Question(),
				fmt.Sprintf("扩大检索，新增 %d 个文档", len(more))))
			s.logger.Info("Broadened retrieval on low confidence",
				zap.Float64("confidence", dec.Confidence()),
				zap.Int("added", len(more)),
				zap.Int("iteration", st.Iteration()))
			continue
		}

		// A finish with no inline answer accepts the best validated draft.
		if dec.Action() == domagent.ActionFinish && strings.TrimSpace(dec.Input()) == "" && best != nil {
			if bestScore >= ask.ConfidenceThreshold() {
				st = st.WithStep(domagent.NewStep(domagent.ActionFinish, dec.Thought(), "", best.Text()))
				return s.finish(st, best.WithConfidence(bestScore))
			}
			st = st.WithStep(domagent.NewStep(domagent.ActionFinish, dec.Thought(), "", "最佳草稿置信度不足，继续推理"))
			continue
		}

		st, err = st.WithPhase(domagent.PhaseActing)
		if err != nil {
			return answer.Answer{}, err
		}

		obs, err := s.executor.Execute(ctx, dec, ask, memoryCtx, docs)
		if err != nil {
			return answer.Answer{}, err
		}

		st, err = st.WithPhase(domagent.PhaseObserving)
		if err != nil {
			return answer.Answer{}, err
		}

		if drafting && obs.Draft != nil {
			draft := *obs.Draft
			val := s.reasoner.ValidateAnswer(ctx, ask.Question(), dec.Thought(), draft.Text(), docs)

			if !val.Consistent() && s.opts.Replanning && st.Iteration() < st.MaxIterations() {
				st = st.WithStep(domagent.NewStep(dec.Action(), dec.Thought(), dec.Input(), "答案不一致，重新规划"))
				previous = replanPrompt(st.Steps(), val.Feedback(), ask.Question())
				s.logger.Info("Draft inconsistent, re-planning",
					zap.Float64("score", val.Score()),
					zap.Int("iteration", st.Iteration()))
				if st, err = st.WithPhase(domagent.PhaseThinking); err != nil {
					return answer.Answer{}, err
				}
				continue
			}

			st = st.WithDraft(domagent.NewDraft(draft.Text(), val.Score()))
			st = st.WithStep(domagent.NewStep(dec.Action(), dec.Thought(), dec.Input(), draft.Text()))
			if best == nil || val.Score() > bestScore {
				best = &draft
				bestScore = val.Score()
			}

			accepted := val.Consistent() &&
				(val.Score() >= shortCircuitScore ||
					(dec.Action() == domagent.ActionFinish && val.Score() >= ask.ConfidenceThreshold()))
			if accepted {
				return s.finish(st, draft.WithConfidence(val.Score()))
			}
		} else {
			grown := len(docs)
			docs = mergeDocs(docs, obs.Docs)
			st = st.WithSources(sources(docs[grown:])...)
			st = st.WithStep(domagent.NewStep(dec.Action(), dec.Thought(), dec.Input(), obs.Text))
			previous = fmt.Sprintf("%s\n动作: %s\n结果: %s", dec.Thought(), dec.Action(), obs.Text)
		}

		if st, err = st.WithPhase(domagent.PhaseThinking); err != nil {
			return answer.Answer{}, err
		}
	}

	return s.exhausted(st, ask, best, bestScore, lastConf)
}

// finish ends the loop with an accepted answer.
func (s *Service) finish(st domagent.State, ans answer.Answer) (answer.Answer, error) {
	done, err := st.WithPhase(domagent.PhaseDone)
	if err != nil {
		return answer.Answer{}, err
	}
	if done.ToolCalls() > 0 {
		ans = ans.WithUsedTool()
	}

	metrics.AgentIterations.Observe(float64(done.Iteration()))
	metrics.AnswersTotal.WithLabelValues(string(ans.Mode()), "agent").Inc()
	s.logger.Info("Agent loop finished",
		zap.Int("iterations", done.Iteration()),
		zap.Float64("confidence", ans.Confidence()),
		zap.Int("steps", len(done.Steps())))
	return ans, nil
}

// exhausted ends the loop on a spent budget with the best effort seen.
func (s *Service) exhausted(st domagent.State, ask answer.Ask, best *answer.Answer, bestScore, lastConf float64) (answer.Answer, error) {
	failed, err := st.WithPhase(domagent.PhaseFailed)
	if err != nil {
		return answer.Answer{}, err
	}

	text := noBestAnswerText
	conf := lastConf
	mode := ask.Mode()
	var srcs []string
	if best != nil {
		text = best.Text()
		conf = bestScore
		mode = best.Mode()
		srcs = best.Sources()
	} else {
		srcs = uniqueStrings(failed.Sources())
	}

	ans := answer.New(text, srcs, mode, conf, failed.ToolCalls() > 0)
	ans = ans.WithExhausted()

	metrics.AgentIterations.Observe(float64(failed.Iteration()))
	metrics.AnswersTotal.WithLabelValues(string(ans.Mode()), "agent").Inc()
	s.logger.Warn("Agent budget exhausted, returning best effort",
		zap.Int("iterations", failed.Iteration()),
		zap.Float64("confidence", ans.Confidence()),
		zap.Bool("drafted", best != nil))
	return ans, nil
}

// replanPrompt summarizes the last three steps into the carry-over prompt
// for the next thinking round.
func replanPrompt(steps []domagent.Step, failureReason, question string) string {
	from := len(steps) - 3
	if from < 0 {
		from = 0
	}
	lines := make([]string, 0, len(steps)-from)
	for i := range steps[from:] {
		step := steps[from+i]
		lines = append(lines, fmt.Sprintf("迭代 %d: %s", from+i+1, truncate(step.Thought(), replanKeepRunes)))
	}
	return fmt.Sprintf(replanTemplate, strings.Join(lines, "\n"), failureReason, question)
}

// mergeDocs appends new results, dropping chunks already gathered.
func mergeDocs(have, more []retrieval.Result) []retrieval.Result {
	seen := make(map[string]bool, len(have)+len(more))
	out := make([]retrieval.Result, 0, len(have)+len(more))
	for _, batch := range [][]retrieval.Result{have, more} {
		for _, d := range batch {
			id := d.Chunk().ID()
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, d)
		}
	}
	return out
}

// uniqueStrings deduplicates preserving first-seen order.
func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
