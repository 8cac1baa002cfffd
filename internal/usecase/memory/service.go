// Package memory recalls past interactions for context and records new
// ones as summarized entries with age-decayed relevance.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	dommem "github.com/kailas-cloud/ragline/internal/domain/memory"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

const (
	defaultTopK       = 3
	defaultExpiry     = 30 * 24 * time.Hour
	defaultMaxEntries = 100

	// summaryKeepRunes caps a stored summary, answerPromptRunes caps how
	// much of the answer the summarization prompt sees.
	summaryKeepRunes  = 200
	answerPromptRunes = 500

	summaryTemperature = 0.3
	trimTimeout        = 10 * time.Second
)

const summarizePrompt = `请将以下问答交互总结为简洁的记忆片段（50-100字），包含关键信息点，便于后续检索。

问题：%s

回答：%s

摘要：`

// Options tunes recall width and retention.
type Options struct {
	TopK       int           // recall width, default 3
	Expiry     time.Duration // entry lifetime, default 30 days
	MaxEntries int           // retention cap, default 100
}

// Service recalls and records conversational memory. Wire it only when
// memory is enabled; callers treat a nil service as "no memory".
type Service struct {
	store  Store
	embed  Embedder
	llm    Completer
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a memory service. Non-positive options select the defaults.
func New(store Store, embed Embedder, llm Completer, opts Options, logger *zap.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.Expiry <= 0 {
		opts.Expiry = defaultExpiry
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	return &Service{store: store, embed: embed, llm: llm, opts: opts, logger: logger, now: time.Now}
}

// Relevant recalls the k entries most similar to the question, weighted
// down by age. Expired entries are dropped. A non-positive k selects the
// configured recall width.
func (s *Service) Relevant(ctx context.Context, question string, k int) ([]dommem.Match, error) {
	if k <= 0 {
		k = s.opts.TopK
	}

	emb, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("vectorize question: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	recalls, err := s.store.Relevant(ctx, emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}

	now := s.now()
	matches := make([]dommem.Match, 0, len(recalls))
	for i := range recalls {
		e := recalls[i].Entry()
		if m, ok := dommem.Score(e, recalls[i].Similarity(), now, s.opts.Expiry); ok {
			matches = append(matches, m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Weight() > matches[j].Weight()
	})

	s.logger.Debug("Recalled memories", zap.Int("count", len(matches)))
	return matches, nil
}

// ContextBlock renders recalled entries as the history block generation
// prompts prepend. Empty input renders empty.
func ContextBlock(matches []dommem.Match) string {
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, 0, len(matches)+1)
	parts = append(parts, "相关历史对话：")
	for i := range matches {
		e := matches[i].Entry()
		parts = append(parts, fmt.Sprintf("%d. 问题: %s\n   回答: %s\n   时间: %s",
			i+1, e.Question(), e.Answer(), e.CreatedAt().Format(time.RFC3339)))
	}
	return strings.Join(parts, "\n")
}

// Record summarizes a completed exchange and appends it to the store.
// Retention is enforced off the query path after a successful append.
func (s *Service) Record(ctx context.Context, question string, ans answer.Answer) error {
	summary := s.summarize(ctx, question, ans.Text())

	emb, err := s.embed.Embed(ctx, summary)
	if err != nil {
		metrics.MemoryRecordsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("vectorize summary: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	e, err := dommem.New(uuid.NewString(), question, summary, ans.Text(), s.now())
	if err != nil {
		metrics.MemoryRecordsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("build memory entry: %w", err)
	}
	if err := s.store.Append(ctx, e, emb.Embedding); err != nil {
		metrics.MemoryRecordsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("append memory: %w", err)
	}
	metrics.MemoryRecordsTotal.WithLabelValues("ok").Inc()

	go s.trim(context.WithoutCancel(ctx))
	return nil
}

func (s *Service) trim(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, trimTimeout)
	defer cancel()
	if _, err := s.store.Trim(ctx, s.opts.MaxEntries); err != nil {
		s.logger.Warn("Memory trim failed", zap.Error(err))
	}
}

// summarize asks the model for a short recall snippet. Failures fall back
// to a mechanical digest so recording never blocks on summarization.
func (s *Service) summarize(ctx context.Context, question, answer string) string {
	res, err := s.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:      fmt.Sprintf(summarizePrompt, question, truncate(answer, answerPromptRunes)),
		Temperature: summaryTemperature,
	})
	if err != nil {
		s.logger.Warn("Summary generation failed, using fallback", zap.Error(err))
		return fallbackSummary(question, answer)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	summary := strings.Trim(strings.TrimSpace(res.Text), `"'`)
	if summary == "" {
		return fallbackSummary(question, answer)
	}
	if runes := []rune(summary); len(runes) > summaryKeepRunes {
		summary = string(runes[:summaryKeepRunes]) + "..."
	}
	return summary
}

func fallbackSummary(question, answer string) string {
	return fmt.Sprintf("问题: %s... 回答: %s...", truncate(question, 50), truncate(answer, 50))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
