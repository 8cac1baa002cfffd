// Package rerank reorders retrieval candidates with an LLM relevance pass.
package rerank

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

// DefaultTimeout bounds a single ranking completion.
const DefaultTimeout = 10 * time.Second

// docKeepRunes caps how much of each candidate the ranking prompt sees.
const docKeepRunes = 500

const rankPrompt = `请根据以下查询，对文档进行相关性排序，返回最相关的文档索引（从0开始）。

查询：%s

文档列表：
%s

请按照相关性从高到低排序，返回文档索引列表（用逗号分隔）。
例如：2,0,1,3,4

只返回索引列表，不要其他内容：`

// Service reorders retrieval candidates by asking the LLM for a relevance
// ranking. Ranking failures fall back to similarity order so retrieval
// degrades instead of breaking the request.
type Service struct {
	llm     Completer
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a rerank service. A non-positive timeout selects DefaultTimeout.
func New(llm Completer, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{llm: llm, timeout: timeout, logger: logger}
}

// Rerank returns at most topN candidates in model relevance order. A set
// that already fits topN keeps its similarity order and no model call is
// made.
func (s *Service) Rerank(ctx context.Context, query string, cands []retrieval.Result, topN int) ([]retrieval.Result, error) {
	if topN <= 0 {
		return nil, nil
	}
	if len(cands) <= topN {
		return cands, nil
	}

	rankCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.llm.Complete(rankCtx, domain.CompletionRequest{
		Prompt: fmt.Sprintf(rankPrompt, query, formatDocs(cands)),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rerank: %w", ctx.Err())
		}
		metrics.RerankFallbacksTotal.Inc()
		s.logger.Warn("Rerank failed, keeping similarity order", zap.Error(err))
		return cands[:topN], nil
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	order := parseOrder(res.Text, len(cands))
	if len(order) == 0 {
		metrics.RerankFallbacksTotal.Inc()
		s.logger.Warn("Rerank returned no usable indices", zap.String("response", res.Text))
		return cands[:topN], nil
	}

	ranked := make([]retrieval.Result, 0, topN)
	for pos, idx := range order {
		if len(ranked) == topN {
			break
		}
		score := float64(len(order)-pos) / float64(len(order))
		ranked = append(ranked, cands[idx].WithRerankScore(score))
	}
	return ranked, nil
}

// formatDocs renders the numbered candidate list the ranking prompt refers to.
func formatDocs(cands []retrieval.Result) string {
	parts := make([]string, len(cands))
	for i := range cands {
		parts[i] = fmt.Sprintf("[文档%d]\n%s", i, truncate(cands[i].Chunk().Text(), docKeepRunes))
	}
	return strings.Join(parts, "\n\n")
}

var indexRe = regexp.MustCompile(`\d+`)

// parseOrder extracts a zero-based candidate ordering from the model
// response. Out-of-range indices are dropped, duplicates keep their first
// position, and candidates the model omitted are appended in similarity
// order.
func parseOrder(text string, n int) []int {
	seen := make(map[int]bool, n)
	order := make([]int, 0, n)
	for _, m := range indexRe.FindAllString(text, -1) {
		idx, err := strconv.Atoi(m)
		if err != nil || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	if len(order) == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
