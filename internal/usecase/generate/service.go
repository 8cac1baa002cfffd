// Package generate produces strict and hybrid answers from retrieved
// context. A context that cannot answer yields a no-answer Answer, never
// an error.
package generate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// NoAnswerText is the strict-mode payload when the context cannot answer.
const NoAnswerText = "无法从提供的上下文中找到答案。"

// relevantContextRunes is the minimum joined context size treated as relevant.
const relevantContextRunes = 50

// generalKnowledgeConfidence grades answers produced without grounding context.
const generalKnowledgeConfidence = 0.5

const strictPrompt = `基于以下上下文信息回答问题。如果上下文中没有相关信息，请说明无法从提供的上下文中找到答案。

上下文信息：
%s

问题：%s

请提供准确、完整的答案：`

const hybridPrompt = `基于以下上下文信息回答问题。

上下文信息：
%s

问题：%s

回答规则：
1. 如果上下文中包含相关信息，优先基于上下文回答，并标注来源
2. 如果上下文中没有相关信息，但问题是关于通用知识的，可以使用你的通用知识回答，但需要明确说明"这是基于通用知识，不是来自知识库"
3. 如果问题既不在上下文中，也不是通用知识问题，请说明无法回答

请提供准确、完整的答案：`

// noAnswerKeywords mark a generation that found no answer in the context.
var noAnswerKeywords = []string{
	"无法从提供的上下文中找到答案",
	"无法找到相关信息",
	"抱歉，未找到相关信息",
	"不知道",
	"无法回答",
}

// IsNoAnswer reports whether the text signals that no answer was found.
func IsNoAnswer(text string) bool {
	for _, kw := range noAnswerKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Service renders answer prompts and grades the produced answer.
type Service struct {
	llm         Completer
	temperature float32
	maxTokens   int
}

// New creates a generate service.
func New(llm Completer) *Service {
	return &Service{llm: llm}
}

// WithSampling sets the generation sampling knobs. Zero values keep the
// provider defaults. A non-zero temperature also takes generation out of
// the deterministic completion cache.
func (s *Service) WithSampling(temperature float32, maxTokens int) *Service {
	s.temperature = temperature
	s.maxTokens = maxTokens
	return s
}

// Generate answers the question from the retrieved context and optional
// memory context. Strict questions without relevant context short-circuit
// to the no-answer payload without a model call. The hybrid general
// knowledge path is entered only when the caller allowed it AND the
// context was judged insufficient; only then is the answer marked hybrid.
func (s *Service) Generate(ctx context.Context, ask answer.Ask, docs []retrieval.Result, memoryCtx string) (answer.Answer, error) {
	relevant := contextRelevant(docs)

	if !relevant && !ask.AllowGeneralKnowledge() {
		return answer.New(NoAnswerText, nil, answer.ModeStrict, 0, false), nil
	}

	prompt := strictPrompt
	if ask.AllowGeneralKnowledge() && (!relevant || ask.Mode() == answer.ModeHybrid) {
		prompt = hybridPrompt
	}

	contextText := formatContext(docs)
	if memoryCtx != "" {
		contextText = memoryCtx + "\n\n" + contextText
	}

	res, err := s.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:      fmt.Sprintf(prompt, contextText, ask.Question()),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return answer.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	text := strings.TrimSpace(res.Text)
	if IsNoAnswer(text) {
		return answer.New(text, nil, answer.ModeStrict, 0, false), nil
	}
	if ask.AllowGeneralKnowledge() && !relevant {
		return answer.New(text, nil, answer.ModeHybrid, generalKnowledgeConfidence, false), nil
	}
	return answer.New(text, sources(docs), answer.ModeStrict, meanSimilarity(docs), false), nil
}

// contextRelevant applies the joined-length relevance heuristic.
func contextRelevant(docs []retrieval.Result) bool {
	total := 0
	for i := range docs {
		total += utf8.RuneCountInString(docs[i].Chunk().Text())
	}
	return total >= relevantContextRunes
}

// formatContext renders the numbered source blocks the prompts refer to.
func formatContext(docs []retrieval.Result) string {
	parts := make([]string, len(docs))
	for i := range docs {
		c := docs[i].Chunk()
		parts[i] = fmt.Sprintf("[来源 %d: %s]\n%s", i+1, sourceLabel(c, i+1), strings.TrimSpace(c.Text()))
	}
	return strings.Join(parts, "\n\n")
}

// sourceLabel prefers explicit source metadata, then the owning document.
func sourceLabel(c chunk.Chunk, ordinal int) string {
	if s := c.Metadata()["source"]; s != "" {
		return s
	}
	if id := c.SourceDocID(); id != "" {
		return id
	}
	return fmt.Sprintf("文档%d", ordinal)
}

// sources lists unique source labels in context order.
func sources(docs []retrieval.Result) []string {
	seen := make(map[string]bool, len(docs))
	out := make([]string, 0, len(docs))
	for i := range docs {
		label := sourceLabel(docs[i].Chunk(), i+1)
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

// meanSimilarity grades a context-grounded answer by its retrieval quality.
func meanSimilarity(docs []retrieval.Result) float64 {
	if len(docs) == 0 {
		return 0
	}
	var sum float64
	for i := range docs {
		sum += docs[i].Similarity()
	}
	return sum / float64(len(docs))
}
