package router

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
)

const rewriteTemperature = 0.3

// Questions shorter than expandBelowTerms are expanded, longer than
// simplifyAboveTerms simplified. Between the two they pass unchanged.
const (
	expandBelowTerms   = 5
	simplifyAboveTerms = 20
)

const expandPrompt = `请将以下查询扩展为更全面的搜索查询，添加相关的同义词、关联词和上下文信息。
保持原查询的核心意图不变。

原始查询：%s

扩展后的查询：`

const simplifyPrompt = `请将以下复杂查询简化为核心搜索意图，去除冗余信息和修饰词。

原始查询：%s

简化后的查询：`

// Rephraser is the LLM-backed Rewriter: short questions gain related
// terms, long ones are reduced to their core intent.
type Rephraser struct {
	llm    Completer
	logger *zap.Logger
}

// NewRephraser creates a query rewriter.
func NewRephraser(llm Completer, logger *zap.Logger) *Rephraser {
	return &Rephraser{llm: llm, logger: logger}
}

// Rewrite reshapes the question for retrieval. Any failure, or an empty
// rewrite, returns the original question.
func (r *Rephraser) Rewrite(ctx context.Context, question string) string {
	var prompt string
	switch terms := termCount(question); {
	case terms < expandBelowTerms:
		prompt = fmt.Sprintf(expandPrompt, question)
	case terms > simplifyAboveTerms:
		prompt = fmt.Sprintf(simplifyPrompt, question)
	default:
		return question
	}

	res, err := r.llm.Complete(ctx, domain.CompletionRequest{Prompt: prompt, Temperature: rewriteTemperature})
	if err != nil {
		r.logger.Warn("Query rewrite failed, keeping original", zap.Error(err))
		return question
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	rewritten := strings.Trim(strings.Trim(strings.TrimSpace(res.Text), `"`), "'")
	if rewritten == "" {
		return question
	}
	if rewritten != question {
		r.logger.Info("Query rewritten", zap.String("from", question), zap.String("to", rewritten))
	}
	return rewritten
}

// termCount counts searchable terms: each CJK rune is a term of its own,
// a run of any other word characters is one term.
func termCount(s string) int {
	terms := 0
	inWord := false
	for _, r := range s {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			terms++
			inWord = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			inWord = false
		default:
			if !inWord {
				terms++
				inWord = true
			}
		}
	}
	return terms
}
