package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/intent"
)

const classifyTemperature = 0.1

const classifyPrompt = `请对以下查询进行意图分类。

查询：%s

可选的意图类型：
- factual: 简单的事实查询，可以直接从知识库中检索答案
- complex_reasoning: 需要多步推理的复杂问题，可能需要多次检索和逻辑推理
- tool_call: 需要调用外部工具（如搜索、数据库查询）的问题
- conversational: 对话式查询，可能需要上下文记忆

请以 JSON 格式返回分类结果，包含以下字段：
- intent: 意图类型（必须是上述类型之一）
- confidence: 置信度（0-1之间的浮点数）
- reasoning: 简要说明分类理由

返回格式：
{"intent": "factual", "confidence": 0.9, "reasoning": "这是一个简单的事实查询"}`

// Labeler is the LLM-backed Classifier.
type Labeler struct {
	llm    Completer
	logger *zap.Logger
}

// NewLabeler creates an intent classifier.
func NewLabeler(llm Completer, logger *zap.Logger) *Labeler {
	return &Labeler{llm: llm, logger: logger}
}

// Classify labels the question. Any failure falls back to a factual
// intent at half confidence so the question still gets answered.
func (l *Labeler) Classify(ctx context.Context, question string) intent.Intent {
	res, err := l.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:      fmt.Sprintf(classifyPrompt, question),
		Temperature: classifyTemperature,
	})
	if err != nil {
		l.logger.Warn("Intent classification failed, assuming factual", zap.Error(err))
		return intent.Fallback()
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	it, reasoning := parseIntent(res.Text)
	l.logger.Info("Intent classified",
		zap.String("intent", string(it.Category())),
		zap.Float64("confidence", it.Confidence()),
		zap.String("reasoning", reasoning))
	return it
}

type intentPayload struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// parseIntent reads the JSON verdict, tolerating fenced code blocks.
// Non-JSON output falls back to keyword matching; an unrecognized
// category keeps the stated confidence but counts as factual.
func parseIntent(text string) (intent.Intent, string) {
	var p intentPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &p); err != nil {
		return keywordIntent(text), "基于文本匹配的分类"
	}

	category, err := intent.ParseCategory(p.Intent)
	if err != nil {
		category = intent.CategoryFactual
	}
	confidence := 0.5
	if p.Confidence != nil {
		confidence = *p.Confidence
	}
	return intent.New(category, confidence), p.Reasoning
}

func keywordIntent(text string) intent.Intent {
	lower := strings.ToLower(text)
	category := intent.CategoryFactual
	switch {
	case strings.Contains(lower, "factual") || strings.Contains(lower, "事实"):
		category = intent.CategoryFactual
	case strings.Contains(lower, "complex") || strings.Contains(lower, "复杂") || strings.Contains(lower, "reasoning"):
		category = intent.CategoryComplexReasoning
	case strings.Contains(lower, "tool") || strings.Contains(lower, "工具"):
		category = intent.CategoryToolCall
	case strings.Contains(lower, "conversational") || strings.Contains(lower, "对话"):
		category = intent.CategoryConversational
	}
	return intent.New(category, 0.7)
}

// stripFences unwraps a ```json or ``` fenced block.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	marker := "```json"
	i := strings.Index(text, marker)
	if i < 0 {
		marker = "```"
		i = strings.Index(text, marker)
	}
	if i < 0 {
		return text
	}
	text = text[i+len(marker):]
	if j := strings.Index(text, "```"); j >= 0 {
		text = text[:j]
	}
	return strings.TrimSpace(text)
}
