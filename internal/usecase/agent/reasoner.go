package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	domagent "github.com/kailas-cloud/ragline/internal/domain/agent"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

const (
	// reasonTemperature is shared by the planning and validation prompts.
	reasonTemperature = 0.7
	// contextKeepRunes caps each document rendered into a prompt.
	contextKeepRunes = 500
	// defaultConfidence grades reasoning text with no recognizable signal.
	defaultConfidence = 0.7
	// fallbackValidationScore grades a draft when validation itself fails.
	fallbackValidationScore = 0.7
)

const decidePromptHeader = `你是一个智能助手，需要基于给定的上下文回答问题。

问题：%s

当前上下文：
%s

`

const decidePromptPrevious = `
之前的推理步骤：
%s

`

const decidePromptTools = `可用工具：
%s

`

const decidePromptFormat = `请按照以下格式进行推理：

思考（Thought）：分析当前情况，评估是否有足够的信息回答问题。如果没有，说明需要什么信息。
动作（Action）：选择下一步动作。可选动作：
- retrieve: 需要检索更多信息
- generate: 基于当前上下文生成答案
- tool_call: 需要调用工具（如搜索、数据库查询）
- finish: 已有满意的答案，结束推理

动作输入（Action Input）：如果是 retrieve，提供检索查询；如果是 generate 或 finish，提供答案（留空则自动生成）；如果是 tool_call，提供工具名称和参数（格式：工具名:参数）。

置信度（Confidence）：评估当前答案的置信度（0-1之间的浮点数）。

请按以下格式输出：
思考：...
动作：retrieve/generate/tool_call/finish
动作输入：...
置信度：0.8`

const validatePrompt = `请评估以下答案的质量和一致性。

问题：%s

推理过程：
%s

生成的答案：
%s

检索到的证据：
%s

请评估：
1. 答案是否与推理过程一致？
2. 答案是否被证据支持？
3. 答案质量评分（0-1）

请以 JSON 格式返回：
{
    "consistent": true/false,
    "score": 0.0-1.0,
    "reason": "评估理由"
}`

var (
	thoughtPattern     = regexp.MustCompile(`(?s)思考[：:]\s*(.+?)(?:动作|$)`)
	actionPattern      = regexp.MustCompile(`(?i)动作[：:]\s*(retrieve|generate|tool_call|finish)`)
	actionInputPattern = regexp.MustCompile(`(?s)动作输入[：:]\s*(.+?)(?:置信度|$)`)

	confidencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`置信度[：:]\s*([0-9.]+)`),
		regexp.MustCompile(`(?i)confidence[：:]\s*([0-9.]+)`),
		regexp.MustCompile(`(?i)confidence[：:]\s*(\d+)%`),
		regexp.MustCompile(`(\d+\.\d+)\s*分`),
	}
)

var (
	uncertainWords = []string{"不确定", "不清楚", "unknown", "uncertain"}
	hedgingWords   = []string{"可能", "maybe", "perhaps"}
	certainWords   = []string{"确定", "certain", "sure", "definitely"}
)

// Engine is the LLM-backed Reasoner: it renders the loop state into the
// planning prompt and parses the 思考/动作/置信度 sections back out.
type Engine struct {
	llm    Completer
	tools  Tools
	logger *zap.Logger
}

// NewEngine creates a reasoning engine. tools may be nil; the planning
// prompt then omits the tool list.
func NewEngine(llm Completer, tools Tools, logger *zap.Logger) *Engine {
	return &Engine{llm: llm, tools: tools, logger: logger}
}

// Decide proposes the next action for the current loop state. previous
// carries the reasoning summary of earlier rounds, empty on the first.
func (e *Engine) Decide(ctx context.Context, st domagent.State, docs []retrieval.Result, previous string) (domagent.Decision, error) {
	res, err := e.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:      e.decidePrompt(st.Question(), docs, previous),
		Temperature: reasonTemperature,
	})
	if err != nil {
		return domagent.Decision{}, fmt.Errorf("reason about next action: %w", err)
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	dec := parseDecision(res.Text)
	e.logger.Debug("Reasoning step parsed",
		zap.String("action", string(dec.Action())),
		zap.Float64("confidence", dec.Confidence()),
		zap.Int("iteration", st.Iteration()))
	return dec, nil
}

// ValidateAnswer judges a draft against the question, the reasoning that
// produced it and the gathered evidence. A validation failure passes the
// draft through instead of ending the loop.
func (e *Engine) ValidateAnswer(ctx context.Context, question, reasoning, draft string, docs []retrieval.Result) domagent.Validation {
	res, err := e.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:      fmt.Sprintf(validatePrompt, question, reasoning, draft, formatContext(docs)),
		Temperature: reasonTemperature,
	})
	if err != nil {
		e.logger.Warn("Answer validation failed, passing draft through", zap.Error(err))
		return domagent.NewValidation(true, fallbackValidationScore, "验证过程出错: "+err.Error())
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	v := parseValidation(res.Text)
	e.logger.Info("Answer validated",
		zap.Bool("consistent", v.Consistent()),
		zap.Float64("score", v.Score()))
	return v
}

func (e *Engine) decidePrompt(question string, docs []retrieval.Result, previous string) string {
	var b strings.Builder
	fmt.Fprintf(&b, decidePromptHeader, question, formatContext(docs))
	if previous != "" {
		fmt.Fprintf(&b, decidePromptPrevious, previous)
	}
	if e.tools != nil {
		if d := e.tools.Descriptions(); d != "" {
			fmt.Fprintf(&b, decidePromptTools, d)
		}
	}
	b.WriteString(decidePromptFormat)
	return b.String()
}

// parseDecision extracts the structured sections of a reasoning response.
// Anything unparseable degrades to a generate action, never an error.
func parseDecision(text string) domagent.Decision {
	action := domagent.ActionGenerate
	if m := actionPattern.FindStringSubmatch(text); m != nil {
		if a, err := domagent.ParseActionType(strings.ToLower(m[1])); err == nil {
			action = a
		}
	}

	var thought, input string
	if m := thoughtPattern.FindStringSubmatch(text); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	if m := actionInputPattern.FindStringSubmatch(text); m != nil {
		input = strings.TrimSpace(m[1])
	}

	return domagent.NewDecision(action, input, thought, extractConfidence(text))
}

// extractConfidence pulls an explicit confidence number out of reasoning
// text, falling back to keyword estimates. The uncertain group is checked
// first: "不确定" contains "确定".
func extractConfidence(text string) float64 {
	for _, p := range confidencePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if strings.Contains(m[0], "%") || v > 1 {
			v /= 100
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v
	}

	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, uncertainWords):
		return 0.3
	case containsAny(lower, hedgingWords):
		return 0.5
	case containsAny(lower, certainWords):
		return 0.9
	}
	return defaultConfidence
}

type validationPayload struct {
	Consistent *bool    `json:"consistent"`
	Score      *float64 `json:"score"`
	Reason     string   `json:"reason"`
}

// parseValidation reads the JSON verdict, tolerating fenced code blocks.
// Non-JSON output falls back to substring matching on 不一致.
func parseValidation(text string) domagent.Validation {
	var p validationPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &p); err != nil {
		lower := strings.ToLower(text)
		consistent := !strings.Contains(lower, "不一致") && !strings.Contains(lower, "inconsistent")
		score := 0.3
		if consistent {
			score = 0.7
		}
		return domagent.NewValidation(consistent, score, "基于文本匹配的验证")
	}

	consistent := true
	if p.Consistent != nil {
		consistent = *p.Consistent
	}
	score := fallbackValidationScore
	if p.Score != nil {
		score = *p.Score
	}
	return domagent.NewValidation(consistent, score, p.Reason)
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

// formatContext renders the numbered 文档 blocks the prompts cite.
func formatContext(docs []retrieval.Result) string {
	parts := make([]string, len(docs))
	for i := range docs {
		parts[i] = fmt.Sprintf("[文档%d]\n%s", i+1, truncate(docs[i].Chunk().Text(), contextKeepRunes))
	}
	return strings.Join(parts, "\n\n")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
