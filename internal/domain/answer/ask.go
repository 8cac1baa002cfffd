package answer

import (
	"fmt"
	"unicode/utf8"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// Defaults and caps for per-question options. Zero values in Params fall
// back to the defaults; values beyond a cap are clamped to it.
const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.7
	DefaultRerankTopN          = 10
	DefaultConfidenceThreshold = 0.7
	DefaultMaxIterations       = 5

	MaxTopK          = 100
	MaxRerankTopN    = 50
	MaxAgentSteps    = 20
	MaxQuestionRunes = 4096
)

// Params carries the caller-supplied knobs for a single question.
// The zero value of every field selects the documented default.
type Params struct {
	Mode                  Mode
	AllowGeneralKnowledge bool
	EnableTool            *bool
	UseAgent              bool
	TopK                  int
	SimilarityThreshold   float64
	RerankTopN            int
	ConfidenceThreshold   float64
	MaxIterations         int
}

// Ask is a validated question with its effective options.
type Ask struct {
	question            string
	mode                Mode
	allowGeneral        bool
	enableTool          bool
	useAgent            bool
	topK                int
	similarityThreshold float64
	rerankTopN          int
	confidenceThreshold float64
	maxIterations       int
}

// NewAsk validates the question, fills defaults and clamps every option
// into its allowed range.
func NewAsk(question string, p Params) (Ask, error) {
	if question == "" {
		return Ask{}, fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(question) > MaxQuestionRunes {
		return Ask{}, fmt.Errorf("%w: question exceeds %d characters", domain.ErrInvalidRequest, MaxQuestionRunes)
	}

	mode, err := ParseMode(string(p.Mode))
	if err != nil {
		return Ask{}, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err)
	}

	topK := p.TopK
	switch {
	case topK < 0:
		return Ask{}, fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidRequest)
	case topK == 0:
		topK = DefaultTopK
	case topK > MaxTopK:
		topK = MaxTopK
	}

	threshold := p.SimilarityThreshold
	switch {
	case threshold < 0 || threshold > 1:
		return Ask{}, fmt.Errorf("%w: similarity_threshold must be in [0,1]", domain.ErrInvalidRequest)
	case threshold == 0:
		threshold = DefaultSimilarityThreshold
	}

	rerankTopN := p.RerankTopN
	switch {
	case rerankTopN < 0:
		return Ask{}, fmt.Errorf("%w: rerank_top_n must be positive", domain.ErrInvalidRequest)
	case rerankTopN == 0:
		rerankTopN = DefaultRerankTopN
	case rerankTopN > MaxRerankTopN:
		rerankTopN = MaxRerankTopN
	}

	confidence := p.ConfidenceThreshold
	switch {
	case confidence < 0 || confidence > 1:
		return Ask{}, fmt.Errorf("%w: confidence_threshold must be in [0,1]", domain.ErrInvalidRequest)
	case confidence == 0:
		confidence = DefaultConfidenceThreshold
	}

	iterations := p.MaxIterations
	switch {
	case iterations < 0:
		return Ask{}, fmt.Errorf("%w: max_iterations must be positive", domain.ErrInvalidRequest)
	case iterations == 0:
		iterations = DefaultMaxIterations
	case iterations > MaxAgentSteps:
		iterations = MaxAgentSteps
	}

	enableTool := true
	if p.EnableTool != nil {
		enableTool = *p.EnableTool
	}

	return Ask{
		question:            question,
		mode:                mode,
		allowGeneral:        p.AllowGeneralKnowledge,
		enableTool:          enableTool,
		useAgent:            p.UseAgent,
		topK:                topK,
		similarityThreshold: threshold,
		rerankTopN:          rerankTopN,
		confidenceThreshold: confidence,
		maxIterations:       iterations,
	}, nil
}

// Question returns the raw question text.
func (a *Ask) Question() string { return a.question }

// Mode returns the requested answering mode.
func (a *Ask) Mode() Mode { return a.mode }

// AllowGeneralKnowledge reports whether hybrid answers may fall back to
// general model knowledge.
func (a *Ask) AllowGeneralKnowledge() bool { return a.allowGeneral }

// EnableTool reports whether the tool fallback is allowed.
func (a *Ask) EnableTool() bool { return a.enableTool }

// UseAgent reports whether the agentic loop should answer instead of the chain.
func (a *Ask) UseAgent() bool { return a.useAgent }

// TopK returns the retrieval candidate count.
func (a *Ask) TopK() int { return a.topK }

// SimilarityThreshold returns the minimum similarity kept after retrieval.
func (a *Ask) SimilarityThreshold() float64 { return a.similarityThreshold }

// RerankTopN returns how many candidates are passed to the reranker.
func (a *Ask) RerankTopN() int { return a.rerankTopN }

// ConfidenceThreshold returns the agent's acceptance bar for a draft answer.
func (a *Ask) ConfidenceThreshold() float64 { return a.confidenceThreshold }

// MaxIterations returns the agent's step budget.
func (a *Ask) MaxIterations() int { return a.maxIterations }

// WithQuestion returns a copy asking a different question with the same options.
func (a *Ask) WithQuestion(question string) Ask {
	c := *a
	c.question = question
	return c
}

// WithTopK returns a copy with the retrieval candidate count replaced.
func (a *Ask) WithTopK(topK int) Ask {
	c := *a
	if topK < 1 {
		topK = 1
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	c.topK = topK
	return c
}

// WithSimilarityThreshold returns a copy with the retrieval floor replaced.
func (a *Ask) WithSimilarityThreshold(threshold float64) Ask {
	c := *a
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	c.similarityThreshold = threshold
	return c
}
