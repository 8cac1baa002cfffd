// Package intent defines the question categories the router recognizes
// and the handling strategy each one maps to.
package intent

import "fmt"

// Category is a recognized question kind.
type Category string

const (
	// CategoryFactual is a lookup question answerable from indexed content.
	CategoryFactual Category = "factual"
	// CategoryComplexReasoning needs multi-step gathering and synthesis.
	CategoryComplexReasoning Category = "complex_reasoning"
	// CategoryToolCall asks for live or structured data a tool provides.
	CategoryToolCall Category = "tool_call"
	// CategoryConversational is chit-chat with no retrieval value.
	CategoryConversational Category = "conversational"
)

// ParseCategory validates a category string coming out of a model response.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryFactual, CategoryComplexReasoning, CategoryToolCall, CategoryConversational:
		return Category(s), nil
	default:
		return "", fmt.Errorf("unknown intent category %q", s)
	}
}

// Strategy names how a classified question is handled.
type Strategy string

const (
	// StrategyChain runs the single-pass retrieval chain.
	StrategyChain Strategy = "chain"
	// StrategyAgent runs the iterative reasoning loop.
	StrategyAgent Strategy = "agent"
)

// Intent is a classified question category with the classifier's confidence.
type Intent struct {
	category   Category
	confidence float64
}

// New creates an Intent with the confidence clamped to [0,1].
func New(category Category, confidence float64) Intent {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Intent{category: category, confidence: confidence}
}

// Fallback is the intent assumed when classification fails: factual at
// half confidence, so the question still flows through the chain.
func Fallback() Intent {
	return Intent{category: CategoryFactual, confidence: 0.5}
}

// Category returns the classified category.
func (i *Intent) Category() Category { return i.category }

// Confidence returns the classifier confidence in [0,1].
func (i *Intent) Confidence() float64 { return i.confidence }

// Strategy maps the category to its handling strategy. Multi-step
// categories go to the agent, everything else stays on the cheaper chain.
func (i *Intent) Strategy() Strategy {
	switch i.category {
	case CategoryComplexReasoning, CategoryToolCall:
		return StrategyAgent
	default:
		return StrategyChain
	}
}
