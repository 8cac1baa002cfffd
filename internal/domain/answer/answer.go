// Package answer holds the terminal answer model and per-question options.
package answer

import "fmt"

// Mode is the answering mode.
type Mode string

const (
	// ModeStrict answers only from retrieved context.
	ModeStrict Mode = "strict"
	// ModeHybrid marks an answer produced from general model knowledge
	// after the retrieved context was judged insufficient.
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string. Empty means strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("unknown answer mode %q", s)
	}
}

// Answer is the terminal output of both the chain and the agent.
type Answer struct {
	text       string
	sources    []string
	mode       Mode
	confidence float64
	usedTool   bool
	exhausted  bool
}

// New creates an Answer with the confidence clamped to [0,1].
func New(text string, sources []string, mode Mode, confidence float64, usedTool bool) Answer {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if mode == "" {
		mode = ModeStrict
	}
	return Answer{text: text, sources: sources, mode: mode, confidence: confidence, usedTool: usedTool}
}

// Text returns the answer text.
func (a *Answer) Text() string { return a.text }

// Sources returns the source identifiers the answer drew on.
func (a *Answer) Sources() []string { return a.sources }

// Mode returns the answering mode that produced the text.
func (a *Answer) Mode() Mode { return a.mode }

// Confidence returns the answer confidence in [0,1].
func (a *Answer) Confidence() float64 { return a.confidence }

// UsedTool reports whether a tool invocation contributed to the answer.
func (a *Answer) UsedTool() bool { return a.usedTool }

// Exhausted reports whether the agent's step budget ran out before a
// confident answer was reached; the text is then a best-effort guess.
func (a *Answer) Exhausted() bool { return a.exhausted }

// WithConfidence returns a copy with the confidence replaced (clamped).
func (a *Answer) WithConfidence(c float64) Answer {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	b := *a
	b.confidence = c
	return b
}

// WithUsedTool returns a copy with the tool flag set.
func (a *Answer) WithUsedTool() Answer {
	b := *a
	b.usedTool = true
	return b
}

// WithExhausted returns a copy flagged as a budget-exhausted best effort.
func (a *Answer) WithExhausted() Answer {
	b := *a
	b.exhausted = true
	return b
}
