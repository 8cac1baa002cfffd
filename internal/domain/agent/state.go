// Package agent defines the state machine vocabulary for the reasoning loop:
// phases, decisions, transcript steps and the evolving loop state.
package agent

import "fmt"

// Phase is a node of the loop's state machine.
type Phase string

const (
	PhaseThinking  Phase = "thinking"
	PhaseActing    Phase = "acting"
	PhaseObserving Phase = "observing"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether the phase ends the loop.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// CanTransition reports whether moving from p to next is a legal edge.
// Legal edges: thinking→acting, acting→observing, observing→thinking,
// and any phase → done|failed.
func (p Phase) CanTransition(next Phase) bool {
	if next.Terminal() {
		return !p.Terminal()
	}
	switch p {
	case PhaseThinking:
		return next == PhaseActing
	case PhaseActing:
		return next == PhaseObserving
	case PhaseObserving:
		return next == PhaseThinking
	default:
		return false
	}
}

// ActionType names what the agent decided to do next.
type ActionType string

const (
	// ActionRetrieve searches the knowledge base.
	ActionRetrieve ActionType = "retrieve"
	// ActionGenerate drafts an answer from the gathered context.
	ActionGenerate ActionType = "generate"
	// ActionTool invokes an external tool.
	ActionTool ActionType = "tool_call"
	// ActionFinish accepts the best draft and ends the loop.
	ActionFinish ActionType = "finish"
)

// ParseActionType validates an action name coming out of a model response.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionRetrieve, ActionGenerate, ActionTool, ActionFinish:
		return ActionType(s), nil
	default:
		return "", fmt.Errorf("unknown agent action %q", s)
	}
}

// Decision is the output of one thinking step: the chosen action, its
// input, the model's stated reasoning and its confidence so far.
type Decision struct {
	action     ActionType
	input      string
	thought    string
	confidence float64
}

// NewDecision creates a Decision with the confidence clamped to [0,1].
func NewDecision(action ActionType, input, thought string, confidence float64) Decision {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Decision{action: action, input: input, thought: thought, confidence: confidence}
}

// Action returns the chosen action.
func (d *Decision) Action() ActionType { return d.action }

// Input returns the action input, e.g. a search query or tool argument.
func (d *Decision) Input() string { return d.input }

// Thought returns the reasoning text that accompanied the decision.
func (d *Decision) Thought() string { return d.thought }

// Confidence returns the model's stated confidence in [0,1].
func (d *Decision) Confidence() float64 { return d.confidence }

// Step is one completed act in the transcript: the reasoning that chose
// it, what was done, with what input, and what came back.
type Step struct {
	action      ActionType
	thought     string
	input       string
	observation string
}

// NewStep records a completed action and its observation.
func NewStep(action ActionType, thought, input, observation string) Step {
	return Step{action: action, thought: thought, input: input, observation: observation}
}

// Action returns the executed action.
func (s *Step) Action() ActionType { return s.action }

// Thought returns the reasoning that picked the action.
func (s *Step) Thought() string { return s.thought }

// Input returns the input the action ran with.
func (s *Step) Input() string { return s.input }

// Observation returns the observed result text.
func (s *Step) Observation() string { return s.observation }

// Draft is a candidate answer with the confidence the agent assigned to it.
type Draft struct {
	text       string
	confidence float64
}

// NewDraft creates a Draft with the confidence clamped to [0,1].
func NewDraft(text string, confidence float64) Draft {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Draft{text: text, confidence: confidence}
}

// Text returns the draft answer text.
func (d *Draft) Text() string { return d.text }

// Confidence returns the draft confidence in [0,1].
func (d *Draft) Confidence() float64 { return d.confidence }

// Validation is the outcome of checking a draft against the gathered
// evidence: a consistency verdict, a quality score and the validator's
// feedback.
type Validation struct {
	consistent bool
	score      float64
	feedback   string
}

// NewValidation creates a Validation with the score clamped to [0,1].
func NewValidation(consistent bool, score float64, feedback string) Validation {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Validation{consistent: consistent, score: score, feedback: feedback}
}

// Consistent reports whether the draft agreed with the evidence and the
// reasoning that produced it.
func (v *Validation) Consistent() bool { return v.consistent }

// Score returns the validation score in [0,1].
func (v *Validation) Score() float64 { return v.score }

// Feedback returns the validator's feedback text.
func (v *Validation) Feedback() string { return v.feedback }

// State is the loop's evolving state. Transitions produce copies so a
// decision function can stay pure over a snapshot.
type State struct {
	question      string
	phase         Phase
	iteration     int
	maxIterations int
	steps         []Step
	sources       []string
	retrievals    int
	toolCalls     int
	best          *Draft
}

// NewState starts a loop for the given question in the thinking phase.
func NewState(question string, maxIterations int) State {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return State{question: question, phase: PhaseThinking, maxIterations: maxIterations}
}

// Question returns the question the loop is answering.
func (s *State) Question() string { return s.question }

// Phase returns the current phase.
func (s *State) Phase() Phase { return s.phase }

// Iteration returns the number of completed think→act→observe rounds.
func (s *State) Iteration() int { return s.iteration }

// MaxIterations returns the loop's step budget.
func (s *State) MaxIterations() int { return s.maxIterations }

// Exhausted reports whether the step budget is spent.
func (s *State) Exhausted() bool { return s.iteration >= s.maxIterations }

// Steps returns the transcript of completed actions.
func (s *State) Steps() []Step { return s.steps }

// Sources returns the identifiers of evidence gathered so far.
func (s *State) Sources() []string { return s.sources }

// Retrievals returns how many retrieve actions have run.
func (s *State) Retrievals() int { return s.retrievals }

// ToolCalls returns how many tool actions have run.
func (s *State) ToolCalls() int { return s.toolCalls }

// BestDraft returns the highest-confidence draft seen so far, if any.
func (s *State) BestDraft() (Draft, bool) {
	if s.best == nil {
		return Draft{}, false
	}
	return *s.best, true
}

// WithPhase returns a copy in the given phase. Illegal transitions are
// reported as an error so the loop cannot silently skip a phase.
func (s *State) WithPhase(next Phase) (State, error) {
	if !s.phase.CanTransition(next) {
		return State{}, fmt.Errorf("illegal phase transition %s -> %s", s.phase, next)
	}
	c := s.clone()
	c.phase = next
	return c, nil
}

// NextIteration returns a copy with the round counter advanced.
func (s *State) NextIteration() State {
	c := s.clone()
	c.iteration++
	return c
}

// WithStep returns a copy with the step appended and the per-action
// counters advanced.
func (s *State) WithStep(step Step) State {
	c := s.clone()
	c.steps = append(c.steps, step)
	switch step.action {
	case ActionRetrieve:
		c.retrievals++
	case ActionTool:
		c.toolCalls++
	}
	return c
}

// WithSources returns a copy with the source identifiers appended.
func (s *State) WithSources(sources ...string) State {
	c := s.clone()
	c.sources = append(c.sources, sources...)
	return c
}

// WithDraft returns a copy remembering the draft if it beats the current
// best. A first draft always wins.
func (s *State) WithDraft(d Draft) State {
	c := s.clone()
	if c.best == nil || d.confidence > c.best.confidence {
		c.best = &d
	}
	return c
}

func (s *State) clone() State {
	c := *s
	c.steps = append([]Step(nil), s.steps...)
	c.sources = append([]string(nil), s.sources...)
	if s.best != nil {
		b := *s.best
		c.best = &b
	}
	return c
}
