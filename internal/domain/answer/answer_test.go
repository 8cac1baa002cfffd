package answer

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragline/internal/domain"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	if err != nil || m != ModeStrict {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	m, err = ParseMode("hybrid")
	if err != nil || m != ModeHybrid {
		t.Errorf("ParseMode(hybrid) = %v, %v", m, err)
	}
	if _, err := ParseMode("loose"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestNew_ClampsConfidence(t *testing.T) {
	a := New("text", nil, ModeStrict, 1.7, false)
	if a.Confidence() != 1 {
		t.Errorf("Confidence() = %v, want 1", a.Confidence())
	}
	a = New("text", nil, ModeStrict, -0.3, false)
	if a.Confidence() != 0 {
		t.Errorf("Confidence() = %v, want 0", a.Confidence())
	}
}

func TestNew_EmptyModeDefaultsStrict(t *testing.T) {
	a := New("text", nil, "", 0.5, false)
	if a.Mode() != ModeStrict {
		t.Errorf("Mode() = %v, want strict", a.Mode())
	}
}

func TestWithUsedTool(t *testing.T) {
	a := New("text", []string{"doc-1"}, ModeStrict, 0.8, false)
	b := a.WithUsedTool()
	if a.UsedTool() {
		t.Error("original answer should not be mutated")
	}
	if !b.UsedTool() {
		t.Error("WithUsedTool should set the flag")
	}
	if b.Text() != "text" || b.Sources()[0] != "doc-1" {
		t.Error("WithUsedTool should preserve text and sources")
	}
}

func TestWithExhausted(t *testing.T) {
	a := New("guess", nil, ModeStrict, 0.4, true)
	b := a.WithExhausted()
	if a.Exhausted() {
		t.Error("original answer should not be mutated")
	}
	if !b.Exhausted() {
		t.Error("WithExhausted should set the flag")
	}
	if !b.UsedTool() || b.Confidence() != 0.4 {
		t.Error("WithExhausted should preserve the other fields")
	}
}

func TestNewAsk_Defaults(t *testing.T) {
	ask, err := NewAsk("what is the indexing latency?", Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ask.Mode() != ModeStrict {
		t.Errorf("Mode() = %v, want strict", ask.Mode())
	}
	if ask.AllowGeneralKnowledge() {
		t.Error("AllowGeneralKnowledge() should default to false")
	}
	if !ask.EnableTool() {
		t.Error("EnableTool() should default to true")
	}
	if ask.UseAgent() {
		t.Error("UseAgent() should default to false")
	}
	if ask.TopK() != DefaultTopK {
		t.Errorf("TopK() = %d, want %d", ask.TopK(), DefaultTopK)
	}
	if ask.SimilarityThreshold() != DefaultSimilarityThreshold {
		t.Errorf("SimilarityThreshold() = %v", ask.SimilarityThreshold())
	}
	if ask.RerankTopN() != DefaultRerankTopN {
		t.Errorf("RerankTopN() = %d", ask.RerankTopN())
	}
	if ask.ConfidenceThreshold() != DefaultConfidenceThreshold {
		t.Errorf("ConfidenceThreshold() = %v", ask.ConfidenceThreshold())
	}
	if ask.MaxIterations() != DefaultMaxIterations {
		t.Errorf("MaxIterations() = %d", ask.MaxIterations())
	}
}

func TestNewAsk_EmptyQuestion(t *testing.T) {
	_, err := NewAsk("", Params{})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestNewAsk_QuestionTooLong(t *testing.T) {
	_, err := NewAsk(strings.Repeat("q", MaxQuestionRunes+1), Params{})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestNewAsk_ClampsTopK(t *testing.T) {
	ask, err := NewAsk("q", Params{TopK: MaxTopK + 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ask.TopK() != MaxTopK {
		t.Errorf("TopK() = %d, want %d", ask.TopK(), MaxTopK)
	}
}

func TestNewAsk_NegativeTopK(t *testing.T) {
	_, err := NewAsk("q", Params{TopK: -1})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestNewAsk_ThresholdOutOfRange(t *testing.T) {
	for _, v := range []float64{-0.1, 1.1} {
		if _, err := NewAsk("q", Params{SimilarityThreshold: v}); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("threshold %v: error = %v, want ErrInvalidRequest", v, err)
		}
	}
}

func TestNewAsk_InvalidMode(t *testing.T) {
	_, err := NewAsk("q", Params{Mode: "loose"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestNewAsk_DisableTool(t *testing.T) {
	off := false
	ask, err := NewAsk("q", Params{EnableTool: &off})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ask.EnableTool() {
		t.Error("EnableTool() = true, want false")
	}
}

func TestNewAsk_ClampsMaxIterations(t *testing.T) {
	ask, err := NewAsk("q", Params{MaxIterations: MaxAgentSteps * 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ask.MaxIterations() != MaxAgentSteps {
		t.Errorf("MaxIterations() = %d, want %d", ask.MaxIterations(), MaxAgentSteps)
	}
}

func TestAsk_WithQuestion(t *testing.T) {
	ask, _ := NewAsk("original", Params{TopK: 7})
	rewritten := ask.WithQuestion("rewritten")
	if ask.Question() != "original" {
		t.Error("original ask should not be mutated")
	}
	if rewritten.Question() != "rewritten" {
		t.Errorf("Question() = %q", rewritten.Question())
	}
	if rewritten.TopK() != 7 {
		t.Error("WithQuestion should preserve options")
	}
}

func TestAsk_WithTopK(t *testing.T) {
	ask, _ := NewAsk("q", Params{})
	widened := ask.WithTopK(DefaultTopK * 4)
	if widened.TopK() != DefaultTopK*4 {
		t.Errorf("TopK() = %d", widened.TopK())
	}
	if ask.TopK() != DefaultTopK {
		t.Error("original ask should not be mutated")
	}
	if floor := ask.WithTopK(0); floor.TopK() != 1 {
		t.Errorf("TopK() = %d, want 1", floor.TopK())
	}
}

func TestAsk_WithSimilarityThreshold(t *testing.T) {
	ask, _ := NewAsk("q", Params{})
	lowered := ask.WithSimilarityThreshold(ask.SimilarityThreshold() - 0.15)
	if lowered.SimilarityThreshold() >= ask.SimilarityThreshold() {
		t.Error("threshold should be lowered")
	}
	if neg := ask.WithSimilarityThreshold(-1); neg.SimilarityThreshold() != 0 {
		t.Errorf("SimilarityThreshold() = %v, want 0", neg.SimilarityThreshold())
	}
}
