package intent

import "testing"

func TestParseCategory(t *testing.T) {
	valid := []string{"factual", "complex_reasoning", "tool_call", "conversational"}
	for _, s := range valid {
		if _, err := ParseCategory(s); err != nil {
			t.Errorf("ParseCategory(%q) error: %v", s, err)
		}
	}
	if _, err := ParseCategory("smalltalk"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestNew_ClampsConfidence(t *testing.T) {
	i := New(CategoryFactual, 1.2)
	if i.Confidence() != 1 {
		t.Errorf("Confidence() = %v, want 1", i.Confidence())
	}
}

func TestFallback(t *testing.T) {
	i := Fallback()
	if i.Category() != CategoryFactual {
		t.Errorf("Category() = %v, want factual", i.Category())
	}
	if i.Confidence() != 0.5 {
		t.Errorf("Confidence() = %v, want 0.5", i.Confidence())
	}
}

func TestStrategy(t *testing.T) {
	cases := []struct {
		category Category
		want     Strategy
	}{
		{CategoryFactual, StrategyChain},
		{CategoryComplexReasoning, StrategyAgent},
		{CategoryToolCall, StrategyAgent},
		{CategoryConversational, StrategyChain},
	}
	for _, tc := range cases {
		i := New(tc.category, 0.9)
		if got := i.Strategy(); got != tc.want {
			t.Errorf("Strategy(%s) = %v, want %v", tc.category, got, tc.want)
		}
	}
}
