package chunk

import "testing"

func TestNew_Valid(t *testing.T) {
	meta := map[string]string{"source": "handbook.md"}
	c, err := New("c-1", "hello", LevelChunk, "doc-1", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID() != "c-1" || c.Text() != "hello" || c.Level() != LevelChunk {
		t.Errorf("chunk = %+v", c)
	}
	if c.SourceDocID() != "doc-1" {
		t.Errorf("SourceDocID() = %q", c.SourceDocID())
	}
	if c.Vector() != nil {
		t.Error("Vector() should be nil for new chunk")
	}
}

func TestNew_ClonesMetadata(t *testing.T) {
	meta := map[string]string{"k": "v"}
	c, _ := New("c-1", "text", LevelChunk, "doc-1", meta)
	meta["k"] = "mutated"
	if c.Metadata()["k"] != "v" {
		t.Error("metadata mutation leaked into chunk")
	}
}

func TestNew_EmptyID(t *testing.T) {
	if _, err := New("", "text", LevelChunk, "doc-1", nil); err == nil {
		t.Fatal("expected error for empty ID")
	}
}

func TestNew_EmptyText(t *testing.T) {
	if _, err := New("c-1", "", LevelChunk, "doc-1", nil); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New("c-1", "text", "paragraph", "doc-1", nil); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"topic", "chunk", "sentence"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) error: %v", s, err)
		}
	}
	if _, err := ParseLevel("word"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestAllLevels_CoarseToFine(t *testing.T) {
	levels := AllLevels()
	if len(levels) != 3 {
		t.Fatalf("AllLevels() len = %d", len(levels))
	}
	if levels[0] != LevelTopic || levels[2] != LevelSentence {
		t.Errorf("AllLevels() = %v", levels)
	}
}

func TestReconstruct_SkipsValidation(t *testing.T) {
	c := Reconstruct("c-1", "", "weird", "", nil, []float32{0.1})
	if c.ID() != "c-1" || len(c.Vector()) != 1 {
		t.Error("Reconstruct should carry fields through unchecked")
	}
}
