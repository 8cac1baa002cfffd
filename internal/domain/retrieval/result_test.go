package retrieval

import (
	"testing"

	"github.com/kailas-cloud/ragline/internal/domain/chunk"
)

func testChunk(t *testing.T, id string) chunk.Chunk {
	t.Helper()
	c, err := chunk.New(id, "chunk text", chunk.LevelChunk, "doc-1", nil)
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	return c
}

func TestNew_ClampsSimilarity(t *testing.T) {
	r := New(testChunk(t, "c-1"), 1.3)
	if r.Similarity() != 1 {
		t.Errorf("Similarity() = %v, want 1", r.Similarity())
	}
	r = New(testChunk(t, "c-2"), -0.2)
	if r.Similarity() != 0 {
		t.Errorf("Similarity() = %v, want 0", r.Similarity())
	}
}

func TestRerankScore_Unset(t *testing.T) {
	r := New(testChunk(t, "c-1"), 0.8)
	if _, ok := r.RerankScore(); ok {
		t.Error("fresh result should have no rerank score")
	}
}

func TestWithRerankScore(t *testing.T) {
	r := New(testChunk(t, "c-1"), 0.8)
	r2 := r.WithRerankScore(0.95)

	if _, ok := r.RerankScore(); ok {
		t.Error("original result should not be mutated")
	}
	score, ok := r2.RerankScore()
	if !ok {
		t.Fatal("expected rerank score to be set")
	}
	if score != 0.95 {
		t.Errorf("RerankScore() = %v, want 0.95", score)
	}
	if r2.Similarity() != 0.8 {
		t.Error("WithRerankScore should preserve similarity")
	}
	if r2.Chunk().ID() != "c-1" {
		t.Error("WithRerankScore should preserve the chunk")
	}
}
