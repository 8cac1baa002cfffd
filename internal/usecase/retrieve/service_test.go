package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// --- Mocks ---

type mockIndex struct {
	hits     map[chunk.Level][]retrieval.Result
	err      error
	levels   []chunk.Level
	lastTopK int
}

func (m *mockIndex) Search(_ context.Context, level chunk.Level, _ []float32, topK int) ([]retrieval.Result, error) {
	m.levels = append(m.levels, level)
	m.lastTopK = topK
	if m.err != nil {
		return nil, m.err
	}
	return m.hits[level], nil
}

type mockEmbedder struct {
	vec    []float32
	tokens int
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: m.tokens}, nil
}

type mockReranker struct {
	out      []retrieval.Result
	err      error
	called   bool
	lastTopN int
}

func (m *mockReranker) Rerank(_ context.Context, _ string, cands []retrieval.Result, topN int) ([]retrieval.Result, error) {
	m.called = true
	m.lastTopN = topN
	if m.err != nil {
		return nil, m.err
	}
	if m.out != nil {
		return m.out, nil
	}
	return cands, nil
}

func hit(id string, sim float64) retrieval.Result {
	c := chunk.Reconstruct(id, "text "+id, chunk.LevelChunk, "doc-1", nil, nil)
	return retrieval.New(c, sim)
}

func makeAsk(t *testing.T, p answer.Params) answer.Ask {
	t.Helper()
	a, err := answer.NewAsk("как работает векторный поиск", p)
	if err != nil {
		t.Fatalf("NewAsk: %v", err)
	}
	return a
}

// --- Tests ---

func TestRetrieve_MergesAcrossLevels(t *testing.T) {
	// лучший хит лежит не на первом уровне — склейка обязана пересортировать
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelTopic:    {hit("c", 0.8)},
		chunk.LevelChunk:    {hit("a", 0.9)},
		chunk.LevelSentence: {hit("b", 0.85)},
	}}
	embed := &mockEmbedder{vec: []float32{0.1, 0.2}}
	svc := New(idx, embed, nil, Options{})

	got, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idx.levels) != 3 {
		t.Errorf("expected 3 level searches, got %d", len(idx.levels))
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	wantIDs := []string{"a", "b", "c"}
	for i, want := range wantIDs {
		if got[i].Chunk().ID() != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Chunk().ID(), want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity() > got[i-1].Similarity() {
			t.Errorf("similarity rose at %d: %v > %v", i, got[i].Similarity(), got[i-1].Similarity())
		}
	}
	if !embed.called {
		t.Error("expected Embed to be called")
	}
}

func TestRetrieve_DedupKeepsBestScore(t *testing.T) {
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelTopic: {hit("a", 0.8)},
		chunk.LevelChunk: {hit("a", 0.9)},
	}}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, nil, Options{})

	got, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 deduplicated result, got %d", len(got))
	}
	if got[0].Similarity() != 0.9 {
		t.Errorf("Similarity() = %v, want the best of the duplicates", got[0].Similarity())
	}
}

func TestRetrieve_ThresholdFilters(t *testing.T) {
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelChunk: {hit("keep", 0.8), hit("drop", 0.5)},
	}}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, nil, Options{})

	got, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result above the floor, got %d", len(got))
	}
	if got[0].Chunk().ID() != "keep" {
		t.Errorf("got %s, want keep", got[0].Chunk().ID())
	}
}

func TestRetrieve_TruncatesToTopK(t *testing.T) {
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelChunk: {hit("a", 0.95), hit("b", 0.9), hit("c", 0.85), hit("d", 0.8)},
	}}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, nil, Options{})

	got, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{TopK: 2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Chunk().ID() != "a" || got[1].Chunk().ID() != "b" {
		t.Error("truncation should keep the most similar results")
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	idx := &mockIndex{}
	embed := &mockEmbedder{err: errors.New("embedding provider down")}
	svc := New(idx, embed, nil, Options{})

	_, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{}))
	if err == nil {
		t.Fatal("expected error from embedding failure")
	}
	if len(idx.levels) != 0 {
		t.Error("index should not be searched when embedding fails")
	}
}

func TestRetrieve_SearchError(t *testing.T) {
	sentinel := errors.New("index offline")
	idx := &mockIndex{err: sentinel}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, nil, Options{})

	_, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{}))
	if !errors.Is(err, sentinel) {
		t.Errorf("expected the index error to propagate, got %v", err)
	}
}

func TestRetrieve_RerankApplied(t *testing.T) {
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelChunk: {hit("a", 0.9), hit("b", 0.85)},
	}}
	rr := &mockReranker{out: []retrieval.Result{hit("b", 0.85)}}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, rr, Options{})

	got, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{RerankTopN: 2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rr.called {
		t.Fatal("expected the reranker to be called")
	}
	if rr.lastTopN != 2 {
		t.Errorf("rerank topN = %d, want 2", rr.lastTopN)
	}
	if len(got) != 1 || got[0].Chunk().ID() != "b" {
		t.Error("rerank order should replace similarity order")
	}
}

func TestRetrieve_RerankError(t *testing.T) {
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelChunk: {hit("a", 0.9)},
	}}
	rr := &mockReranker{err: context.Canceled}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, rr, Options{})

	_, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected rerank error to propagate, got %v", err)
	}
}

func TestRetrieve_MMRPassThroughWithoutVectors(t *testing.T) {
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelChunk: {hit("a", 0.9), hit("b", 0.85), hit("c", 0.8)},
	}}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, nil, Options{UseMMR: true})

	got, err := svc.Retrieve(context.Background(), makeAsk(t, answer.Params{TopK: 2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Chunk().ID() != "a" || got[1].Chunk().ID() != "b" {
		t.Error("MMR without vectors should keep similarity order")
	}
}

func TestRetrieve_RecordsTokenUsage(t *testing.T) {
	idx := &mockIndex{}
	embed := &mockEmbedder{vec: []float32{0.1}, tokens: 7}
	svc := New(idx, embed, nil, Options{})

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := svc.Retrieve(ctx, makeAsk(t, answer.Params{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", usage.TotalTokens)
	}
}

func TestRetrieveBroadened_WidensPoolAndLowersFloor(t *testing.T) {
	idx := &mockIndex{hits: map[chunk.Level][]retrieval.Result{
		chunk.LevelChunk: {hit("edge", 0.58)},
	}}
	svc := New(idx, &mockEmbedder{vec: []float32{0.1}}, nil, Options{})

	ask := makeAsk(t, answer.Params{TopK: 2, SimilarityThreshold: 0.7})
	got, err := svc.RetrieveBroadened(context.Background(), ask)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.lastTopK != 8 {
		t.Errorf("broadened topK = %d, want 8", idx.lastTopK)
	}
	if len(got) != 1 {
		t.Fatalf("expected the 0.58 hit above the lowered floor, got %d results", len(got))
	}
}
