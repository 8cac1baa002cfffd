// Package retrieval holds the per-query scored retrieval read model.
package retrieval

import "github.com/kailas-cloud/ragline/internal/domain/chunk"

// Result is a single scored retrieval hit. It lives for one query only.
type Result struct {
	chunk      chunk.Chunk
	similarity float64
	rerank     *float64
}

// New creates a retrieval result with the similarity clamped to [0,1].
func New(c chunk.Chunk, similarity float64) Result {
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return Result{chunk: c, similarity: similarity}
}

// Chunk returns the underlying chunk.
func (r *Result) Chunk() chunk.Chunk { return r.chunk }

// Similarity returns the vector similarity score.
func (r *Result) Similarity() float64 { return r.similarity }

// RerankScore returns the rerank score and whether one was assigned.
func (r *Result) RerankScore() (float64, bool) {
	if r.rerank == nil {
		return 0, false
	}
	return *r.rerank, true
}

// WithRerankScore returns a copy carrying the given rerank score.
func (r *Result) WithRerankScore(score float64) Result {
	c := *r
	c.rerank = &score
	return c
}
