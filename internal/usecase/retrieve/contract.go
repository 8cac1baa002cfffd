package retrieve

import (
	"context"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// Index searches one granularity level of the chunk index.
type Index interface {
	Search(ctx context.Context, level chunk.Level, vector []float32, topK int) ([]retrieval.Result, error)
}

// Embedder vectorizes the question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Reranker reorders candidates by model-judged relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []retrieval.Result, topN int) ([]retrieval.Result, error)
}
