// Package retrieve runs the multi-granularity retrieval pipeline: embed
// the question, search every chunk level, merge, filter and diversify.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// defaultExpansionFactor widens the candidate pool for broadened retrieval.
const defaultExpansionFactor = 4

// broadenedFloorDrop is subtracted from the similarity floor when broadening.
const broadenedFloorDrop = 0.15

// Options are the deployment-level retrieval knobs. Per-question knobs
// travel in answer.Ask.
type Options struct {
	UseMMR          bool
	MMRLambda       float64
	ExpansionFactor int
}

// Service retrieves scored chunks for a question across all index levels.
type Service struct {
	index  Index
	embed  Embedder
	rerank Reranker
	opts   Options
}

// New creates a retrieve service. rerank may be nil to skip the rerank pass.
func New(index Index, embed Embedder, rerank Reranker, opts Options) *Service {
	if opts.MMRLambda <= 0 || opts.MMRLambda > 1 {
		opts.MMRLambda = defaultMMRLambda
	}
	if opts.ExpansionFactor < 2 {
		opts.ExpansionFactor = defaultExpansionFactor
	}
	return &Service{index: index, embed: embed, rerank: rerank, opts: opts}
}

// Retrieve embeds the question, searches every granularity level and
// returns at most topK results above the similarity floor, deduplicated
// by chunk with the best score winning.
func (s *Service) Retrieve(ctx context.Context, ask answer.Ask) ([]retrieval.Result, error) {
	embRes, err := s.embed.Embed(ctx, ask.Question())
	if err != nil {
		return nil, fmt.Errorf("vectorize question: %w", err)
	}

	domain.UsageFromContext(ctx).AddTokens(embRes.TotalTokens)

	merged := make(map[string]retrieval.Result)
	for _, level := range chunk.AllLevels() {
		hits, err := s.index.Search(ctx, level, embRes.Embedding, ask.TopK())
		if err != nil {
			return nil, fmt.Errorf("search %s index: %w", level, err)
		}
		for _, hit := range hits {
			id := hit.Chunk().ID()
			if prev, ok := merged[id]; !ok || hit.Similarity() > prev.Similarity() {
				merged[id] = hit
			}
		}
	}

	kept := make([]retrieval.Result, 0, len(merged))
	for _, r := range merged {
		if r.Similarity() >= ask.SimilarityThreshold() {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Similarity() != kept[j].Similarity() {
			return kept[i].Similarity() > kept[j].Similarity()
		}
		// ties break on chunk ID
		return kept[i].Chunk().ID() < kept[j].Chunk().ID()
	})

	if s.opts.UseMMR {
		pool := kept
		if len(pool) > ask.TopK()*2 {
			pool = pool[:ask.TopK()*2]
		}
		kept = selectMMR(pool, ask.TopK(), s.opts.MMRLambda)
	} else if len(kept) > ask.TopK() {
		kept = kept[:ask.TopK()]
	}

	if s.rerank != nil {
		kept, err = s.rerank.Rerank(ctx, ask.Question(), kept, ask.RerankTopN())
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	return kept, nil
}

// RetrieveBroadened widens the candidate pool and lowers the similarity
// floor. The agent uses it to re-plan after a low-confidence draft.
func (s *Service) RetrieveBroadened(ctx context.Context, ask answer.Ask) ([]retrieval.Result, error) {
	floor := ask.SimilarityThreshold() - broadenedFloorDrop
	if floor < 0 {
		floor = 0
	}
	widened := ask.WithTopK(ask.TopK() * s.opts.ExpansionFactor)
	widened = widened.WithSimilarityThreshold(floor)
	return s.Retrieve(ctx, widened)
}
