// Package llmcache is an in-process cache decorator for the LLM gateway.
// It caches embeddings (repeated and rewritten questions hit the same
// vectors) and deterministic (temperature zero) completions such as
// reranking; sampled completions pass through.
package llmcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// Gateway caches gateway responses in a ristretto cache.
type Gateway struct {
	inner      domain.Gateway
	cache      *ristretto.Cache
	cacheTotal *prometheus.CounterVec
}

// New creates a caching decorator. maxCost bounds the cache size in bytes.
// cacheTotal is a counter vec with labels "op" and "result", passed explicitly.
func New(inner domain.Gateway, maxCost int64, cacheTotal *prometheus.CounterVec) (*Gateway, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("build llm cache: %w", err)
	}
	return &Gateway{inner: inner, cache: cache, cacheTotal: cacheTotal}, nil
}

// Embed returns a cached embedding or calls the inner gateway.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (g *Gateway) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey("emb", text)

	if v, ok := g.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			g.incCache("embed", "hit")
			return domain.EmbeddingResult{Embedding: cloneVector(vec)}, nil
		}
	}
	g.incCache("embed", "miss")

	result, err := g.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	g.cache.Set(key, result.Embedding, int64(len(result.Embedding)*4))
	return result, nil
}

// Complete returns a cached completion for deterministic requests, or
// calls the inner gateway. Sampling requests bypass the cache.
func (g *Gateway) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	if req.Temperature != 0 {
		return g.inner.Complete(ctx, req)
	}

	key := completionKey(req)
	if v, ok := g.cache.Get(key); ok {
		if text, ok := v.(string); ok {
			g.incCache("complete", "hit")
			return domain.CompletionResult{Text: text}, nil
		}
	}
	g.incCache("complete", "miss")

	result, err := g.inner.Complete(ctx, req)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("complete: %w", err)
	}

	g.cache.Set(key, result.Text, int64(len(result.Text)))
	return result, nil
}

// Close releases the cache.
func (g *Gateway) Close() {
	g.cache.Close()
}

func (g *Gateway) incCache(op, result string) {
	if g.cacheTotal != nil {
		g.cacheTotal.WithLabelValues(op, result).Inc()
	}
}

func cacheKey(op, payload string) string {
	h := sha256.Sum256([]byte(payload))
	return op + ":" + hex.EncodeToString(h[:])
}

func completionKey(req domain.CompletionRequest) string {
	return cacheKey("cmp", req.System+"\x00"+req.Prompt+"\x00"+strconv.Itoa(req.MaxTokens))
}

func cloneVector(v []float32) []float32 {
	c := make([]float32, len(v))
	copy(c, v)
	return c
}
