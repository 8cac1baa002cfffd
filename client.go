// Package ragline embeds the question-answering pipeline in a Go
// process: retrieval over pre-ingested chunk indexes, generation,
// routing, conversational memory and tool fallbacks behind one client.
//
// The ingestion pipeline that builds the chunk indexes is external; the
// client only reads them.
package ragline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbredis "github.com/kailas-cloud/ragline/internal/db/redis"
	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	dommem "github.com/kailas-cloud/ragline/internal/domain/memory"
	"github.com/kailas-cloud/ragline/internal/metrics"
	"github.com/kailas-cloud/ragline/internal/repository/embedded"
	"github.com/kailas-cloud/ragline/internal/repository/index"
	"github.com/kailas-cloud/ragline/internal/repository/llmcache"
	"github.com/kailas-cloud/ragline/internal/repository/memstore"
	"github.com/kailas-cloud/ragline/internal/transport/anthropic"
	"github.com/kailas-cloud/ragline/internal/transport/openai"
	agentuc "github.com/kailas-cloud/ragline/internal/usecase/agent"
	"github.com/kailas-cloud/ragline/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/ragline/internal/usecase/health"
	memoryuc "github.com/kailas-cloud/ragline/internal/usecase/memory"
	"github.com/kailas-cloud/ragline/internal/usecase/ragchain"
	"github.com/kailas-cloud/ragline/internal/usecase/rerank"
	"github.com/kailas-cloud/ragline/internal/usecase/retrieve"
	routeruc "github.com/kailas-cloud/ragline/internal/usecase/router"
	"github.com/kailas-cloud/ragline/internal/usecase/toolkit"
)

const (
	defaultReadinessTimeout = 10 * time.Second

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultEmbedModel     = "text-embedding-3-small"
	defaultEmbedDims      = 1536
	defaultCacheMaxCost   = 64 << 20
	defaultTemperature    = 0.7
	defaultMaxTokens      = 1024
)

// routerService dispatches a question to an answer pipeline.
type routerService interface {
	Route(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error)
}

// memoryService recalls and records conversational memory.
type memoryService interface {
	Relevant(ctx context.Context, question string, k int) ([]dommem.Match, error)
	Record(ctx context.Context, question string, ans answer.Answer) error
}

// healthService probes the wired backends.
type healthService interface {
	Check(ctx context.Context) healthuc.Report
}

// memoryBackend is what the client needs from a memory store: the
// usecase contract plus index bootstrap.
type memoryBackend interface {
	memoryuc.Store
	EnsureIndex(ctx context.Context, dim int) error
}

// completionProvider pairs the completion contract with its health probe.
type completionProvider interface {
	domain.Completer
	domain.HealthChecker
}

// gateway glues the embedding and completion providers into the combined
// contract the cache decorator wraps.
type gateway struct {
	domain.Embedder
	domain.Completer
}

// Client is the ragline SDK entry point.
type Client struct {
	router  routerService
	memory  memoryService // nil: memory disabled
	health  healthService
	logger  *zap.Logger
	closers []func()
}

// New wires a Client from the options. It connects to the store, opens
// the model gateways and assembles the answer pipelines.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:    domain.KeyPrefix,
		embedModel:   defaultEmbedModel,
		embedDims:    defaultEmbedDims,
		cacheMaxCost: defaultCacheMaxCost,
	}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("ragline: store required (use WithRedis or WithEmbedded)")
	}
	if cfg.llmProvider == "" {
		return nil, errors.New("ragline: completion provider required (use WithOpenAI or WithAnthropic)")
	}
	if cfg.llmProvider == "anthropic" && cfg.embedAPIKey == "" && cfg.embedBaseURL == "" {
		return nil, errors.New("ragline: embeddings need an OpenAI-compatible endpoint (use WithEmbeddingCredentials)")
	}
	if cfg.llmModel == "" {
		cfg.llmModel = defaultOpenAIModel
		if cfg.llmProvider == "anthropic" {
			cfg.llmModel = defaultAnthropicModel
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{logger: logger}
	ctx := context.Background()

	var (
		pinger     healthuc.StorePinger
		chunkIndex retrieve.Index
		memStore   memoryBackend
	)
	switch cfg.driver {
	case "redis":
		store, err := dbredis.NewStore(dbredis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("ragline: create redis store: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			c.Close()
			return nil, fmt.Errorf("ragline: store not ready: %w", err)
		}
		pinger = store
		chunkIndex = index.New(store, cfg.keyPrefix)
		memStore = memstore.New(store, cfg.keyPrefix, logger)
	case "embedded":
		store, err := embedded.New(cfg.dataDir)
		if err != nil {
			return nil, fmt.Errorf("ragline: open embedded store: %w", err)
		}
		pinger = store
		chunkIndex = store
		memStore = store
	default:
		return nil, fmt.Errorf("ragline: unknown store driver %q", cfg.driver)
	}

	embedKey := cfg.embedAPIKey
	if embedKey == "" && cfg.llmProvider == "openai" {
		embedKey = cfg.llmAPIKey
	}
	embedder := openai.NewEmbedder(&openai.EmbedderConfig{
		APIKey:     embedKey,
		BaseURL:    cfg.embedBaseURL,
		Model:      cfg.embedModel,
		Dimensions: cfg.embedDims,
	})

	var completer completionProvider
	switch cfg.llmProvider {
	case "openai":
		completer = openai.NewCompleter(&openai.CompleterConfig{
			APIKey:  cfg.llmAPIKey,
			BaseURL: cfg.llmBaseURL,
			Model:   cfg.llmModel,
		})
	case "anthropic":
		completer = anthropic.NewCompleter(&anthropic.CompleterConfig{
			APIKey:  cfg.llmAPIKey,
			BaseURL: cfg.llmBaseURL,
			Model:   cfg.llmModel,
		})
	default:
		c.Close()
		return nil, fmt.Errorf("ragline: unknown llm provider %q", cfg.llmProvider)
	}

	var gw domain.Gateway = gateway{embedder, completer}
	if !cfg.cacheOff {
		cached, err := llmcache.New(gw, cfg.cacheMaxCost, metrics.LLMCacheTotal)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("ragline: build llm cache: %w", err)
		}
		c.closers = append(c.closers, cached.Close)
		gw = cached
	}

	// Registration order is selection priority: the database tool claims
	// SQL-flavored questions, websearch claims whatever remains.
	var registry *toolkit.Registry
	if cfg.databaseDSN != "" || cfg.websearchEndpoint != "" {
		registry = toolkit.NewRegistry(0, logger)
		if cfg.databaseDSN != "" {
			pool, err := pgxpool.New(ctx, cfg.databaseDSN)
			if err != nil {
				c.Close()
				return nil, fmt.Errorf("ragline: connect database tool: %w", err)
			}
			c.closers = append(c.closers, pool.Close)
			registry.Register(toolkit.NewDatabase(toolkit.PoolQuerier{Pool: pool}, nil, 0))
		}
		if cfg.websearchEndpoint != "" {
			registry.Register(toolkit.NewWebsearch(cfg.websearchEndpoint, cfg.websearchAPIKey))
		}
	}
	var chainTools ragchain.Tools
	var agentTools agentuc.Tools
	if registry != nil {
		chainTools = registry
		agentTools = registry
	}

	var reranker retrieve.Reranker
	if cfg.rerank {
		reranker = rerank.New(gw, 0, logger)
	}
	retriever := retrieve.New(chunkIndex, gw, reranker, retrieve.Options{UseMMR: true})
	generator := generate.New(gw).WithSampling(defaultTemperature, defaultMaxTokens)

	chain := ragchain.New(retriever, generator, chainTools, logger)
	agentSvc := agentuc.New(
		agentuc.NewEngine(gw, agentTools, logger),
		agentuc.NewRunner(retriever, generator, agentTools, logger),
		agentuc.Options{Reretrieval: true, Replanning: true},
		logger,
	)

	if !cfg.memoryOff {
		if err := memStore.EnsureIndex(ctx, cfg.embedDims); err != nil {
			c.Close()
			return nil, fmt.Errorf("ragline: ensure memory index: %w", err)
		}
		c.memory = memoryuc.New(memStore, gw, gw, memoryuc.Options{
			Expiry:     cfg.memoryExpiry,
			MaxEntries: cfg.memoryMax,
		}, logger)
	}

	c.router = routeruc.New(
		routeruc.NewRephraser(gw, logger),
		routeruc.NewLabeler(gw, logger),
		chain,
		agentSvc,
		routeruc.Options{Rewrite: true, Classify: true},
		logger,
	)
	c.health = healthuc.New(pinger, embedder, completer)

	return c, nil
}

// AnswerQuestion runs the full pipeline for one question. opts may be
// nil to take every default. Memory recall and recording are best-effort
// and never fail the question.
func (c *Client) AnswerQuestion(ctx context.Context, question string, opts *AskOptions) (Answer, error) {
	var p answer.Params
	if opts != nil {
		p = answer.Params{
			Mode:                  answer.Mode(opts.Mode),
			AllowGeneralKnowledge: opts.AllowGeneralKnowledge,
			EnableTool:            opts.EnableTool,
			UseAgent:              opts.UseAgent,
			TopK:                  opts.TopK,
			SimilarityThreshold:   opts.SimilarityThreshold,
			RerankTopN:            opts.RerankTopN,
			ConfidenceThreshold:   opts.ConfidenceThreshold,
			MaxIterations:         opts.MaxIterations,
		}
	}
	ask, err := answer.NewAsk(question, p)
	if err != nil {
		return Answer{}, err
	}

	ctx, usage := domain.NewContextWithUsage(ctx)

	var memoryCtx string
	if c.memory != nil {
		matches, err := c.memory.Relevant(ctx, ask.Question(), 0)
		if err != nil {
			c.logger.Warn("memory recall failed", zap.Error(err))
		} else {
			memoryCtx = memoryuc.ContextBlock(matches)
		}
	}

	ans, err := c.router.Route(ctx, ask, memoryCtx)
	if err != nil {
		return Answer{}, err
	}

	if c.memory != nil {
		if err := c.memory.Record(ctx, ask.Question(), ans); err != nil {
			c.logger.Warn("memory record failed", zap.Error(err))
		}
	}

	return Answer{
		Text:       ans.Text(),
		Sources:    ans.Sources(),
		Mode:       string(ans.Mode()),
		Confidence: ans.Confidence(),
		UsedTool:   ans.UsedTool(),
		Exhausted:  ans.Exhausted(),
		TokensUsed: usage.TotalTokens,
	}, nil
}

// Memories returns the k memory entries most relevant to the question,
// weighted down by age. k <= 0 selects the default recall width.
func (c *Client) Memories(ctx context.Context, question string, k int) ([]MemoryMatch, error) {
	if c.memory == nil {
		return nil, fmt.Errorf("%w: conversational memory is disabled", ErrNotFound)
	}
	matches, err := c.memory.Relevant(ctx, question, k)
	if err != nil {
		return nil, err
	}

	out := make([]MemoryMatch, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		e := m.Entry()
		out = append(out, MemoryMatch{
			ID:         e.ID(),
			Question:   e.Question(),
			Summary:    e.Summary(),
			Answer:     e.Answer(),
			Similarity: m.Similarity(),
			Weight:     m.Weight(),
			CreatedAt:  e.CreatedAt(),
		})
	}
	return out, nil
}

// Health probes the store and the model providers.
func (c *Client) Health(ctx context.Context) HealthReport {
	r := c.health.Check(ctx)
	checks := make(map[string]string, len(r.Checks))
	for name, res := range r.Checks {
		checks[name] = string(res)
	}
	return HealthReport{Status: string(r.Status), Checks: checks}
}

// Close releases the store connection, the gateway cache and any tool
// pools, in reverse acquisition order.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
