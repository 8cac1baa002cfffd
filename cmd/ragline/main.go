package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/config"
	dbRedis "github.com/kailas-cloud/ragline/internal/db/redis"
	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	logpkg "github.com/kailas-cloud/ragline/internal/logger"
	"github.com/kailas-cloud/ragline/internal/metrics"
	"github.com/kailas-cloud/ragline/internal/repository/embedded"
	"github.com/kailas-cloud/ragline/internal/repository/index"
	"github.com/kailas-cloud/ragline/internal/repository/llmcache"
	"github.com/kailas-cloud/ragline/internal/repository/memstore"
	"github.com/kailas-cloud/ragline/internal/transport/anthropic"
	chiTransport "github.com/kailas-cloud/ragline/internal/transport/chi"
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
	"github.com/kailas-cloud/ragline/internal/version"
)

// memoryBackend is what conversational memory needs from a store: the
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

func main() {
	// .env first: config expands ${VAR} references from the environment.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragline API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	// Register Prometheus metrics explicitly (no init())
	metrics.RegisterLLMMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	ctx := context.Background()

	// Create the store based on driver
	var (
		pinger     healthuc.StorePinger
		chunkIndex retrieve.Index
		memBackend memoryBackend
	)
	switch cfg.Store.Driver {
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Store.Addrs,
			Password: cfg.Store.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Store.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Store not ready", zap.Error(err))
		}
		logger.Info("Connected to store")

		pinger = store
		chunkIndex = index.New(store, cfg.Store.KeyPrefix)
		memBackend = memstore.New(store, cfg.Store.KeyPrefix, logger)
	case "embedded":
		store, err := embedded.New(cfg.Store.Dir)
		if err != nil {
			logger.Fatal("Failed to open embedded store", zap.Error(err))
		}
		pinger = store
		chunkIndex = store
		memBackend = store
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}

	// Model providers. Embeddings always ride the OpenAI-compatible API;
	// with an openai completer the embedding key may be shared.
	embedKey := cfg.Embedding.APIKey
	if embedKey == "" && cfg.LLM.Provider == "openai" {
		embedKey = cfg.LLM.APIKey
	}
	embedder := openai.NewEmbedder(&openai.EmbedderConfig{
		APIKey:     embedKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
	})

	var completer completionProvider
	switch cfg.LLM.Provider {
	case "openai":
		completer = openai.NewCompleter(&openai.CompleterConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		})
	case "anthropic":
		completer = anthropic.NewCompleter(&anthropic.CompleterConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		})
	default:
		logger.Fatal("Unknown llm provider", zap.String("provider", cfg.LLM.Provider))
	}
	logger.Info("Model providers created",
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	var gw domain.Gateway = gateway{embedder, completer}
	if *cfg.Cache.Enabled {
		cached, err := llmcache.New(gw, cfg.Cache.MaxCost, metrics.LLMCacheTotal)
		if err != nil {
			logger.Fatal("Failed to build llm cache", zap.Error(err))
		}
		defer cached.Close()
		gw = cached
	}

	// External tools. Registration order is selection priority: the
	// database tool claims SQL-flavored questions, websearch claims
	// whatever remains.
	var registry *toolkit.Registry
	if *cfg.Tools.Enabled && (cfg.Tools.Database.DSN != "" || cfg.Tools.Websearch.Endpoint != "") {
		registry = toolkit.NewRegistry(time.Duration(cfg.Tools.InvokeSec)*time.Second, logger)
		if cfg.Tools.Database.DSN != "" {
			pool, err := pgxpool.New(ctx, cfg.Tools.Database.DSN)
			if err != nil {
				logger.Fatal("Failed to connect database tool", zap.Error(err))
			}
			defer pool.Close()
			registry.Register(toolkit.NewDatabase(
				toolkit.PoolQuerier{Pool: pool},
				cfg.Tools.DBKeywords,
				cfg.Tools.Database.MaxRows,
			))
		}
		if cfg.Tools.Websearch.Endpoint != "" {
			registry.Register(toolkit.NewWebsearch(cfg.Tools.Websearch.Endpoint, cfg.Tools.Websearch.APIKey))
		}
	}

	// Pass nil interfaces (not a typed nil pointer!) when tools are off.
	// Go gotcha: (*toolkit.Registry)(nil) wrapped in ragchain.Tools != nil.
	var chainTools ragchain.Tools
	var agentTools agentuc.Tools
	if registry != nil {
		chainTools = registry
		agentTools = registry
	}

	// Answer pipelines
	var reranker retrieve.Reranker
	if cfg.Retrieval.Rerank {
		reranker = rerank.New(gw, time.Duration(cfg.Retrieval.RerankTimeoutSec)*time.Second, logger)
	}
	retriever := retrieve.New(chunkIndex, gw, reranker, retrieve.Options{
		UseMMR:          *cfg.Retrieval.UseMMR,
		MMRLambda:       cfg.Retrieval.MMRLambda,
		ExpansionFactor: cfg.Retrieval.ExpansionFactor,
	})
	generator := generate.New(gw).WithSampling(cfg.LLM.Temperature, cfg.LLM.MaxTokens)

	chain := ragchain.New(retriever, generator, chainTools, logger)
	agentSvc := agentuc.New(
		agentuc.NewEngine(gw, agentTools, logger),
		agentuc.NewRunner(retriever, generator, agentTools, logger),
		agentuc.Options{
			Reretrieval: *cfg.Agent.EnableReretrieval,
			Replanning:  *cfg.Agent.EnableReplanning,
		},
		logger,
	)

	var memorySvc chiTransport.Memory
	if *cfg.Memory.Enabled {
		if err := memBackend.EnsureIndex(ctx, cfg.Embedding.Dimensions); err != nil {
			logger.Fatal("Failed to ensure memory index", zap.Error(err))
		}
		memorySvc = memoryuc.New(memBackend, gw, gw, memoryuc.Options{
			TopK:       cfg.Memory.TopK,
			Expiry:     time.Duration(cfg.Memory.ExpiryDays) * 24 * time.Hour,
			MaxEntries: cfg.Memory.MaxEntries,
		}, logger)
	}

	routerSvc := routeruc.New(
		routeruc.NewRephraser(gw, logger),
		routeruc.NewLabeler(gw, logger),
		chain,
		agentSvc,
		routeruc.Options{
			Rewrite:  *cfg.Query.Rewrite,
			Classify: *cfg.Query.Classify,
		},
		logger,
	)

	// Readiness probes the base providers: the cache decorator would
	// mask a dead gateway behind stored entries.
	healthSvc := healthuc.New(pinger, embedder, completer)

	// Create chi server
	server := chiTransport.NewServer(routerSvc, memorySvc, healthSvc, logger).
		WithAskDefaults(answer.Params{
			TopK:                cfg.Retrieval.TopK,
			SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
			RerankTopN:          cfg.Retrieval.RerankTopN,
			ConfidenceThreshold: cfg.Agent.ConfidenceThreshold,
			MaxIterations:       cfg.Agent.MaxIterations,
		})

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
