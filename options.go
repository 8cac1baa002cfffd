package ragline

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver    string // "redis" or "embedded"
	addrs     []string
	password  string
	dataDir   string
	keyPrefix string

	llmProvider string // "openai" or "anthropic"
	llmAPIKey   string
	llmModel    string
	llmBaseURL  string

	embedAPIKey  string
	embedBaseURL string
	embedModel   string
	embedDims    int

	cacheOff     bool
	cacheMaxCost int64

	rerank bool

	memoryOff    bool
	memoryExpiry time.Duration
	memoryMax    int

	websearchEndpoint string
	websearchAPIKey   string
	databaseDSN       string

	logger *zap.Logger
}

// WithRedis points the client at a Redis instance holding the chunk
// indexes. password may be empty.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithEmbedded selects the in-process store. A non-empty dir persists
// chunks and memories across restarts; empty keeps everything in memory.
func WithEmbedded(dir string) Option {
	return func(c *clientConfig) {
		c.driver = "embedded"
		c.dataDir = dir
	}
}

// WithKeyPrefix overrides the key and index namespace.
// Default: "ragline:". Must match the prefix used at ingestion time.
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) {
		c.keyPrefix = prefix
	}
}

// WithOpenAI serves completions through the OpenAI API.
// An empty model selects gpt-4o-mini.
func WithOpenAI(apiKey, model string) Option {
	return func(c *clientConfig) {
		c.llmProvider = "openai"
		c.llmAPIKey = apiKey
		c.llmModel = model
	}
}

// WithAnthropic serves completions through the Anthropic API. Embeddings
// still need an OpenAI-compatible key (see WithEmbeddingCredentials).
// An empty model selects claude-sonnet-4-20250514.
func WithAnthropic(apiKey, model string) Option {
	return func(c *clientConfig) {
		c.llmProvider = "anthropic"
		c.llmAPIKey = apiKey
		c.llmModel = model
	}
}

// WithLLMBaseURL overrides the completion endpoint, e.g. for a proxy or
// an OpenAI-compatible local server.
func WithLLMBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.llmBaseURL = url
	}
}

// WithEmbedding sets the embedding model and vector width. Dimensions
// must match the chunk indexes built at ingestion time.
// Defaults: text-embedding-3-small, 1536.
func WithEmbedding(model string, dimensions int) Option {
	return func(c *clientConfig) {
		c.embedModel = model
		c.embedDims = dimensions
	}
}

// WithEmbeddingCredentials routes embeddings to a separate
// OpenAI-compatible endpoint. Without it embeddings reuse the completion
// key, which only works when the provider is openai.
func WithEmbeddingCredentials(apiKey, baseURL string) Option {
	return func(c *clientConfig) {
		c.embedAPIKey = apiKey
		c.embedBaseURL = baseURL
	}
}

// WithRerank inserts the LLM reranking pass between retrieval and
// generation. Off by default: it adds one completion per question.
func WithRerank() Option {
	return func(c *clientConfig) {
		c.rerank = true
	}
}

// WithoutCache disables the in-process gateway cache.
func WithoutCache() Option {
	return func(c *clientConfig) {
		c.cacheOff = true
	}
}

// WithCacheSize bounds the gateway cache in bytes. Default: 64 MiB.
func WithCacheSize(maxCost int64) Option {
	return func(c *clientConfig) {
		c.cacheMaxCost = maxCost
	}
}

// WithoutMemory disables conversational memory recall and recording.
func WithoutMemory() Option {
	return func(c *clientConfig) {
		c.memoryOff = true
	}
}

// WithMemoryRetention tunes memory expiry and the retention cap.
// Defaults: 30 days, 100 entries.
func WithMemoryRetention(expiry time.Duration, maxEntries int) Option {
	return func(c *clientConfig) {
		c.memoryExpiry = expiry
		c.memoryMax = maxEntries
	}
}

// WithWebsearch enables the web search fallback tool. The endpoint must
// answer GET ?q= with a JSON results list; apiKey may be empty.
func WithWebsearch(endpoint, apiKey string) Option {
	return func(c *clientConfig) {
		c.websearchEndpoint = endpoint
		c.websearchAPIKey = apiKey
	}
}

// WithDatabaseTool enables the read-only SQL fallback tool against a
// PostgreSQL DSN.
func WithDatabaseTool(dsn string) Option {
	return func(c *clientConfig) {
		c.databaseDSN = dsn
	}
}

// WithLogger enables structured logging for pipeline internals.
// Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
