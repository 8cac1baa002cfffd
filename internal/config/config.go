package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragline service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Agent     AgentConfig     `yaml:"agent"`
	Query     QueryConfig     `yaml:"query"`
	Memory    MemoryConfig    `yaml:"memory"`
	Tools     ToolsConfig     `yaml:"tools"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // redis, embedded (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Dir              string   `yaml:"dir"` // embedded driver only; empty = in-memory
}

// LLMConfig holds completion model settings.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic (default: openai)
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig holds embedding model settings. Embeddings always go
// through an OpenAI-compatible endpoint, even when completions use anthropic.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"` // vector width, must match the chunk indexes
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CacheConfig holds gateway response cache settings.
type CacheConfig struct {
	Enabled *bool `yaml:"enabled"`        // default: true
	MaxCost int64 `yaml:"max_cost_bytes"` // default: 64 MiB
}

// RetrievalConfig holds retrieval pipeline settings.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	UseMMR              *bool   `yaml:"use_mmr"` // default: true
	MMRLambda           float64 `yaml:"mmr_lambda"`
	Rerank              bool    `yaml:"rerank"` // default: false
	RerankTopN          int     `yaml:"rerank_top_n"`
	RerankTimeoutSec    int     `yaml:"rerank_timeout_sec"`
	ExpansionFactor     int     `yaml:"expansion_factor"` // broadened retrieval multiplier
}

// AgentConfig holds reasoning loop settings.
type AgentConfig struct {
	MaxIterations       int     `yaml:"max_iterations"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	EnableReretrieval   *bool   `yaml:"enable_reretrieval"` // default: true
	EnableReplanning    *bool   `yaml:"enable_replanning"`  // default: true
}

// QueryConfig holds router preprocessing settings.
type QueryConfig struct {
	Rewrite  *bool `yaml:"rewrite"`  // default: true
	Classify *bool `yaml:"classify"` // default: true
}

// MemoryConfig holds interaction memory settings.
type MemoryConfig struct {
	Enabled    *bool `yaml:"enabled"` // default: true
	MaxEntries int   `yaml:"max_entries"`
	ExpiryDays int   `yaml:"expiry_days"`
	TopK       int   `yaml:"top_k"`
}

// ToolsConfig holds external tool settings.
type ToolsConfig struct {
	Enabled    *bool           `yaml:"enabled"` // default: true
	DBKeywords []string        `yaml:"db_keywords"`
	Websearch  WebsearchConfig `yaml:"websearch"`
	Database   DatabaseConfig  `yaml:"database"`
	InvokeSec  int             `yaml:"invoke_timeout_sec"`
}

// WebsearchConfig holds web search tool settings.
type WebsearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// DatabaseConfig holds database tool settings.
type DatabaseConfig struct {
	DSN     string `yaml:"dsn"`
	MaxRows int    `yaml:"max_rows"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 10
	}
	if c.Server.WriteTimeoutSec <= 0 {
		// Answer requests sit on several LLM round-trips.
		c.Server.WriteTimeoutSec = 120
	}
	if c.Server.ShutdownSec <= 0 {
		c.Server.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "redis"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "ragline:"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel(c.LLM.Provider)
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 60
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.7
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Cache.Enabled == nil {
		c.Cache.Enabled = ptrBool(true)
	}
	if c.Cache.MaxCost <= 0 {
		c.Cache.MaxCost = 64 << 20
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.SimilarityThreshold <= 0 {
		c.Retrieval.SimilarityThreshold = 0.7
	}
	if c.Retrieval.UseMMR == nil {
		c.Retrieval.UseMMR = ptrBool(true)
	}
	if c.Retrieval.MMRLambda <= 0 {
		c.Retrieval.MMRLambda = 0.5
	}
	if c.Retrieval.RerankTopN <= 0 {
		c.Retrieval.RerankTopN = 10
	}
	if c.Retrieval.RerankTimeoutSec <= 0 {
		c.Retrieval.RerankTimeoutSec = 10
	}
	if c.Retrieval.ExpansionFactor <= 0 {
		c.Retrieval.ExpansionFactor = 4
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 5
	}
	if c.Agent.ConfidenceThreshold <= 0 {
		c.Agent.ConfidenceThreshold = 0.7
	}
	if c.Agent.EnableReretrieval == nil {
		c.Agent.EnableReretrieval = ptrBool(true)
	}
	if c.Agent.EnableReplanning == nil {
		c.Agent.EnableReplanning = ptrBool(true)
	}
	if c.Query.Rewrite == nil {
		c.Query.Rewrite = ptrBool(true)
	}
	if c.Query.Classify == nil {
		c.Query.Classify = ptrBool(true)
	}
	if c.Memory.Enabled == nil {
		c.Memory.Enabled = ptrBool(true)
	}
	if c.Memory.MaxEntries <= 0 {
		c.Memory.MaxEntries = 100
	}
	if c.Memory.ExpiryDays <= 0 {
		c.Memory.ExpiryDays = 30
	}
	if c.Memory.TopK <= 0 {
		c.Memory.TopK = 3
	}
	if c.Tools.Enabled == nil {
		c.Tools.Enabled = ptrBool(true)
	}
	if c.Tools.InvokeSec <= 0 {
		c.Tools.InvokeSec = 15
	}
	if c.Tools.Database.MaxRows <= 0 {
		c.Tools.Database.MaxRows = 100
	}
}

func defaultModel(provider string) string {
	if provider == "anthropic" {
		return "claude-sonnet-4-20250514"
	}
	return "gpt-4o-mini"
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case "redis", "embedded":
		// ok
	default:
		return fmt.Errorf("store.driver must be \"redis\" or \"embedded\", got %q", c.Store.Driver)
	}
	if c.Store.Driver == "redis" && len(c.Store.Addrs) == 0 {
		return fmt.Errorf("store.addrs is required for the redis driver")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
		// ok
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}
	// Embeddings ride an OpenAI-compatible endpoint; the anthropic key
	// cannot serve them.
	if c.LLM.Provider == "anthropic" && c.Embedding.APIKey == "" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.api_key or embedding.base_url is required when llm.provider is \"anthropic\"")
	}
	if c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be within [0,1], got %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("retrieval.mmr_lambda must be within [0,1], got %v", c.Retrieval.MMRLambda)
	}
	if c.Agent.ConfidenceThreshold > 1 {
		return fmt.Errorf("agent.confidence_threshold must be within [0,1], got %v", c.Agent.ConfidenceThreshold)
	}
	if c.Agent.MaxIterations > 20 {
		return fmt.Errorf("agent.max_iterations must not exceed 20, got %d", c.Agent.MaxIterations)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ptrBool(v bool) *bool { return &v }

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
