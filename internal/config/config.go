// Package config loads MindBase settings from .env, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names shared by the LLM and embedding settings.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderVoyage    = "voyage"
)

// Vector index backends.
const (
	VectorSurrealDB = "surrealdb"
	VectorQdrant    = "qdrant"
	VectorChromem   = "chromem"
	VectorMemory    = "memory"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Completion model
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OpenAIAPIKey    string `yaml:"-"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"-"`
	OllamaHost      string `yaml:"ollama_host"`

	// Embedding model
	EmbedProvider  string `yaml:"embed_provider"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDimension int    `yaml:"embed_dimension"`
	VoyageAPIKey   string `yaml:"-"`

	// Vector index
	VectorBackend    string `yaml:"vector_backend"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`
	QdrantAPIKey     string `yaml:"-"`
	ChromemPath      string `yaml:"chromem_path"`

	// URL metadata cache (disabled when RedisURL is empty)
	RedisURL         string        `yaml:"redis_url"`
	MetadataCacheTTL time.Duration `yaml:"metadata_cache_ttl"`

	// Media storage
	MediaDir      string `yaml:"media_dir"`
	PublicURL     string `yaml:"public_url"`
	MaxImageBytes int    `yaml:"max_image_bytes"`

	// HTTP server and identity
	Addr         string   `yaml:"addr"`
	JWTSecret    string   `yaml:"-"`
	JWTIssuer    string   `yaml:"jwt_issuer"`
	DefaultOwner string   `yaml:"default_owner"`
	CORSOrigins  []string `yaml:"cors_origins"`
	AdminOwners  []string `yaml:"admin_owners"`

	// Timeouts for external calls
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`

	// Retrieval
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	ChatContextItems    int     `yaml:"chat_context_items"`
	ChatHistoryTurns    int     `yaml:"chat_history_turns"`

	// Reindex
	ReindexConcurrency int `yaml:"reindex_concurrency"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "mindbase",
		SurrealDBDatabase:  "items",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LLMProvider: ProviderOpenAI,
		LLMModel:    "gpt-4o-mini",
		OllamaHost:  "http://localhost:11434",

		EmbedProvider:  ProviderOllama,
		EmbedModel:     "mxbai-embed-large",
		EmbedDimension: 1024,

		VectorBackend:    VectorSurrealDB,
		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "mindbase_items",

		MetadataCacheTTL: 24 * time.Hour,

		MediaDir:      "./data/media",
		PublicURL:     "http://localhost:8585",
		MaxImageBytes: 10 << 20,

		Addr:         ":8585",
		DefaultOwner: "local",

		ExtractTimeout: 10 * time.Second,
		LLMTimeout:     30 * time.Second,
		EmbedTimeout:   15 * time.Second,

		ChatContextItems: 5,
		ChatHistoryTurns: 10,

		ReindexConcurrency: 4,

		LogFile:  "/tmp/mindbase.log",
		LogLevel: slog.LevelInfo,
	}
}

// Load reads configuration. Precedence, lowest first: built-in defaults,
// the YAML file named by MINDBASE_CONFIG, then environment variables
// (a .env file in the working directory is loaded into the environment first).
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("MINDBASE_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file struct {
		Config   `yaml:",inline"`
		LogLevel string `yaml:"log_level"`
	}
	file.Config = *c
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*c = file.Config
	if file.LogLevel != "" {
		c.LogLevel = parseLogLevel(file.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)

	c.LLMProvider = strings.ToLower(getEnv("MINDBASE_LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = getEnv("MINDBASE_LLM_MODEL", c.LLMModel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)

	c.EmbedProvider = strings.ToLower(getEnv("MINDBASE_EMBED_PROVIDER", c.EmbedProvider))
	c.EmbedModel = getEnv("MINDBASE_EMBED_MODEL", c.EmbedModel)
	c.EmbedDimension = getEnvInt("MINDBASE_EMBED_DIMENSION", c.EmbedDimension)
	c.VoyageAPIKey = getEnv("VOYAGE_API_KEY", c.VoyageAPIKey)

	c.VectorBackend = strings.ToLower(getEnv("MINDBASE_VECTOR_BACKEND", c.VectorBackend))
	c.QdrantURL = getEnv("QDRANT_URL", c.QdrantURL)
	c.QdrantCollection = getEnv("QDRANT_COLLECTION", c.QdrantCollection)
	c.QdrantAPIKey = getEnv("QDRANT_API_KEY", c.QdrantAPIKey)
	c.ChromemPath = getEnv("MINDBASE_CHROMEM_PATH", c.ChromemPath)

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.MetadataCacheTTL = getEnvDuration("MINDBASE_METADATA_CACHE_TTL", c.MetadataCacheTTL)

	c.MediaDir = getEnv("MINDBASE_MEDIA_DIR", c.MediaDir)
	c.PublicURL = strings.TrimRight(getEnv("MINDBASE_PUBLIC_URL", c.PublicURL), "/")
	c.MaxImageBytes = getEnvInt("MINDBASE_MAX_IMAGE_BYTES", c.MaxImageBytes)

	c.Addr = getEnv("MINDBASE_ADDR", c.Addr)
	c.JWTSecret = getEnv("MINDBASE_JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("MINDBASE_JWT_ISSUER", c.JWTIssuer)
	c.DefaultOwner = getEnv("MINDBASE_DEFAULT_OWNER", c.DefaultOwner)
	c.CORSOrigins = getEnvList("MINDBASE_CORS_ORIGINS", c.CORSOrigins)
	c.AdminOwners = getEnvList("MINDBASE_ADMIN_OWNERS", c.AdminOwners)

	c.ExtractTimeout = getEnvDuration("MINDBASE_EXTRACT_TIMEOUT", c.ExtractTimeout)
	c.LLMTimeout = getEnvDuration("MINDBASE_LLM_TIMEOUT", c.LLMTimeout)
	c.EmbedTimeout = getEnvDuration("MINDBASE_EMBED_TIMEOUT", c.EmbedTimeout)

	c.SimilarityThreshold = getEnvFloat("MINDBASE_SIMILARITY_THRESHOLD", c.SimilarityThreshold)
	c.ChatContextItems = getEnvInt("MINDBASE_CHAT_CONTEXT_ITEMS", c.ChatContextItems)
	c.ChatHistoryTurns = getEnvInt("MINDBASE_CHAT_HISTORY_TURNS", c.ChatHistoryTurns)

	c.ReindexConcurrency = getEnvInt("MINDBASE_REINDEX_CONCURRENCY", c.ReindexConcurrency)

	c.LogFile = getEnv("MINDBASE_LOG_FILE", c.LogFile)
	if lvl := os.Getenv("MINDBASE_LOG_LEVEL"); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM provider %q", c.LLMProvider))
	}
	switch c.EmbedProvider {
	case ProviderOpenAI, ProviderOllama, ProviderVoyage:
	default:
		errs = append(errs, fmt.Errorf("unsupported embedding provider %q", c.EmbedProvider))
	}
	switch c.VectorBackend {
	case VectorSurrealDB, VectorQdrant, VectorChromem, VectorMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported vector backend %q", c.VectorBackend))
	}
	if c.EmbedDimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimension must be positive, got %d", c.EmbedDimension))
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity threshold must be within [0,1], got %v", c.SimilarityThreshold))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("max image bytes must be positive, got %d", c.MaxImageBytes))
	}
	if c.DefaultOwner == "" {
		errs = append(errs, errors.New("default owner must not be empty"))
	}
	return errors.Join(errs...)
}

// AuthEnabled reports whether bearer tokens are verified.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("invalid float in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
