// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, NANOBOOK_ prefix)
//  2. Config file (~/.nanobook/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: generation/rewrite/embedder model selection, sampling parameters
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: top-K, over-fetch multiplier, context budget, chunking
//   - Rerank: cross-encoder scoring service endpoint
//
// Security: sensitive values (passwords) are never logged.
// Validation: range checks in validation.go with sentinel errors for errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max output tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates the retrieval top-K value is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidOverFetch indicates the over-fetch multiplier is out of range.
	ErrInvalidOverFetch = errors.New("invalid over-fetch multiplier")

	// ErrInvalidChunking indicates the chunk size/overlap pair is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidContextBudget indicates the context budget is out of range.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRerankURL indicates the rerank service URL is invalid.
	ErrInvalidRerankURL = errors.New("invalid rerank service URL")
)

const (
	// DefaultGenerationModel is the Gemini model used for answer generation.
	DefaultGenerationModel = "gemini-2.5-flash"

	// DefaultRewriteModel is the lighter Gemini model used for query rewriting.
	DefaultRewriteModel = "gemini-2.5-flash-lite"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 384 dimensions via
	// OutputDimensionality (Matryoshka Representation Learning); the pgvector
	// schema is created with 384-dimension columns and cosine distance, fixed
	// for the life of the collection. See vectorstore.Dimension.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultRerankModel is the cross-encoder model requested from the
	// scoring service.
	DefaultRerankModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"
)

// Config stores application configuration.
// SECURITY: sensitive fields must never be logged; keep PostgresPassword out
// of any slog call.
type Config struct {
	// HTTP server
	ServerAddr string `mapstructure:"server_addr"`
	UploadDir  string `mapstructure:"upload_dir"`

	// AI models and sampling
	GenerationModel string  `mapstructure:"generation_model"`
	RewriteModel    string  `mapstructure:"rewrite_model"`
	EmbedderModel   string  `mapstructure:"embedder_model"`
	Temperature     float32 `mapstructure:"temperature"`
	TopP            float32 `mapstructure:"top_p"`
	TopKSampling    int     `mapstructure:"top_k_sampling"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	ModelTimeoutSec int     `mapstructure:"model_timeout_sec"`
	EmbedRPS        float64 `mapstructure:"embed_rps"`

	// Retrieval pipeline
	TopK          int `mapstructure:"top_k"`
	OverFetch     int `mapstructure:"over_fetch"`
	ContextBudget int `mapstructure:"context_budget"`
	ChunkSize     int `mapstructure:"chunk_size"`
	ChunkOverlap  int `mapstructure:"chunk_overlap"`

	// Cross-encoder rerank service
	RerankURL        string `mapstructure:"rerank_url"`
	RerankModel      string `mapstructure:"rerank_model"`
	RerankTimeoutSec int    `mapstructure:"rerank_timeout_sec"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never log
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".nanobook")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)

	// NANOBOOK_POSTGRES_HOST overrides postgres_host, etc.
	// GEMINI_API_KEY is read directly by the googlegenai plugin, not via Viper;
	// it is checked in Validate().
	v.SetEnvPrefix("NANOBOOK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_addr", "127.0.0.1:8080")
	v.SetDefault("upload_dir", "data_sources")

	// AI defaults. Temperature/TopP/TopK follow the deterministic-leaning
	// grounded-answer profile rather than a creative-writing profile.
	v.SetDefault("generation_model", DefaultGenerationModel)
	v.SetDefault("rewrite_model", DefaultRewriteModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("top_p", 0.8)
	v.SetDefault("top_k_sampling", 40)
	v.SetDefault("max_output_tokens", 1024)
	v.SetDefault("model_timeout_sec", 60)
	v.SetDefault("embed_rps", 10.0)

	// Retrieval defaults
	v.SetDefault("top_k", 10)
	v.SetDefault("over_fetch", 3)
	v.SetDefault("context_budget", 6000)
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 100)

	// Rerank defaults
	v.SetDefault("rerank_url", "http://localhost:8787")
	v.SetDefault("rerank_model", DefaultRerankModel)
	v.SetDefault("rerank_timeout_sec", 10)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "nanobook")
	v.SetDefault("postgres_password", "nanobook_dev_password")
	v.SetDefault("postgres_db_name", "nanobook")
	v.SetDefault("postgres_ssl_mode", "disable")
}
