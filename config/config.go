package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/usecase"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Matching   MatchingConfig
	LLM        LLMConfig
	Vision     VisionConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Processing ProcessingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MatchingConfig holds scoring weights and orchestration limits
type MatchingConfig struct {
	ImageWeight         float64       `mapstructure:"image_weight"`
	TextWeight          float64       `mapstructure:"text_weight"`
	MetadataWeight      float64       `mapstructure:"metadata_weight"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	MaxConcurrency      int           `mapstructure:"max_concurrency"`
	CandidateLimit      int           `mapstructure:"candidate_limit"`
	ScoringTimeout      time.Duration `mapstructure:"scoring_timeout"`
}

// ScoringConfig converts the matching section into the scorer's configuration
func (m MatchingConfig) ScoringConfig() usecase.ScoringConfig {
	return usecase.ScoringConfig{
		ImageWeight:         m.ImageWeight,
		TextWeight:          m.TextWeight,
		MetadataWeight:      m.MetadataWeight,
		ConfidenceThreshold: m.ConfidenceThreshold,
		MaxConcurrency:      m.MaxConcurrency,
		ScoringTimeout:      m.ScoringTimeout,
	}
}

// LLMConfig holds configuration for the OpenAI-compatible language model API
type LLMConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	EmbeddingsModel   string        `mapstructure:"embeddings_model"`
	SemanticMode      string        `mapstructure:"semantic_mode"` // "prompt" or "embedding"
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// VisionConfig holds configuration for the image annotation API
type VisionConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxLabels  int           `mapstructure:"max_labels"`
	MaxObjects int           `mapstructure:"max_objects"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProcessingConfig holds background processing configuration
type ProcessingConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
}

// Load loads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: error reading .env file: %v", domain.ErrConfiguration, err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/lostfound/")

	// Environment variable settings
	v.SetEnvPrefix("LOSTFOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: error reading config file: %v", domain.ErrConfiguration, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("%w: unable to decode config: %v", domain.ErrConfiguration, err)
	}

	if err := validate(&config); err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key gets a default so
// that environment-only values are picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Matching defaults
	v.SetDefault("matching.image_weight", usecase.DefaultImageWeight)
	v.SetDefault("matching.text_weight", usecase.DefaultTextWeight)
	v.SetDefault("matching.metadata_weight", usecase.DefaultMetadataWeight)
	v.SetDefault("matching.confidence_threshold", usecase.DefaultConfidenceThreshold)
	v.SetDefault("matching.max_concurrency", usecase.DefaultMaxConcurrency)
	v.SetDefault("matching.candidate_limit", 50)
	v.SetDefault("matching.scoring_timeout", "30s")

	// LLM defaults
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.embeddings_model", "text-embedding-3-small")
	v.SetDefault("llm.semantic_mode", "prompt")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.requests_per_second", 2)
	v.SetDefault("llm.burst", 4)
	v.SetDefault("llm.max_retries", 3)

	// Vision defaults
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.base_url", "https://vision.googleapis.com/v1")
	v.SetDefault("vision.timeout", "30s")
	v.SetDefault("vision.max_labels", 10)
	v.SetDefault("vision.max_objects", 10)
	v.SetDefault("vision.requests_per_second", 10)
	v.SetDefault("vision.burst", 10)
	v.SetDefault("vision.max_retries", 3)

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "168h") // 7 days

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Processing defaults
	v.SetDefault("processing.workers", 2)
	v.SetDefault("processing.queue_size", 100)
	v.SetDefault("processing.item_timeout", "2m")
}

// validate validates the configuration
func validate(config *Config) error {
	// weights and threshold must be finite
	if err := config.Matching.ScoringConfig().Validate(); err != nil {
		return err
	}

	if config.Matching.MaxConcurrency < 1 {
		return fmt.Errorf("matching.max_concurrency must be at least 1, got: %d", config.Matching.MaxConcurrency)
	}

	if config.Matching.CandidateLimit < 1 {
		return fmt.Errorf("matching.candidate_limit must be at least 1, got: %d", config.Matching.CandidateLimit)
	}

	if config.Database.URL == "" {
		return fmt.Errorf("database URL is required (set LOSTFOUND_DATABASE_URL)")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache type is 'redis'")
	}

	if config.LLM.SemanticMode != "prompt" && config.LLM.SemanticMode != "embedding" {
		return fmt.Errorf("llm semantic mode must be 'prompt' or 'embedding', got: %s", config.LLM.SemanticMode)
	}

	switch config.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, got: %s", config.Log.Level)
	}

	return nil
}
