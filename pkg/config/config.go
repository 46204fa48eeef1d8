package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Typesense   TypesenseConfig
	OpenAI      OpenAIConfig
	Search      SearchConfig
	Analytics   AnalyticsConfig
	OTEL        OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// OpenAIConfig holds the embeddings client configuration
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Dimensions     int
	RateLimitRPM   int
	RateLimitBurst int
	Timeout        time.Duration
}

// ScoringWeights are the composite score weights. They must sum to 1.0.
type ScoringWeights struct {
	Semantic float64
	Lexical  float64
	Category float64
	Recency  float64
}

// Sum returns the total of all weights.
func (w ScoringWeights) Sum() float64 {
	return w.Semantic + w.Lexical + w.Category + w.Recency
}

// SearchConfig holds ranking, pagination and caching configuration
type SearchConfig struct {
	CorpusBackend         string // postgres, typesense or memory
	Weights               ScoringWeights
	DefaultPageSize       int
	MaxPageSize           int
	CandidateLimit        int
	ResultCacheTTL        time.Duration
	EmbeddingCacheSize    int
	EmbeddingCacheTTL     time.Duration
	SharedEmbeddingTTL    time.Duration
	SemanticSearchEnabled bool
	ResultCacheEnabled    bool
}

// AnalyticsConfig holds query analytics and clustering thresholds
type AnalyticsConfig struct {
	PopularMinSearches   int
	AttentionMaxHitRate  float64
	AttentionMinSearches int
	WindowDays           int
	FlagUpdateInterval   time.Duration
	ClusterThreshold     float64
	ClusterMinSearches   int
	TrackTimeout         time.Duration
	WarmQueryLimit       int
	WarmInterval         time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "eventscan"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			Model:          getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions:     getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
			RateLimitRPM:   getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 3000),
			RateLimitBurst: getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 50),
			Timeout:        getEnvAsDuration("OPENAI_TIMEOUT", 5*time.Second),
		},
		Search: SearchConfig{
			CorpusBackend: getEnv("SEARCH_CORPUS_BACKEND", "postgres"),
			Weights: ScoringWeights{
				Semantic: getEnvAsFloat("SEARCH_WEIGHT_SEMANTIC", 0.40),
				Lexical:  getEnvAsFloat("SEARCH_WEIGHT_LEXICAL", 0.35),
				Category: getEnvAsFloat("SEARCH_WEIGHT_CATEGORY", 0.15),
				Recency:  getEnvAsFloat("SEARCH_WEIGHT_RECENCY", 0.10),
			},
			DefaultPageSize:       getEnvAsInt("SEARCH_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:           getEnvAsInt("SEARCH_MAX_PAGE_SIZE", 50),
			CandidateLimit:        getEnvAsInt("SEARCH_CANDIDATE_LIMIT", 500),
			ResultCacheTTL:        getEnvAsDuration("SEARCH_RESULT_CACHE_TTL", 60*time.Second),
			EmbeddingCacheSize:    getEnvAsInt("SEARCH_EMBEDDING_CACHE_SIZE", 10000),
			EmbeddingCacheTTL:     getEnvAsDuration("SEARCH_EMBEDDING_CACHE_TTL", 24*time.Hour),
			SharedEmbeddingTTL:    getEnvAsDuration("SEARCH_SHARED_EMBEDDING_TTL", 7*24*time.Hour),
			SemanticSearchEnabled: getEnvAsBool("FEATURE_SEMANTIC_SEARCH", true),
			ResultCacheEnabled:    getEnvAsBool("FEATURE_RESULT_CACHE", true),
		},
		Analytics: AnalyticsConfig{
			PopularMinSearches:   getEnvAsInt("ANALYTICS_POPULAR_MIN_SEARCHES", 10),
			AttentionMaxHitRate:  getEnvAsFloat("ANALYTICS_ATTENTION_MAX_HIT_RATE", 30),
			AttentionMinSearches: getEnvAsInt("ANALYTICS_ATTENTION_MIN_SEARCHES", 5),
			WindowDays:           getEnvAsInt("ANALYTICS_WINDOW_DAYS", 7),
			FlagUpdateInterval:   getEnvAsDuration("ANALYTICS_FLAG_UPDATE_INTERVAL", time.Hour),
			ClusterThreshold:     getEnvAsFloat("ANALYTICS_CLUSTER_THRESHOLD", 0.85),
			ClusterMinSearches:   getEnvAsInt("ANALYTICS_CLUSTER_MIN_SEARCHES", 3),
			TrackTimeout:         getEnvAsDuration("ANALYTICS_TRACK_TIMEOUT", 5*time.Second),
			WarmQueryLimit:       getEnvAsInt("ANALYTICS_WARM_QUERY_LIMIT", 100),
			WarmInterval:         getEnvAsDuration("ANALYTICS_WARM_INTERVAL", 30*time.Minute),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "eventscan-search"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise produce silently wrong rankings.
func (c *Config) Validate() error {
	if math.Abs(c.Search.Weights.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("search weights must sum to 1.0, got %.4f", c.Search.Weights.Sum())
	}
	if c.Search.MaxPageSize < 1 {
		return fmt.Errorf("SEARCH_MAX_PAGE_SIZE must be positive, got %d", c.Search.MaxPageSize)
	}
	if c.Search.DefaultPageSize < 1 || c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("SEARCH_DEFAULT_PAGE_SIZE must be between 1 and %d, got %d", c.Search.MaxPageSize, c.Search.DefaultPageSize)
	}
	switch c.Search.CorpusBackend {
	case "postgres", "typesense", "memory":
	default:
		return fmt.Errorf("unknown SEARCH_CORPUS_BACKEND %q", c.Search.CorpusBackend)
	}
	if c.Analytics.ClusterThreshold <= 0 || c.Analytics.ClusterThreshold > 1 {
		return fmt.Errorf("ANALYTICS_CLUSTER_THRESHOLD must be in (0, 1], got %.2f", c.Analytics.ClusterThreshold)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
