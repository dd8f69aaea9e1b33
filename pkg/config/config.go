package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Search backends
const (
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendTypesense = "typesense"
	BackendMemory    = "memory"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Redis     RedisConfig     `yaml:"redis"`
	Typesense TypesenseConfig `yaml:"typesense"`
	OTEL      OTELConfig      `yaml:"otel"`
	Search    SearchConfig    `yaml:"search"`
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig holds the local SQLite backend settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Endpoint       string `yaml:"endpoint"`
	Enabled        bool   `yaml:"enabled"`
}

// SearchConfig tunes the search dispatcher
type SearchConfig struct {
	Backend                string        `yaml:"backend"`
	Tables                 []string      `yaml:"tables"`
	CacheTTL               time.Duration `yaml:"cache_ttl"`
	CacheSize              int           `yaml:"cache_size"`
	SharedCache            bool          `yaml:"shared_cache"`
	AnalyticsTable         string        `yaml:"analytics_table"`
	AnalyticsBatchSize     int           `yaml:"analytics_batch_size"`
	AnalyticsFlushInterval time.Duration `yaml:"analytics_flush_interval"`
	CandidateLimit         int           `yaml:"candidate_limit"`
	FacetSampleLimit       int           `yaml:"facet_sample_limit"`
	FuzzyThreshold         float64       `yaml:"fuzzy_threshold"`
	FullTextColumn         string        `yaml:"fulltext_column"`
	// QueryFields lists, per table, the fields the typesense backend searches by default
	QueryFields map[string][]string `yaml:"query_fields"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "ghxstship-search"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "ghxstship"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "ghxstship.db"),
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
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "ghxstship-search"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Search: SearchConfig{
			Backend:                getEnv("SEARCH_BACKEND", BackendPostgres),
			Tables:                 getEnvAsList("SEARCH_TABLES", []string{"companies", "assets", "marketplace_listings"}),
			CacheTTL:               getEnvAsDuration("SEARCH_CACHE_TTL", 5*time.Minute),
			CacheSize:              getEnvAsInt("SEARCH_CACHE_SIZE", 100),
			SharedCache:            getEnvAsBool("SEARCH_SHARED_CACHE", false),
			AnalyticsTable:         getEnv("SEARCH_ANALYTICS_TABLE", "search_analytics"),
			AnalyticsBatchSize:     getEnvAsInt("SEARCH_ANALYTICS_BATCH_SIZE", 50),
			AnalyticsFlushInterval: getEnvAsDuration("SEARCH_ANALYTICS_FLUSH_INTERVAL", 30*time.Second),
			CandidateLimit:         getEnvAsInt("SEARCH_CANDIDATE_LIMIT", 1000),
			FacetSampleLimit:       getEnvAsInt("SEARCH_FACET_SAMPLE_LIMIT", 1000),
			FuzzyThreshold:         getEnvAsFloat("SEARCH_FUZZY_THRESHOLD", 0.3),
			FullTextColumn:         getEnv("SEARCH_FULLTEXT_COLUMN", "fts"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads the environment configuration and overlays the YAML file at path.
// Keys absent from the file keep their environment or default values.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at wiring time
func (c *Config) Validate() error {
	switch c.Search.Backend {
	case BackendPostgres, BackendSQLite, BackendTypesense, BackendMemory:
	default:
		return fmt.Errorf("unsupported search backend %q", c.Search.Backend)
	}
	if c.Search.CacheSize <= 0 {
		return fmt.Errorf("search cache size must be positive, got %d", c.Search.CacheSize)
	}
	if c.Search.AnalyticsBatchSize <= 0 {
		return fmt.Errorf("analytics batch size must be positive, got %d", c.Search.AnalyticsBatchSize)
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be within [0,1], got %v", c.Search.FuzzyThreshold)
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
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
