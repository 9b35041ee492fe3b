package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded from a single YAML
// file. Secrets (API keys, passwords) may also be injected via environment
// variables, which take precedence over file values.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracing   TracingConfig   `yaml:"tracing"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Adzuna    AdzunaConfig    `yaml:"adzuna"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	MinIO     MinIOConfig     `yaml:"minio"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"` // listen address, e.g. ":8080"
	APIKey  string `yaml:"api_key"` // optional; enables key auth when set
}

// LoggerConfig mirrors logger.Config so the logger package stays
// independent of YAML parsing.
type LoggerConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	TimeFormat   string `yaml:"time_format"`
	ReportCaller bool   `yaml:"report_caller"`
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // host:port of the OTLP/gRPC collector
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// LLMConfig configures the chat model used for resume structuring,
// compatibility scoring and refinement interpretation.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"` // OpenAI-compatible chat completions endpoint
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	QPM         int     `yaml:"qpm"` // rate cap for scoring calls
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"` // OpenAI-compatible embeddings endpoint
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"`
	MaxBatchSize int    `yaml:"max_batch_size"`
	CacheEnabled bool   `yaml:"cache_enabled"`
	CacheTTL     string `yaml:"cache_ttl"` // duration string, e.g. "1h"
}

// AdzunaConfig configures the external job-search API client.
type AdzunaConfig struct {
	AppID           string `yaml:"app_id"`
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Country         string `yaml:"country"`
	ResultsPerPage  int    `yaml:"results_per_page"`
	MaxTotalResults int    `yaml:"max_total_results"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryBackoffMS  int    `yaml:"retry_backoff_ms"`
	CacheEnabled    bool   `yaml:"cache_enabled"`
	CacheTTL        string `yaml:"cache_ttl"`
}

// MatcherConfig configures score fusion and filtering.
type MatcherConfig struct {
	MinScore         float64 `yaml:"min_score"`          // minimum final score (0-100)
	TopN             int     `yaml:"top_n"`              // max results returned
	TopMForLLM       int     `yaml:"top_m_for_llm"`      // candidates sent to the LLM scorer
	UseLLMScoring    bool    `yaml:"use_llm_scoring"`
	SimilarityWeight float64 `yaml:"similarity_weight"`
	LLMWeight        float64 `yaml:"llm_weight"`
	ScoringWorkers   int     `yaml:"scoring_workers"` // parallel LLM scoring calls
	MinResumeChars   int     `yaml:"min_resume_chars"`
}

// SessionConfig controls in-memory search session lifecycle.
type SessionConfig struct {
	TTL             string `yaml:"ttl"`              // idle expiry, duration string
	CleanupInterval string `yaml:"cleanup_interval"`
}

// RedisConfig holds connection settings for the shared cache.
type RedisConfig struct {
	Address             string `yaml:"address"`
	Password            string `yaml:"password"`
	DB                  int    `yaml:"db"`
	PoolSize            int    `yaml:"pool_size"`
	MinIdleConns        int    `yaml:"min_idle_conns"`
	DialTimeoutSeconds  int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// MySQLConfig holds settings for the history/audit database.
type MySQLConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	LogLevel        string `yaml:"log_level"`
}

// DSN builds the MySQL connection string.
func (m MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// MinIOConfig holds object storage settings for uploaded resumes.
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	ResumeBucket    string `yaml:"resume_bucket"`
	Location        string `yaml:"location"`
	RetentionDays   int    `yaml:"retention_days"`
}

// RabbitMQConfig holds settings for event publication.
type RabbitMQConfig struct {
	URL                string `yaml:"url"`
	EventsExchange     string `yaml:"events_exchange"`
	SearchCompletedKey string `yaml:"search_completed_routing_key"`
	RelayInterval      string `yaml:"relay_interval"`
	RelayBatchSize     int    `yaml:"relay_batch_size"`
	MaxPublishAttempts int    `yaml:"max_publish_attempts"`
}

// Defaults applied when the YAML file leaves fields unset.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: ":8080",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "jobmatcher",
			SampleRatio: 0.1,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   2000,
			QPM:         60,
		},
		Embedding: EmbeddingConfig{
			BaseURL:      "https://api.openai.com/v1/embeddings",
			Model:        "text-embedding-3-small",
			Dimensions:   1536,
			MaxBatchSize: 32,
			CacheTTL:     "1h",
		},
		Adzuna: AdzunaConfig{
			BaseURL:         "https://api.adzuna.com/v1/api",
			Country:         "us",
			ResultsPerPage:  50,
			MaxTotalResults: 150,
			MaxRetries:      3,
			RetryBackoffMS:  500,
			CacheTTL:        "1h",
		},
		Matcher: MatcherConfig{
			MinScore:         60,
			TopN:             10,
			TopMForLLM:       10,
			UseLLMScoring:    true,
			SimilarityWeight: 0.4,
			LLMWeight:        0.6,
			ScoringWorkers:   4,
			MinResumeChars:   100,
		},
		Session: SessionConfig{
			TTL:             "30m",
			CleanupInterval: "5m",
		},
		RabbitMQ: RabbitMQConfig{
			EventsExchange:     "jobmatcher.events",
			SearchCompletedKey: "search.completed",
			RelayInterval:      "5s",
			RelayBatchSize:     50,
			MaxPublishAttempts: 5,
		},
	}
}

// LoadConfig reads the configuration from configPath. When configPath is
// empty, a handful of conventional locations are searched. Missing files
// are an error; missing fields fall back to defaults.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"./config.yaml",
			"../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".jobmatcher", "config.yaml"),
		}
		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			searchPaths = append(searchPaths,
				filepath.Join(execDir, "config.yaml"),
				filepath.Join(execDir, "..", "config.yaml"),
			)
		}
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no config file found in default locations")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them into the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("ADZUNA_APP_ID"); v != "" {
		cfg.Adzuna.AppID = v
	}
	if v := os.Getenv("ADZUNA_API_KEY"); v != "" {
		cfg.Adzuna.APIKey = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		cfg.MySQL.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretAccessKey = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Matcher.SimilarityWeight+c.Matcher.LLMWeight != 0 {
		sum := c.Matcher.SimilarityWeight + c.Matcher.LLMWeight
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("matcher weights must sum to 1, got %.3f", sum)
		}
	}
	if c.Matcher.MinScore < 0 || c.Matcher.MinScore > 100 {
		return fmt.Errorf("matcher min_score must be within [0,100], got %.1f", c.Matcher.MinScore)
	}
	if c.Matcher.TopN <= 0 {
		return fmt.Errorf("matcher top_n must be positive, got %d", c.Matcher.TopN)
	}
	if c.Embedding.MaxBatchSize <= 0 {
		return fmt.Errorf("embedding max_batch_size must be positive, got %d", c.Embedding.MaxBatchSize)
	}
	return nil
}

// SessionTTL parses the configured session TTL, falling back to 30 minutes.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// SessionCleanupInterval parses the janitor interval, falling back to 5 minutes.
func (c *Config) SessionCleanupInterval() time.Duration {
	d, err := time.ParseDuration(c.Session.CleanupInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
