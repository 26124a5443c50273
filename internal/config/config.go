package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration. Values come from an optional
// YAML file (CONFIG_PATH), overridden by DRAFTFLOW_* environment variables.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	Redis        RedisConfig        `mapstructure:"redis"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Limits       LimitsConfig       `mapstructure:"limits"`
	Session      SessionConfig      `mapstructure:"session"`
	Clarify      ClarifyConfig      `mapstructure:"clarify"`
	Audit        AuditConfig        `mapstructure:"audit"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CapabilitiesConfig struct {
	AIServiceURL     string        `mapstructure:"ai_service_url"`
	SearchServiceURL string        `mapstructure:"search_service_url"`
	AITimeout        time.Duration `mapstructure:"ai_timeout"`
	SearchTimeout    time.Duration `mapstructure:"search_timeout"`
	// Client-side rate limit on the AI capability
	AIRateLimit float64 `mapstructure:"ai_rate_limit"`
	AIRateBurst int     `mapstructure:"ai_rate_burst"`
}

type LimitsConfig struct {
	MaxQueries       int           `mapstructure:"max_queries"`
	MaxResults       int           `mapstructure:"max_results"`
	MaxResultsPerQry int           `mapstructure:"max_results_per_query"`
	MaxCrawls        int           `mapstructure:"max_crawls"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	MaxContentLength int           `mapstructure:"max_content_length"`
	MinQuestions     int           `mapstructure:"min_questions"`
	MaxQuestions     int           `mapstructure:"max_questions"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	CheckpointTTL time.Duration `mapstructure:"checkpoint_ttl"`
}

type ClarifyConfig struct {
	// Optional on-disk question catalog overriding the embedded defaults;
	// watched for changes when set.
	CatalogPath string `mapstructure:"catalog_path"`
}

type AuditConfig struct {
	// Postgres DSN for the terminal-workflow audit log; empty disables auditing.
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// Load reads configuration from CONFIG_PATH (if set) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DRAFTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8085")
	v.SetDefault("metrics_addr", ":9095")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("capabilities.ai_service_url", "http://ai-service:8000")
	v.SetDefault("capabilities.search_service_url", "http://search-service:8100")
	v.SetDefault("capabilities.ai_timeout", 120*time.Second)
	v.SetDefault("capabilities.search_timeout", 15*time.Second)
	v.SetDefault("capabilities.ai_rate_limit", 5.0)
	v.SetDefault("capabilities.ai_rate_burst", 10)

	v.SetDefault("limits.max_queries", 5)
	v.SetDefault("limits.max_results", 24)
	v.SetDefault("limits.max_results_per_query", 8)
	v.SetDefault("limits.max_crawls", 4)
	v.SetDefault("limits.fetch_timeout", 20*time.Second)
	v.SetDefault("limits.max_content_length", 40_000)
	v.SetDefault("limits.min_questions", 2)
	v.SetDefault("limits.max_questions", 5)

	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.checkpoint_ttl", 48*time.Hour)
}

// Validate rejects configurations the workflow cannot run with.
func (c *Config) Validate() error {
	if c.Limits.MaxQueries < 1 {
		return fmt.Errorf("limits.max_queries must be >= 1, got %d", c.Limits.MaxQueries)
	}
	if c.Limits.MaxCrawls < 0 {
		return fmt.Errorf("limits.max_crawls must be >= 0, got %d", c.Limits.MaxCrawls)
	}
	if c.Limits.MinQuestions < 1 || c.Limits.MaxQuestions < c.Limits.MinQuestions {
		return fmt.Errorf("invalid question bounds: min=%d max=%d",
			c.Limits.MinQuestions, c.Limits.MaxQuestions)
	}
	if c.Session.TTL <= 0 || c.Session.CheckpointTTL <= 0 {
		return fmt.Errorf("session TTLs must be positive")
	}
	return nil
}
