package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/medinet/federation-api/pkg/messaging/redis"
	"github.com/medinet/federation-api/pkg/worker"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Federation FederationConfig `mapstructure:"federation"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Email      EmailConfig      `mapstructure:"email"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// FederationConfig bounds the scatter-gather fan-out.
type FederationConfig struct {
	// HospitalTimeout caps each per-hospital call. The whole fan-out is
	// bounded by this value since calls run in parallel.
	HospitalTimeout time.Duration `mapstructure:"hospital_timeout"`
	// RetryCount is the bounded transport-level retry before a hospital is
	// classified unreachable.
	RetryCount int `mapstructure:"retry_count"`
	// DirectoryCacheTTL controls how long the hospital directory is cached
	// by the client registry.
	DirectoryCacheTTL time.Duration `mapstructure:"directory_cache_ttl"`
	// PolicyCacheTTL controls how long access-policy lookups are cached.
	PolicyCacheTTL time.Duration `mapstructure:"policy_cache_ttl"`
}

type AuditConfig struct {
	// Strict makes a failed audit append fatal to the enclosing operation.
	// Default false: the entry is parked in the outbox and retried.
	Strict bool `mapstructure:"strict"`
	// EncryptionKey, when set, seals audit detail text at rest (16/24/32
	// byte AES key).
	EncryptionKey string `mapstructure:"encryption_key"`
	Outbox        struct {
		BatchSize    int           `mapstructure:"batch_size"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
		MaxRetries   int           `mapstructure:"max_retries"`
		RetryDelay   time.Duration `mapstructure:"retry_delay"`
	} `mapstructure:"outbox"`
}

type EmailConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	From            string `mapstructure:"from"`
	ComplianceInbox string `mapstructure:"compliance_inbox"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("federation.hospital_timeout", 5*time.Second)
	viper.SetDefault("federation.retry_count", 1)
	viper.SetDefault("federation.directory_cache_ttl", 5*time.Minute)
	viper.SetDefault("federation.policy_cache_ttl", 30*time.Second)
	viper.SetDefault("audit.strict", false)
	viper.SetDefault("audit.outbox.batch_size", 100)
	viper.SetDefault("audit.outbox.poll_interval", 5*time.Second)
	viper.SetDefault("audit.outbox.max_retries", 3)
	viper.SetDefault("audit.outbox.retry_delay", 5*time.Second)
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_second", 50.0)
	viper.SetDefault("rate_limit.burst", 100)
	viper.SetDefault("monitoring.prometheus_enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
}

// ToBrokerConfig maps the redis section onto the broker config.
func (c *Config) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.Redis.URL,
		MaxRetries:   c.Redis.MaxRetries,
		RetryBackoff: c.Redis.RetryBackoff,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
	}
}

// ToOutboxConfig maps the audit outbox section onto the worker config.
func (c *Config) ToOutboxConfig() worker.AuditOutboxConfig {
	return worker.AuditOutboxConfig{
		BatchSize:    c.Audit.Outbox.BatchSize,
		PollInterval: c.Audit.Outbox.PollInterval,
		MaxRetries:   c.Audit.Outbox.MaxRetries,
		RetryDelay:   c.Audit.Outbox.RetryDelay,
	}
}
