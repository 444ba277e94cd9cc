// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Fuzzy, Lookup, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Fuzzy    FuzzyConfig    `yaml:"fuzzy"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. CORSOrigins lists the browser
// origins allowed to call the lookup API; RateLimitPerMinute caps ingestion
// requests per client and 0 disables it.
type ServerConfig struct {
	Port               int           `yaml:"port"`
	ReadTimeout        time.Duration `yaml:"readTimeout"`
	WriteTimeout       time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins        []string      `yaml:"corsOrigins"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string            `yaml:"brokers"`
	ConsumerGroup string              `yaml:"consumerGroup"`
	Topics        KafkaTopics         `yaml:"topics"`
	Producer      KafkaProducerConfig `yaml:"producer"`
	Consumer      KafkaConsumerConfig `yaml:"consumer"`
}

// KafkaProducerConfig tunes the vocabulary-events writer. Each event is a
// single term of well under a kilobyte and one request carries at most a
// thousand of them, so batches flush quickly and stay small.
type KafkaProducerConfig struct {
	BatchSize    int           `yaml:"batchSize"`
	BatchBytes   int64         `yaml:"batchBytes"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	// Compression is one of none, gzip, snappy, lz4 or zstd.
	Compression string `yaml:"compression"`
	// RequiredAcks is one of all, one or none.
	RequiredAcks string `yaml:"requiredAcks"`
}

// KafkaConsumerConfig tunes the vocabulary-events reader. RetryBackoff is the
// pause after a failed fetch or a failed record before trying again.
type KafkaConsumerConfig struct {
	MaxBytes       int           `yaml:"maxBytes"`
	MaxWait        time.Duration `yaml:"maxWait"`
	CommitInterval time.Duration `yaml:"commitInterval"`
	RetryBackoff   time.Duration `yaml:"retryBackoff"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	VocabularyEvents string `yaml:"vocabularyEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// FuzzyConfig fixes the matching behaviour of the vocabulary index. None of
// it can change without rebuilding the index.
type FuzzyConfig struct {
	MaxEditDistance int    `yaml:"maxEditDistance"`
	Comparison      string `yaml:"comparison"`
	Locale          string `yaml:"locale"`
	Verify          bool   `yaml:"verify"`
}

// LookupConfig bounds lookup requests and responses. MaxQueryBytes caps the
// query length, which sets the cost of enumerating its deletion family, and
// MaxExplainVariants caps the family size /explain will materialize.
type LookupConfig struct {
	DefaultLimit       int `yaml:"defaultLimit"`
	MaxLimit           int `yaml:"maxLimit"`
	MaxQueryBytes      int `yaml:"maxQueryBytes"`
	MaxExplainVariants int `yaml:"maxExplainVariants"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would fail later at index construction or
// request time.
func (c *Config) Validate() error {
	var problems []string
	if c.Fuzzy.MaxEditDistance < 0 {
		problems = append(problems, fmt.Sprintf("fuzzy.maxEditDistance must be >= 0, got %d", c.Fuzzy.MaxEditDistance))
	}
	switch c.Fuzzy.Comparison {
	case "exact", "ignore-case":
	default:
		problems = append(problems, fmt.Sprintf("fuzzy.comparison must be exact or ignore-case, got %q", c.Fuzzy.Comparison))
	}
	if c.Lookup.DefaultLimit < 1 {
		problems = append(problems, "lookup.defaultLimit must be positive")
	}
	if c.Lookup.MaxLimit < c.Lookup.DefaultLimit {
		problems = append(problems, "lookup.maxLimit must be >= lookup.defaultLimit")
	}
	if c.Lookup.MaxQueryBytes < 1 {
		problems = append(problems, "lookup.maxQueryBytes must be positive")
	}
	if c.Lookup.MaxExplainVariants < 1 {
		problems = append(problems, "lookup.maxExplainVariants must be positive")
	}
	if c.Server.RateLimitPerMinute < 0 {
		problems = append(problems, "server.rateLimitPerMinute must be >= 0")
	}
	if len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers must not be empty")
	}
	if p := c.Kafka.Producer; p.BatchSize < 1 || p.BatchBytes < 1 || p.BatchTimeout <= 0 || p.MaxAttempts < 1 {
		problems = append(problems, "kafka.producer batchSize, batchBytes, batchTimeout and maxAttempts must be positive")
	}
	if c.Kafka.Consumer.MaxBytes < 1 || c.Kafka.Consumer.RetryBackoff <= 0 {
		problems = append(problems, "kafka.consumer maxBytes and retryBackoff must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			RateLimitPerMinute: 120,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fuzzylookup",
			User:            "fuzzylookup",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "fuzzylookup-group",
			Topics: KafkaTopics{
				VocabularyEvents: "vocabulary-events",
			},
			Producer: KafkaProducerConfig{
				BatchSize:    1000,
				BatchBytes:   256 << 10,
				BatchTimeout: 5 * time.Millisecond,
				MaxAttempts:  5,
				Compression:  "lz4",
				RequiredAcks: "all",
			},
			Consumer: KafkaConsumerConfig{
				MaxBytes:     1 << 20,
				MaxWait:      250 * time.Millisecond,
				RetryBackoff: time.Second,
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Fuzzy: FuzzyConfig{
			MaxEditDistance: 2,
			Comparison:      "ignore-case",
		},
		Lookup: LookupConfig{
			DefaultLimit:       20,
			MaxLimit:           200,
			MaxQueryBytes:      256,
			MaxExplainVariants: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FL_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FL_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("FL_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FL_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FL_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FL_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FL_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FL_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("FL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FL_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("FL_FUZZY_MAX_EDIT_DISTANCE"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Fuzzy.MaxEditDistance = k
		}
	}
	if v := os.Getenv("FL_FUZZY_COMPARISON"); v != "" {
		cfg.Fuzzy.Comparison = v
	}
	if v := os.Getenv("FL_FUZZY_LOCALE"); v != "" {
		cfg.Fuzzy.Locale = v
	}
	if v := os.Getenv("FL_LOOKUP_MAX_QUERY_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Lookup.MaxQueryBytes = n
		}
	}
	if v := os.Getenv("FL_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FL_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FL_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
