package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Fuzzy.MaxEditDistance != 2 || cfg.Fuzzy.Comparison != "ignore-case" {
		t.Errorf("fuzzy defaults = %+v", cfg.Fuzzy)
	}
	if cfg.Server.Port != 8080 || cfg.Redis.CacheTTL != time.Minute {
		t.Errorf("server/redis defaults = %d, %v", cfg.Server.Port, cfg.Redis.CacheTTL)
	}
	if cfg.Lookup.MaxQueryBytes != 256 || cfg.Lookup.MaxExplainVariants != 4096 {
		t.Errorf("lookup bounds = %+v", cfg.Lookup)
	}
	if p := cfg.Kafka.Producer; p.BatchTimeout != 5*time.Millisecond || p.Compression != "lz4" || p.RequiredAcks != "all" {
		t.Errorf("kafka producer defaults = %+v", p)
	}
	if cfg.Kafka.Consumer.RetryBackoff != time.Second {
		t.Errorf("kafka consumer defaults = %+v", cfg.Kafka.Consumer)
	}
}

func TestLoad_DevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Kafka.Producer.BatchBytes != 256<<10 || cfg.Kafka.Consumer.MaxWait != 250*time.Millisecond {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
fuzzy:
  maxEditDistance: 1
  comparison: exact
  locale: tr
lookup:
  defaultLimit: 5
  maxLimit: 10
redis:
  cacheTTL: 5m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Fuzzy.MaxEditDistance != 1 || cfg.Fuzzy.Comparison != "exact" || cfg.Fuzzy.Locale != "tr" {
		t.Errorf("fuzzy = %+v", cfg.Fuzzy)
	}
	if cfg.Lookup.DefaultLimit != 5 || cfg.Lookup.MaxLimit != 10 {
		t.Errorf("lookup = %+v", cfg.Lookup)
	}
	if cfg.Redis.CacheTTL != 5*time.Minute {
		t.Errorf("redis.cacheTTL = %v; want 5m", cfg.Redis.CacheTTL)
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres.port default lost: %d", cfg.Postgres.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FL_FUZZY_MAX_EDIT_DISTANCE", "3")
	t.Setenv("FL_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FL_REDIS_ENABLED", "false")
	t.Setenv("FL_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Fuzzy.MaxEditDistance != 3 {
		t.Errorf("maxEditDistance = %d; want 3", cfg.Fuzzy.MaxEditDistance)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Redis.Enabled {
		t.Error("redis still enabled")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unparseable port override applied: %d", cfg.Server.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative distance", "fuzzy:\n  maxEditDistance: -1\n"},
		{"unknown comparison", "fuzzy:\n  comparison: phonetic\n"},
		{"limits inverted", "lookup:\n  defaultLimit: 50\n  maxLimit: 10\n"},
		{"no brokers", "kafka:\n  brokers: []\n"},
		{"unbounded query", "lookup:\n  maxQueryBytes: 0\n"},
		{"unbounded explain", "lookup:\n  maxExplainVariants: 0\n"},
		{"no producer linger", "kafka:\n  producer:\n    batchTimeout: 0s\n"},
		{"no consumer backoff", "kafka:\n  consumer:\n    retryBackoff: 0s\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("Load error = %v; want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	want := "host=db port=5433 user=u password=p dbname=d sslmode=require"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q; want %q", got, want)
	}
}
