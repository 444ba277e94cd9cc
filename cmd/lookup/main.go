// Command lookup serves fuzzy term lookups from an in-memory deletion-hash
// index.
//
// At startup the vocabulary is loaded from PostgreSQL; afterwards the service
// follows the vocabulary-events topic so additions and removals made through
// the ingestion service show up without a restart. Every instance consumes
// the whole topic in its own consumer group.
//
// Usage:
//
//	go run ./cmd/lookup [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/lookup/handler"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/vocab/consumer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting lookup service", "port", cfg.Server.Port)

	if err := run(cfg); err != nil {
		slog.Error("lookup service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("lookup service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	engine, err := vocab.NewEngine(cfg.Fuzzy, m)
	if err != nil {
		return err
	}

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	loadStart := time.Now()
	if err := warmUp(ctx, engine, vocab.NewStore(db), warmUpRetry); err != nil {
		return err
	}
	stats := engine.Stats()
	slog.Info("vocabulary warmed",
		"terms", stats.Terms,
		"buckets", stats.Buckets,
		"elapsed", time.Since(loadStart),
	)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, lookup caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("lookup cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("vocabulary", func(ctx context.Context) health.ComponentHealth {
		s := engine.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d terms in %d buckets", s.Terms, s.Buckets),
		}
	})
	checker.Register("postgres", health.PingCheck("postgres", 2*time.Second, health.StatusDegraded, db.Ping))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.PingCheck("redis", time.Second, health.StatusDegraded, redisClient.Ping)(ctx)
	})

	h := handler.New(engine, queryCache, m, cfg.Lookup)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/lookup", h.Lookup)
	mux.HandleFunc("GET /api/v1/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/collisions", h.Collisions)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.LookupCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	groupID := instanceGroup(cfg.Kafka.ConsumerGroup)
	events := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.VocabularyEvents, groupID, consumer.HandleMessage(engine, m)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Start(gctx)
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Port, nil)
		})
	}
	g.Go(func() error {
		slog.Info("lookup service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down lookup service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// warmUpRetry spaces out attempts to read the vocabulary while PostgreSQL is
// still recovering.
var warmUpRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}

// vocabularyStore is the part of *vocab.Store the warm-up needs.
type vocabularyStore interface {
	vocab.TermSource
	EnsureSchema(ctx context.Context) error
}

// warmUp creates the vocabulary table if needed and loads it into engine.
// Only transient database failures are retried; a rejected statement, a bad
// row or a cancelled context ends the warm-up at once. A retried load may
// re-add terms an earlier attempt already added, which the engine ignores.
func warmUp(ctx context.Context, engine *vocab.Engine, store vocabularyStore, retry resilience.RetryConfig) error {
	err := resilience.Retry(ctx, "vocabulary-schema", retry, func() error {
		return postgres.Classify(store.EnsureSchema(ctx))
	})
	if err != nil {
		return err
	}
	return resilience.Retry(ctx, "vocabulary-load", retry, func() error {
		_, err := engine.Load(ctx, store)
		return postgres.Classify(err)
	})
}

// instanceGroup gives each instance its own consumer group so that every
// index receives every vocabulary event.
func instanceGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid%d", os.Getpid())
	}
	return base + "-" + host
}
