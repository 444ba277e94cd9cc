// Command ingestion starts the vocabulary ingestion HTTP service.
//
// The service accepts term additions and removals via POST /api/v1/terms,
// validates them, persists them to PostgreSQL, and publishes one event per
// term to Kafka for the lookup instances to apply.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/postgres"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := vocab.NewStore(db)
	err = resilience.Retry(ctx, "vocabulary-schema", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		return postgres.Classify(store.EnsureSchema(ctx))
	})
	if err != nil {
		slog.Error("failed to prepare vocabulary table", "error", err)
		os.Exit(1)
	}

	producer, err := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.VocabularyEvents)
	if err != nil {
		slog.Error("failed to create kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	slog.Info("kafka producer initialized",
		"topic", cfg.Kafka.Topics.VocabularyEvents,
		"compression", cfg.Kafka.Producer.Compression,
		"batch_timeout", cfg.Kafka.Producer.BatchTimeout,
	)

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port, nil); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	pub := publisher.New(store, producer, m)
	h := handler.New(pub)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck("postgres", 2*time.Second, health.StatusDown, db.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/terms", h.Terms)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimitPerMinute > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(ctx, cfg.Server.RateLimitPerMinute, time.Minute))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
