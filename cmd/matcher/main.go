// Command matcher starts the OCR coordinate match service.
//
// The service ingests already-OCR'd documents (tokens with bounding boxes),
// answers fuzzy phrase-match queries with page coordinates, runs the
// consuming person-by-person locate flow, and exports located coordinates as
// CSV. Match events stream through Kafka into the analytics aggregator.
//
// Usage:
//
//	go run ./cmd/matcher [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/extraction"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/matchsvc"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/redis"
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
	slog.Info("starting matcher service",
		"port", cfg.Server.Port,
		"fuzzy_threshold", cfg.Matcher.FuzzyThreshold,
		"extraction_enabled", cfg.Extraction.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	cache, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	slog.Info("connected to redis")

	m := metrics.New()
	metricsShutdown := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer ingestProducer.Close()
	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()

	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()

	aggregator := analytics.NewAggregator()
	matchConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleMatchEvent(aggregator))
	ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, analytics.HandleIngestEvent(aggregator))
	go func() {
		if err := matchConsumer.Start(ctx); err != nil {
			slog.Error("match event consumer stopped", "error", err)
		}
	}()
	go func() {
		if err := ingestConsumer.Start(ctx); err != nil {
			slog.Error("ingest event consumer stopped", "error", err)
		}
	}()

	docStore := store.New(db, cache, ingestProducer, m, cfg.Redis.PageTTL)
	engine := match.NewEngine(match.Options{
		FuzzyThreshold:         cfg.Matcher.FuzzyThreshold,
		ContextWindow:          cfg.Matcher.ContextWindow,
		ContextSimilarityFloor: cfg.Matcher.ContextSimilarityFloor,
		EarlyExitScore:         cfg.Matcher.EarlyExitScore,
		EarlyExitContextBonus:  cfg.Matcher.EarlyExitContextBonus,
	})
	extractor := extraction.New(cfg.Extraction, m)
	resultCache := matchsvc.NewResultCache(cache, cfg.Redis.CacheTTL, m)
	service := matchsvc.NewService(engine, docStore, resultCache, collector, extractor, m, cfg.Matcher.MaxConcurrentQueries)
	handler := matchsvc.NewHandler(service, docStore, resultCache)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.DB.PingContext))
	checker.Register("redis", health.PingCheck(cache.Ping))

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var root http.Handler = mux
	root = middleware.Timeout(cfg.Server.WriteTimeout)(root)
	if cfg.Auth.Enabled {
		validator := apikey.NewValidator(db)
		limiter := ratelimit.New(cfg.Auth.RateLimitWindow)
		defer limiter.Stop()
		root = middleware.RateLimit(limiter)(root)
		root = middleware.Auth(validator)(root)
	}
	root = middleware.CORS(middleware.DefaultCORSConfig())(root)
	root = middleware.Metrics(m)(root)
	root = middleware.RequestID(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
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
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	slog.Info("matcher service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Give in-flight analytics events a moment to drain.
	time.Sleep(100 * time.Millisecond)
	slog.Info("matcher service stopped")
}
