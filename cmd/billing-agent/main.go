package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"billing-agent/internal/cache"
	"billing-agent/internal/config"
	"billing-agent/internal/convo"
	"billing-agent/internal/gateway"
	"billing-agent/internal/handlers"
	"billing-agent/internal/intent"
	"billing-agent/internal/metrics"
	"billing-agent/internal/nlu"
	"billing-agent/internal/store"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(cfg.MetricsNamespace, registry)

	st, err := store.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("connect store failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema failed", "error", err)
		os.Exit(1)
	}

	redis, err := cache.New(ctx, cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TLS:      cfg.RedisTLS,
		DedupTTL: cfg.DedupTTL,
	})
	if err != nil {
		logger.Error("connect redis failed", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	extractor := nlu.New(nlu.Config{
		BaseURL: cfg.OllamaBase,
		Model:   cfg.OllamaModel,
		Timeout: cfg.OllamaTimeout,
	}, logger, m)

	billing := gateway.New(gateway.Config{
		BaseURL: cfg.GatewayBase,
		Timeout: cfg.GatewayTimeout,
	}, logger, m)

	resolver := intent.NewResolver(extractor, logger)
	engine := convo.New(st, redis, resolver, billing, m, logger, cfg.ConversationID, cfg.FallbackScan)

	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           handlers.New(cfg.GatewayBase, registry, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	logger.Info("agent started",
		"conversation", cfg.ConversationID,
		"gateway", cfg.GatewayBase,
		"ollama", cfg.OllamaBase,
		"model", cfg.OllamaModel,
	)

	runErr := engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}

	if runErr != nil {
		logger.Error("engine stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("agent stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
