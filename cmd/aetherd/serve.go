package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/api"
	"github.com/nmang004/projectaether/audit"
	"github.com/nmang004/projectaether/engine"
	"github.com/nmang004/projectaether/queue"
	"github.com/nmang004/projectaether/secrets"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the audit engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg := loadEnvConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	st, err := cfg.openStore(logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	gateway, err := cfg.openCache(logger)
	if err != nil {
		return err
	}

	d, err := aether.New(
		aether.WithStore(st),
		aether.WithLogger(logger),
		aether.WithConfig(cfg.dispatcherConfig()),
	)
	if err != nil {
		return err
	}

	eng, err := engine.Build(d,
		engine.WithCache(gateway),
		engine.WithQueueConfig(
			queue.Config{Name: audit.QueueCrawl, MaxConcurrency: 4},
			queue.Config{Name: audit.QueueAnalysis, MaxConcurrency: 8, RateLimit: 10, RateBurst: 10},
			queue.Config{Name: audit.QueueContent, MaxConcurrency: 4},
		),
	)
	if err != nil {
		return err
	}

	creds := secrets.NewCached(&secrets.Env{Prefix: "AETHER_"})
	metricsKey, err := creds.Fetch(ctx, "METRICS_API_KEY")
	if err != nil {
		logger.Warn("metrics API key unavailable, lookups will be unauthenticated",
			slog.String("error", err.Error()))
	}
	aiKey, err := creds.Fetch(ctx, "AI_API_KEY")
	if err != nil {
		logger.Warn("AI API key unavailable, generation will be unauthenticated",
			slog.String("error", err.Error()))
	}

	svc := audit.NewService(
		audit.NewCrawler(audit.WithCrawlerLogger(logger)),
		audit.NewHTTPMetricsAPI(cfg.MetricsURL, metricsKey, audit.WithMetricsLogger(logger)),
		audit.NewHTTPTextGenerator(cfg.AIEndpoint, aiKey, audit.WithGeneratorLogger(logger)),
		gateway,
		logger,
	)
	svc.Register(eng.Registry())

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(eng, api.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server failed", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.Config().ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	return eng.Stop(shutdownCtx)
}
