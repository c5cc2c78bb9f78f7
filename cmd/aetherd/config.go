package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/cache"
	cachemem "github.com/nmang004/projectaether/cache/memory"
	cacheredis "github.com/nmang004/projectaether/cache/redis"
	"github.com/nmang004/projectaether/store"
	memstore "github.com/nmang004/projectaether/store/memory"
	pgstore "github.com/nmang004/projectaether/store/postgres"
	redisstore "github.com/nmang004/projectaether/store/redis"
	sqlitestore "github.com/nmang004/projectaether/store/sqlite"
)

// envConfig is the daemon configuration read from the environment. Every
// variable has a single-node default so `aetherd serve` works out of the
// box.
type envConfig struct {
	ListenAddr string

	StoreDriver string // memory, sqlite, postgres, redis
	SQLitePath  string
	PostgresURL string
	RedisURL    string

	CacheDriver string // memory, redis

	MetricsURL string
	AIEndpoint string

	Concurrency  int
	PollInterval time.Duration
	Retention    time.Duration

	LogLevel slog.Level
}

func loadEnvConfig() envConfig {
	cfg := envConfig{
		ListenAddr:   envStr("AETHER_LISTEN_ADDR", ":8000"),
		StoreDriver:  envStr("AETHER_STORE", "memory"),
		SQLitePath:   envStr("AETHER_SQLITE_PATH", "aether.db"),
		PostgresURL:  envStr("AETHER_POSTGRES_URL", "postgres://localhost:5432/aether?sslmode=disable"),
		RedisURL:     envStr("AETHER_REDIS_URL", "redis://localhost:6379/0"),
		CacheDriver:  envStr("AETHER_CACHE", "memory"),
		MetricsURL:   envStr("AETHER_METRICS_URL", ""),
		AIEndpoint:   envStr("AETHER_AI_ENDPOINT", ""),
		Concurrency:  envInt("AETHER_CONCURRENCY", 10),
		PollInterval: envDuration("AETHER_POLL_INTERVAL", 250*time.Millisecond),
		Retention:    envDuration("AETHER_RETENTION", time.Hour),
		LogLevel:     slog.LevelInfo,
	}
	switch strings.ToLower(envStr("AETHER_LOG_LEVEL", "info")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	}
	return cfg
}

func (c envConfig) dispatcherConfig() aether.Config {
	dc := aether.DefaultConfig()
	dc.Concurrency = c.Concurrency
	dc.PollInterval = c.PollInterval
	dc.Retention = c.Retention
	return dc
}

// openStore builds the configured progress/result store.
func (c envConfig) openStore(logger *slog.Logger) (store.Store, error) {
	switch strings.ToLower(c.StoreDriver) {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlitestore.New(c.SQLitePath)
	case "postgres":
		return pgstore.New(context.Background(), c.PostgresURL, pgstore.WithLogger(logger))
	case "redis":
		opts, err := goredis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse AETHER_REDIS_URL: %w", err)
		}
		client := goredis.NewClient(opts)
		return redisstore.New(client,
			redisstore.WithLogger(logger),
			redisstore.WithRetention(c.Retention),
		), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
}

// openCache builds the configured cache gateway.
func (c envConfig) openCache(logger *slog.Logger) (*cache.Gateway, error) {
	switch strings.ToLower(c.CacheDriver) {
	case "memory":
		return cache.New(cachemem.New(), cache.WithLogger(logger)), nil
	case "redis":
		opts, err := goredis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse AETHER_REDIS_URL: %w", err)
		}
		return cache.New(cacheredis.New(goredis.NewClient(opts)), cache.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", c.CacheDriver)
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
