package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"crypto-trading-bot/internal/advisor"
	"crypto-trading-bot/internal/advisor/advisorobs"
	"crypto-trading-bot/internal/advisor/noop"
	"crypto-trading-bot/internal/advisor/openai"
	"crypto-trading-bot/internal/exchange"
	"crypto-trading-bot/internal/executor"
	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/trace"
	"crypto-trading-bot/internal/tradelog"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("BOT_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeFeed returns the Binance market data feed
func initializeFeed(ctx context.Context, cfg *store.Config) interfaces.MarketDataFeed {
	timeout := time.Duration(cfg.Feed.TimeoutSeconds) * time.Second
	feed := exchange.NewFeed(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"), timeout)
	logger.Info(ctx, "Market data feed initialized", "timeframe", cfg.Trading.Timeframe, "timeout", timeout.String())
	return feed
}

// initializeExecutor returns the paper or live order executor
func initializeExecutor(ctx context.Context, cfg *store.Config, feed interfaces.MarketDataFeed) interfaces.OrderExecutor {
	if cfg.Trading.Mode == "LIVE" {
		logger.Warn(ctx, "Running in LIVE mode - real orders will be placed")
		timeout := time.Duration(cfg.Feed.TimeoutSeconds) * time.Second
		return exchange.NewLiveExecutor(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"),
			timeout, cfg.Trading.InitialBalance)
	}
	logger.Info(ctx, "Running in PAPER mode - orders are simulated",
		"initial_balance", cfg.Trading.InitialBalance, "fee_percent", cfg.Trading.FeePercent)
	return executor.NewPaper(feed, cfg.Trading.QuoteCurrency, cfg.Trading.InitialBalance, cfg.Trading.FeePercent)
}

// initializeAdvisor returns the AI advisory cache over the configured provider
func initializeAdvisor(ctx context.Context, cfg *store.Config, db interfaces.Store) *advisor.Cache {
	var provider interfaces.AIProvider
	switch cfg.AI.Provider {
	case "OPENAI":
		provider = openai.NewAdvisor(cfg)
	default:
		provider = noop.NewAdvisor()
		logger.Warn(ctx, "No AI provider configured - using noop advisor (always HOLD)")
	}

	// Wrap with observability middleware
	provider = advisorobs.Wrap(provider)

	interval := time.Duration(cfg.AI.IntervalSeconds) * time.Second
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	return advisor.NewCache(provider, interval, timeout, advisor.WithHistory(db))
}
