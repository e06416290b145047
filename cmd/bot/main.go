package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"crypto-trading-bot/internal/engine"
	"crypto-trading-bot/internal/engine/engineobs"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/position"
	"crypto-trading-bot/internal/report"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/server"
	"crypto-trading-bot/internal/storage"
	"crypto-trading-bot/internal/strategy"
	"crypto-trading-bot/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}
	compressOldLogs(ctx)

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open storage", err, "path", cfg.Storage.Path)
		os.Exit(1)
	}
	defer db.Close()

	riskMgr, err := risk.New(cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize risk manager", err)
		os.Exit(1)
	}
	loc, _ := time.LoadLocation(cfg.Risk.Timezone)

	feed := initializeFeed(ctx, cfg)
	exec := initializeExecutor(ctx, cfg, feed)
	advisors := initializeAdvisor(ctx, cfg, db)

	positions := position.NewManager(exec, db, riskMgr, cfg)
	if err := positions.Restore(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to restore positions", err)
		os.Exit(1)
	}

	controller := engine.NewController(cfg)
	eng := engine.New(cfg, feed, exec, advisors, strategy.New(cfg), riskMgr, positions, db, controller.Paused)
	controller.Bind(engineobs.Wrap(eng))
	controller.OnStop(positions.CloseAll)

	reporter := report.New(db, exec, cfg.Report.Dir, loc)
	jobs := cron.New(cron.WithLocation(loc))
	mustSchedule(ctx, jobs, "0 0 * * *", func() { riskMgr.ResetDay() })
	mustSchedule(ctx, jobs, cfg.Report.DailySchedule, func() {
		if _, err := reporter.SummarizeYesterday(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Daily report failed", err)
		}
	})
	mustSchedule(ctx, jobs, cfg.Report.SnapshotSchedule, func() {
		if err := reporter.SnapshotWallet(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Wallet snapshot failed", err)
		}
	})
	mustSchedule(ctx, jobs, "@every 1m", func() { positions.RetryPending(ctx) })
	jobs.Start()

	srv := server.New(cfg, controller, positions, advisors, riskMgr, db, exec)
	go func() {
		if err := srv.Start(); err != nil {
			logger.ErrorWithErr(ctx, "Dashboard server failed", err)
			cancel()
		}
	}()

	go controller.Run(ctx)
	logger.Info(ctx, "Bot started", "mode", cfg.Trading.Mode, "pairs", cfg.Trading.Pairs)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info(ctx, "Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if controller.State() != engine.StateStopped {
		if err := controller.Stop(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "Controller stop failed", "error", err)
		}
	}
	cancel()
	jobs.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Server shutdown failed", "error", err)
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tracer shutdown failed", "error", err)
	}
	logger.Info(shutdownCtx, "Bot stopped cleanly")
}

func mustSchedule(ctx context.Context, jobs *cron.Cron, spec string, fn func()) {
	if _, err := jobs.AddFunc(spec, fn); err != nil {
		logger.ErrorWithErr(ctx, "Invalid cron schedule", err, "spec", spec)
		os.Exit(1)
	}
}
