package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"AINewsCrawler/internal/app"
	"AINewsCrawler/internal/config"
	"AINewsCrawler/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := application.RunOnce(ctx); err != nil {
			logger.Error("pipeline run failed", "error", err)
			os.Exit(1)
		}
		_ = application.Stop(context.Background())
		return
	}

	if err := application.Start(ctx); err != nil {
		logger.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduler started", "cron", cfg.Scheduler.CronExpression)

	<-ctx.Done()
	if err := application.Stop(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
