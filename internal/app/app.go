// Package app wires configuration into the runnable pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AINewsCrawler/internal/config"
	"AINewsCrawler/internal/consensus"
	"AINewsCrawler/internal/crawler"
	"AINewsCrawler/internal/dedup"
	"AINewsCrawler/internal/infrastructure/extractor"
	"AINewsCrawler/internal/infrastructure/fetch"
	"AINewsCrawler/internal/infrastructure/llm"
	"AINewsCrawler/internal/infrastructure/scheduler"
	"AINewsCrawler/internal/infrastructure/slack"
	"AINewsCrawler/internal/infrastructure/storage"
	"AINewsCrawler/internal/logging"
	"AINewsCrawler/internal/ports"
	"AINewsCrawler/internal/quality"
	"AINewsCrawler/internal/ratelimit"
	"AINewsCrawler/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	close     func() error
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ledger := storage.NewLedger(db, cfg.Database.Driver, cfg.Crawl.MaxRetries, cfg.Crawl.RetryBackoffBase)
	if err := ledger.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	gate := ratelimit.NewHostGate(ledger, cfg.Crawl.DefaultDelay, baseLogger.With("component", "gate"))
	robots := fetch.NewRobotsCache(cfg.Crawl.RequestTimeout, time.Hour, cfg.Crawl.UserAgent)
	fetcher := fetch.NewHTTPFetcher(cfg.Crawl.RequestTimeout, cfg.Crawl.UserAgent)

	var fallback ports.FallbackFetcher
	if gateway := fetch.NewReaderGateway(cfg.Crawl.FallbackEndpoint, cfg.Crawl.RequestTimeout, cfg.Crawl.UserAgent); gateway.Enabled() {
		fallback = gateway
	}

	orchestrator, err := crawler.NewOrchestrator(crawler.Deps{
		Ledger:    ledger,
		Gate:      gate,
		Fetcher:   fetcher,
		Fallback:  fallback,
		Extractor: extractor.NewReadability(),
		Quality:   quality.NewGate(cfg.Crawl.MinArticleWords, cfg.Crawl.MaxArticleAge),
		Robots:    robots,
		Seen:      dedup.NewBloomFilter(cfg.Crawl.BloomSize, 4),
		Logger:    baseLogger.With("component", "crawler"),
	}, crawler.Config{
		MaxDepth:           cfg.Crawl.MaxDepth,
		MaxConcurrentHosts: cfg.Crawl.MaxConcurrentHosts,
		BlockPenalty:       cfg.Crawl.BlockPenalty,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build crawler: %w", err)
	}

	engine, err := buildEngine(cfg.AI, baseLogger.With("component", "consensus"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var notifier ports.Notifier
	if cfg.Slack.WebhookURL != "" {
		notifier = slack.NewNotifier(cfg.Slack.WebhookURL)
	}

	seeds := make([]crawler.Seed, 0, len(cfg.Sources))
	for _, source := range cfg.Sources {
		seeds = append(seeds, crawler.Seed{Name: source.Name, URL: source.NewsURL})
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Crawler:  orchestrator,
		Ledger:   ledger,
		Engine:   engine,
		Notifier: notifier,
		Logger:   baseLogger.With("component", "pipeline"),
	}, usecase.PipelineConfig{
		Seeds:      seeds,
		RunTimeout: cfg.Crawl.RunTimeout,
		BatchSize:  cfg.AI.BatchSize,
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression)

	return &Application{
		cfg:       cfg,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler")),
		close:     db.Close,
	}, nil
}

// buildEngine resolves configured providers into a consensus engine.
// Providers whose credentials are missing are skipped; an empty set
// disables the analysis phase.
func buildEngine(cfg config.AIConfig, logger *slog.Logger) (*consensus.Engine, error) {
	registry := consensus.NewClientRegistry()
	if cfg.Anthropic.APIKey != "" {
		for _, p := range cfg.Providers {
			if p.Client == "anthropic" {
				registry.Register(p.Name, llm.NewAnthropicClient(cfg.Anthropic.Endpoint, p.Model, cfg.Anthropic.APIKey, cfg.CallTimeout))
			}
		}
	}
	if cfg.OpenAI.APIKey != "" {
		for _, p := range cfg.Providers {
			if p.Client == "openai" {
				registry.Register(p.Name, llm.NewOpenAIClient(cfg.OpenAI.Endpoint, p.Model, cfg.OpenAI.APIKey, cfg.CallTimeout))
			}
		}
	}

	var providers []consensus.Provider
	for _, p := range cfg.Providers {
		client, err := registry.Resolve(p.Name)
		if err != nil {
			logger.Warn("provider skipped", "provider", p.Name, "reason", "no credentials")
			continue
		}
		providers = append(providers, consensus.Provider{
			Name:       p.Name,
			Client:     client,
			Primary:    p.Primary,
			Priority:   p.Priority,
			TruncateAt: p.TruncateAt,
			MaxTokens:  p.MaxTokens,
		})
	}
	if len(providers) == 0 {
		logger.Warn("no AI providers configured, analysis phase disabled")
		return nil, nil
	}

	return consensus.NewEngine(providers, logger,
		consensus.WithCallTimeout(cfg.CallTimeout),
		consensus.WithMaxConcurrent(cfg.MaxConcurrent),
	), nil
}

// RunOnce performs a single pipeline execution.
func (a *Application) RunOnce(ctx context.Context) error {
	if a.pipeline == nil {
		return nil
	}
	return a.pipeline.Run(ctx, time.Now())
}

// Start begins scheduled execution.
func (a *Application) Start(ctx context.Context) error {
	return a.scheduler.Start(ctx)
}

// Stop halts the scheduler and releases resources.
func (a *Application) Stop(ctx context.Context) error {
	err := a.scheduler.Stop(ctx)
	if a.close != nil {
		if closeErr := a.close(); err == nil {
			err = closeErr
		}
	}
	return err
}
