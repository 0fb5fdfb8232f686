// Package usecase orchestrates the crawl, analysis, and notification
// phases of one pipeline run.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AINewsCrawler/internal/consensus"
	"AINewsCrawler/internal/crawler"
	"AINewsCrawler/internal/domain"
	"AINewsCrawler/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Crawler  *crawler.Orchestrator
	Ledger   ports.URLLedger
	Engine   *consensus.Engine
	Notifier ports.Notifier
	Logger   *slog.Logger
}

// PipelineConfig bounds one run.
type PipelineConfig struct {
	Seeds      []crawler.Seed
	RunTimeout time.Duration
	BatchSize  int
}

// Pipeline implements the crawl-analyze-notify workflow.
type Pipeline struct {
	crawler  *crawler.Orchestrator
	ledger   ports.URLLedger
	engine   *consensus.Engine
	notifier ports.Notifier
	logger   *slog.Logger
	cfg      PipelineConfig
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Pipeline{
		crawler:  deps.Crawler,
		ledger:   deps.Ledger,
		engine:   deps.Engine,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

// Run executes one full pipeline pass. The wall-clock bound covers the
// whole run; whatever finished by then is kept and the rest waits for
// the next trigger.
func (p *Pipeline) Run(ctx context.Context, trigger time.Time) error {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancel()

	p.logger.Info("pipeline run started", "trigger", trigger.Format(time.RFC3339))

	var stats domain.CrawlStats
	if p.crawler != nil {
		stats = p.crawler.Crawl(runCtx, p.cfg.Seeds)
	}

	analyzed, err := p.analyzePending(runCtx)
	if err != nil {
		p.logger.Error("analysis phase failed", "error", err)
	}

	p.logger.Info("pipeline run finished",
		"crawled", stats.Crawled,
		"excluded", stats.Excluded,
		"failed", stats.Failed,
		"duplicates", stats.Duplicates,
		"analyzed", len(analyzed),
	)

	return p.notify(runCtx, analyzed)
}

// analyzePending runs the consensus engine over stored articles that
// were never analyzed and persists each verdict.
func (p *Pipeline) analyzePending(ctx context.Context) ([]domain.AnalyzedArticle, error) {
	if p.ledger == nil || p.engine == nil {
		return nil, nil
	}

	pending, err := p.ledger.PendingAnalysis(ctx, p.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("load pending articles: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	results, err := p.engine.BatchAnalyze(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("batch analyze: %w", err)
	}

	analyzed := make([]domain.AnalyzedArticle, 0, len(pending))
	for i, article := range pending {
		verdict := results[i]
		if err := p.ledger.RecordAnalysis(ctx, article.ID, verdict); err != nil {
			p.logger.Error("record analysis", "article_id", article.ID, "error", err)
			continue
		}
		analyzed = append(analyzed, domain.AnalyzedArticle{Article: article, Consensus: verdict})
	}
	return analyzed, nil
}

// notify publishes a digest of the AI-related articles from this run.
func (p *Pipeline) notify(ctx context.Context, analyzed []domain.AnalyzedArticle) error {
	if p.notifier == nil {
		return nil
	}

	digest := buildDigestMessage(analyzed)
	if digest == "" {
		return nil
	}
	if err := p.notifier.PublishDigest(ctx, digest); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}
	return nil
}

func buildDigestMessage(analyzed []domain.AnalyzedArticle) string {
	var b strings.Builder
	for _, item := range analyzed {
		if !item.Consensus.IsAIRelated {
			continue
		}
		fmt.Fprintf(&b, "- %s\nRelevance: %.1f (confidence %.2f)\n%s\n\n",
			item.Article.Title,
			item.Consensus.Relevance,
			item.Consensus.Confidence,
			item.Consensus.Summary)
	}
	return b.String()
}
