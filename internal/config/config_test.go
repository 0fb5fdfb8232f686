package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Crawl.DefaultDelay != time.Second {
		t.Errorf("default delay = %v, want 1s", cfg.Crawl.DefaultDelay)
	}
	if cfg.Crawl.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.Crawl.MaxRetries)
	}
	if cfg.Crawl.MinArticleWords != 100 {
		t.Errorf("min article words = %d, want 100", cfg.Crawl.MinArticleWords)
	}
	if len(cfg.AI.Providers) != 3 {
		t.Fatalf("providers = %d, want 3", len(cfg.AI.Providers))
	}
	if !cfg.AI.Providers[0].Primary {
		t.Error("first provider should be primary")
	}
	if len(cfg.Sources) == 0 {
		t.Error("expected default sources")
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
database:
  driver: sqlite3
crawl:
  defaultDelay: 2s
  maxDepth: 4
slack:
  webhookUrl: https://hooks.example.com/file
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(slackWebhookEnv, "https://hooks.example.com/env")
	t.Setenv(databaseDSNEnv, "file:crawler.db")

	cfg := Load()

	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "file:crawler.db" {
		t.Errorf("dsn = %q, want env override", cfg.Database.DSN)
	}
	if cfg.Crawl.DefaultDelay != 2*time.Second {
		t.Errorf("delay = %v, want file value", cfg.Crawl.DefaultDelay)
	}
	if cfg.Crawl.MaxDepth != 4 {
		t.Errorf("max depth = %d, want 4", cfg.Crawl.MaxDepth)
	}
	// Environment wins over the file.
	if cfg.Slack.WebhookURL != "https://hooks.example.com/env" {
		t.Errorf("webhook = %q", cfg.Slack.WebhookURL)
	}
	// Values the file does not set keep their defaults.
	if cfg.Crawl.MaxRetries != 3 {
		t.Errorf("max retries = %d, want default", cfg.Crawl.MaxRetries)
	}
}
