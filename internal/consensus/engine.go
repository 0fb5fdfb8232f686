package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"AINewsCrawler/internal/domain"
	"AINewsCrawler/internal/ports"
)

// Summary sentinel used when no provider produced anything.
const summaryUnavailable = "Analysis unavailable"

const (
	defaultCallTimeout   = 60 * time.Second
	defaultMaxConcurrent = 5
)

// Provider binds a completion client to its per-provider prompt budget.
// The primary provider is asked for key points and a relevance score;
// secondaries only vote and summarize.
type Provider struct {
	Name       string
	Client     ports.CompletionClient
	Primary    bool
	Priority   int
	TruncateAt int
	MaxTokens  int
}

// Engine reduces N independent, failure-prone provider opinions into one
// consensus verdict per article. It never returns an error to callers:
// total provider outage still yields a ConsensusResult.
type Engine struct {
	providers   []Provider
	callTimeout time.Duration
	sem         chan struct{}
	logger      *slog.Logger
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithCallTimeout bounds each individual provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithMaxConcurrent caps outstanding provider calls across a whole batch.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = make(chan struct{}, n)
		}
	}
}

// NewEngine orders providers by priority (primary first); the order also
// decides whose summary wins the consensus.
func NewEngine(providers []Provider, logger *slog.Logger, opts ...Option) *Engine {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	engine := &Engine{
		providers:   sorted,
		callTimeout: defaultCallTimeout,
		sem:         make(chan struct{}, defaultMaxConcurrent),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Analyze queries every configured provider concurrently and reduces the
// results. A failed or malformed provider call degrades the verdict
// instead of failing it.
func (e *Engine) Analyze(ctx context.Context, article domain.ArticleRecord) domain.ConsensusResult {
	results := make([]*domain.ProviderResult, len(e.providers))

	var wg sync.WaitGroup
	for i, provider := range e.providers {
		wg.Add(1)
		go func(i int, provider Provider) {
			defer wg.Done()
			results[i] = e.callProvider(ctx, provider, article)
		}(i, provider)
	}
	wg.Wait()

	return e.buildConsensus(results)
}

// BatchAnalyze processes articles under the engine's global concurrency
// ceiling. Output order matches input order even when provider calls for
// later articles complete first. The only error is batch-level
// cancellation, which the caller retries at a higher level.
func (e *Engine) BatchAnalyze(ctx context.Context, articles []domain.ArticleRecord) ([]domain.ConsensusResult, error) {
	results := make([]domain.ConsensusResult, len(articles))

	var wg sync.WaitGroup
	for i, article := range articles {
		wg.Add(1)
		go func(i int, article domain.ArticleRecord) {
			defer wg.Done()
			results[i] = e.Analyze(ctx, article)
		}(i, article)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch analyze interrupted: %w", err)
	}

	if e.logger != nil {
		e.logger.Info("batch analyzed", "articles", len(articles))
	}
	return results, nil
}

// callProvider wraps one bounded-time provider call; any error or timeout
// degrades to "no result for that provider".
func (e *Engine) callProvider(ctx context.Context, provider Provider, article domain.ArticleRecord) *domain.ProviderResult {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	prompt := buildPrompt(provider, article)
	raw, err := provider.Client.Complete(callCtx, prompt, provider.MaxTokens)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("provider call failed", "provider", provider.Name, "error", err)
		}
		return nil
	}

	parsed, parseErr := ParseResponse(raw)
	if parseErr != nil {
		if e.logger != nil {
			e.logger.Warn("provider reply unparseable, applying defaults",
				"provider", provider.Name, "error", parseErr)
		}
		parsed = failOpenDefaults()
	}

	result := &domain.ProviderResult{
		Provider:    provider.Name,
		Model:       provider.Client.Model(),
		Summary:     parsed.Summary,
		KeyPoints:   parsed.KeyPoints,
		IsAIRelated: true,
		Raw:         raw,
	}
	if parsed.HasVote {
		result.IsAIRelated = parsed.AIRelated
	}
	// Only the primary provider is asked for a score; it always supplies
	// one, falling back to the scale midpoint.
	if provider.Primary {
		result.HasScore = true
		result.Relevance = relevanceMidpoint
		if parsed.HasRelevance {
			result.Relevance = parsed.Relevance
		}
	}

	return result
}

// buildConsensus implements the deterministic reduction:
//  1. providers_count = providers that returned a result
//  2. summary = highest-priority available summary, else a fixed sentinel
//  3. AI-relatedness = strict majority (votes_true > total/2; none → false)
//  4. relevance = mean of supplied scores, else the scale midpoint
//  5. confidence = providers_count / total_providers
func (e *Engine) buildConsensus(results []*domain.ProviderResult) domain.ConsensusResult {
	consensus := domain.ConsensusResult{
		Summary:        summaryUnavailable,
		Relevance:      relevanceMidpoint,
		TotalProviders: len(e.providers),
	}

	votesTrue, totalVotes := 0, 0
	scoreSum, scoreCount := 0.0, 0
	summaryChosen := false

	for _, result := range results {
		if result == nil {
			continue
		}
		consensus.ProvidersCount++

		if !summaryChosen && result.Summary != "" {
			consensus.Summary = result.Summary
			consensus.KeyPoints = result.KeyPoints
			summaryChosen = true
		}

		totalVotes++
		if result.IsAIRelated {
			votesTrue++
		}

		if result.HasScore {
			scoreSum += result.Relevance
			scoreCount++
		}
	}

	// Strict majority: a 1-1 split resolves to false on purpose.
	consensus.IsAIRelated = totalVotes > 0 && votesTrue*2 > totalVotes

	if scoreCount > 0 {
		consensus.Relevance = scoreSum / float64(scoreCount)
	}
	if consensus.TotalProviders > 0 {
		consensus.Confidence = float64(consensus.ProvidersCount) / float64(consensus.TotalProviders)
	}

	return consensus
}

// buildPrompt renders a provider's fixed template with the article title
// and content truncated to the provider's context budget.
func buildPrompt(provider Provider, article domain.ArticleRecord) string {
	content := article.Content
	if provider.TruncateAt > 0 && len(content) > provider.TruncateAt {
		content = content[:provider.TruncateAt]
	}
	title := article.Title
	if title == "" {
		title = "Untitled"
	}

	if provider.Primary {
		return fmt.Sprintf(`Analyze this AI research article and provide:

1. A concise 2-3 sentence summary of the main findings
2. 3-5 key points or innovations (as a bullet list)
3. Relevance score (1-10 scale) indicating how significant this AI research is
4. Whether this is truly AI-related (yes/no)

Article Title: %s
Content: %s

Provide structured output in this format:
SUMMARY: [your 2-3 sentence summary]
KEY_POINTS:
- [point 1]
- [point 2]
- [point 3]
RELEVANCE: [score 1-10]
AI_RELATED: [yes/no]`, title, content)
	}

	return fmt.Sprintf(`Briefly summarize this article in 2-3 sentences and indicate if it's truly AI-related:

Title: %s
Content: %s

Format:
SUMMARY: [your summary]
AI_RELATED: [yes/no]`, title, content)
}
