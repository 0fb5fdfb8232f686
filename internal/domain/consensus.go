package domain

// ProviderResult is one provider's opinion about an article. It is
// ephemeral: absent entirely when the provider call failed.
type ProviderResult struct {
	Provider    string
	Model       string
	Summary     string
	KeyPoints   []string
	Relevance   float64
	HasScore    bool
	IsAIRelated bool
	Raw         string
}

// ConsensusResult reduces the available provider results to one verdict.
// It is derived, never persisted apart from the owning article.
type ConsensusResult struct {
	Summary        string
	IsAIRelated    bool
	Relevance      float64
	KeyPoints      []string
	ProvidersCount int
	TotalProviders int
	Confidence     float64
}

// AnalyzedArticle pairs an article with its consensus verdict; the list of
// AI-related pairs per run is the sole contract with downstream consumers.
type AnalyzedArticle struct {
	Article   ArticleRecord
	Consensus ConsensusResult
}
