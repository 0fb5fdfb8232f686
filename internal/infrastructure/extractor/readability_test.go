package extractor

import (
	"strings"
	"testing"
	"time"
)

const articleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Researchers Unveil New Model</title>
<meta property="article:published_time" content="2025-05-20T09:30:00Z">
</head>
<body>
<nav><a href="/">Home</a><a href="/news">News</a></nav>
<article>
<h1>Researchers Unveil New Model</h1>
<p>A university research team announced a new machine learning model on
Tuesday that they say outperforms previous systems on language tasks.
The team spent two years building the training pipeline and evaluating
results across a dozen public benchmarks before publication.</p>
<p>The model uses a novel attention mechanism, and the group released
both the weights and the full training recipe. Independent researchers
have begun replicating the headline numbers, and early reports suggest
the gains hold up on out-of-distribution data as well.</p>
<p>Funding for the project came from a mix of federal grants and
industry partnerships. The team says the next step is scaling the
approach to multimodal inputs over the coming year.</p>
</article>
<footer>Copyright 2025</footer>
</body>
</html>`

func TestExtract(t *testing.T) {
	t.Parallel()

	e := NewReadability()
	got, err := e.Extract(articleHTML, "https://news.example.edu/2025/05/model")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if got.Title != "Researchers Unveil New Model" {
		t.Errorf("title = %q", got.Title)
	}
	if !strings.Contains(got.Text, "novel attention mechanism") {
		t.Errorf("text missing body content: %q", got.Text)
	}
	if strings.Contains(got.Text, "  ") {
		t.Error("text contains unnormalized whitespace")
	}
	if got.WordCount < 50 {
		t.Errorf("word count = %d, want article-length text", got.WordCount)
	}

	want := time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Errorf("date = %v, want %v", got.Date, want)
	}
}

func TestExtractBlockSpacing(t *testing.T) {
	t.Parallel()

	// Adjacent block elements must not run their words together.
	text := flattenText("<div>first</div><div>second</div>")
	if text != "first second" {
		t.Errorf("flattened = %q, want %q", text, "first second")
	}
}

func TestMetaDateFallbacks(t *testing.T) {
	t.Parallel()

	html := `<html><head><meta name="date" content="2025-04-01"></head><body></body></html>`
	got := metaDate(html)
	want := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("metaDate = %v, want %v", got, want)
	}

	if !metaDate("<html><body></body></html>").IsZero() {
		t.Error("expected zero time when no date metadata exists")
	}
}
