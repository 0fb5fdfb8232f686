package quality

import (
	"errors"
	"strings"
	"testing"
	"time"

	"AINewsCrawler/internal/domain"
)

func validExtracted() domain.Extracted {
	return domain.Extracted{
		Title:     "University lab releases open multimodal model",
		Text:      strings.Repeat("word ", 200),
		WordCount: 200,
		Date:      time.Now().Add(-24 * time.Hour),
	}
}

func TestGateAcceptsValidArticle(t *testing.T) {
	t.Parallel()

	gate := NewGate(100, 7*24*time.Hour)
	if err := gate.Check(validExtracted(), "https://news.example.edu/stories/model-release"); err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
}

func TestGateRejectsShortContent(t *testing.T) {
	t.Parallel()

	gate := NewGate(100, 0)
	extracted := validExtracted()
	extracted.Text = "too short"
	extracted.WordCount = 2

	err := gate.Check(extracted, "https://example.edu/a")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != ReasonTooShort {
		t.Fatalf("expected too_short rejection, got %v", err)
	}
}

func TestGateRejectsMissingTitle(t *testing.T) {
	t.Parallel()

	gate := NewGate(10, 0)
	extracted := validExtracted()
	extracted.Title = ""

	err := gate.Check(extracted, "https://example.edu/a")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != ReasonNoTitle {
		t.Fatalf("expected no_title rejection, got %v", err)
	}
}

func TestGateRejectsStaleArticle(t *testing.T) {
	t.Parallel()

	gate := NewGate(10, 7*24*time.Hour)
	extracted := validExtracted()
	extracted.Date = time.Now().Add(-30 * 24 * time.Hour)

	err := gate.Check(extracted, "https://example.edu/a")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != ReasonStale {
		t.Fatalf("expected stale rejection, got %v", err)
	}
}

func TestGateAcceptsUndatedArticle(t *testing.T) {
	t.Parallel()

	gate := NewGate(10, 7*24*time.Hour)
	extracted := validExtracted()
	extracted.Date = time.Time{}

	if err := gate.Check(extracted, "https://example.edu/stories/undated"); err != nil {
		t.Fatalf("missing date must not trigger the age rule: %v", err)
	}
}

func TestIsNavigationPage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		title string
		url   string
		want  bool
	}{
		{"bare news title", "News", "https://example.edu/some/article", true},
		{"press releases title", "Press Releases", "https://example.edu/x", true},
		{"bare news path", "Campus update roundup", "https://example.edu/news/", true},
		{"bare section path no slash", "Anything", "https://example.edu/press-releases", true},
		{"real article", "Lab announces breakthrough", "https://example.edu/news/lab-announces-breakthrough", false},
		{"deep path", "Stories", "https://example.edu/stories/2026/ai-center", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsNavigationPage(tc.title, tc.url); got != tc.want {
				t.Fatalf("IsNavigationPage(%q, %q) = %v, want %v", tc.title, tc.url, got, tc.want)
			}
		})
	}
}
