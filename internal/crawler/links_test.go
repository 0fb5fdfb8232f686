package crawler

import (
	"testing"
)

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<a href="/news/story-one">Story One</a>
	<a href="/news/story-one#comments">Story One comments</a>
	<a href="/press-releases/launch">Launch</a>
	<a href="/tag/ai">Tag page</a>
	<a href="/news/report.pdf">PDF</a>
	<a href="https://other.example.com/news/offsite">Offsite</a>
	<a href="mailto:tips@example.com">Tips</a>
	<a href="/about">About</a>
	<a class="next" href="/news/?page=2">Next</a>
	</body></html>`

	links, err := ExtractLinks(html, "https://example.com/news/")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	wantArticles := map[string]struct{}{
		"https://example.com/news/story-one":        {},
		"https://example.com/press-releases/launch": {},
	}
	if len(links.Articles) != len(wantArticles) {
		t.Errorf("articles = %v, want %d entries", links.Articles, len(wantArticles))
	}
	for _, link := range links.Articles {
		if _, ok := wantArticles[link]; !ok {
			t.Errorf("unexpected article link %q", link)
		}
	}

	if len(links.Pagination) != 1 || links.Pagination[0] != "https://example.com/news/?page=2" {
		t.Errorf("pagination = %v", links.Pagination)
	}
}

func TestExtractLinksRelNext(t *testing.T) {
	t.Parallel()

	html := `<html><head><link rel="next" href="/news/?page=3"></head><body></body></html>`
	links, err := ExtractLinks(html, "https://example.com/news/?page=2")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(links.Pagination) != 1 || links.Pagination[0] != "https://example.com/news/?page=3" {
		t.Errorf("pagination = %v", links.Pagination)
	}
}
