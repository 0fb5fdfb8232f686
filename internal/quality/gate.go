// Package quality implements the accept/reject checkpoint applied to
// extracted content before it is persisted. Rejections are about the
// content itself, never about transient availability, so they are
// terminal: an excluded URL is never retried.
package quality

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"AINewsCrawler/internal/domain"
)

// Reason explains why content was rejected.
type Reason string

const (
	ReasonTooShort   Reason = "too_short"
	ReasonNoTitle    Reason = "no_title"
	ReasonStale      Reason = "stale"
	ReasonNavigation Reason = "navigation_page"
)

// RejectionError carries the quality-gate verdict for logging and stats.
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("content rejected (%s): %s", e.Reason, e.Detail)
}

// Titles that identify a section landing page rather than an article.
var navigationTitles = map[string]struct{}{
	"news":            {},
	"press releases":  {},
	"press release":   {},
	"media":           {},
	"newsroom":        {},
	"in the news":     {},
	"announcements":   {},
	"events":          {},
	"stories":         {},
	"latest news":     {},
	"news & events":   {},
	"news and events": {},
}

// URL paths that end in a bare section segment are listing pages, e.g.
// /news/ or /press-releases with no further path.
var navigationPathExpr = regexp.MustCompile(`^/(news|press-releases?|media|stories|articles|research|announcements|events)/?$`)

// Gate validates extracted content against the configured thresholds.
type Gate struct {
	minWords int
	maxAge   time.Duration
	now      func() time.Time
}

// NewGate wires the minimum word count and maximum article age.
func NewGate(minWords int, maxAge time.Duration) *Gate {
	return &Gate{minWords: minWords, maxAge: maxAge, now: time.Now}
}

// Check returns nil for acceptable content or a RejectionError naming the
// first failed rule.
func (g *Gate) Check(extracted domain.Extracted, rawURL string) error {
	if extracted.Title == "" {
		return &RejectionError{Reason: ReasonNoTitle, Detail: rawURL}
	}

	words := extracted.WordCount
	if words == 0 {
		words = len(strings.Fields(extracted.Text))
	}
	if words < g.minWords {
		return &RejectionError{
			Reason: ReasonTooShort,
			Detail: fmt.Sprintf("%d words < %d minimum", words, g.minWords),
		}
	}

	if IsNavigationPage(extracted.Title, rawURL) {
		return &RejectionError{Reason: ReasonNavigation, Detail: rawURL}
	}

	// The max-age rule only applies when a date was actually detected;
	// the extractor frequently finds none on older site templates.
	if g.maxAge > 0 && !extracted.Date.IsZero() {
		if g.now().Sub(extracted.Date) > g.maxAge {
			return &RejectionError{
				Reason: ReasonStale,
				Detail: fmt.Sprintf("published %s", extracted.Date.Format("2006-01-02")),
			}
		}
	}

	return nil
}

// IsNavigationPage recognizes generic listing pages by title or URL shape.
func IsNavigationPage(title, rawURL string) bool {
	normalized := strings.ToLower(strings.TrimSpace(title))
	if _, ok := navigationTitles[normalized]; ok {
		return true
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return navigationPathExpr.MatchString(strings.ToLower(parsed.Path))
}
