// Package extractor turns raw HTML into structured article fields using
// a readability pass followed by goquery text flattening.
package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"AINewsCrawler/internal/domain"
	"AINewsCrawler/internal/ports"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	blockTags    = []string{"div", "p", "br", "li", "td", "tr", "h1", "h2", "h3", "h4", "h5", "h6"}
)

// dateMetaSelectors are tried in order when readability finds no
// publication time of its own.
var dateMetaSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="date"]`,
	`meta[itemprop="datePublished"]`,
	`time[datetime]`,
}

// Readability implements ports.Extractor.
type Readability struct{}

var _ ports.Extractor = (*Readability)(nil)

func NewReadability() *Readability {
	return &Readability{}
}

// Extract parses html fetched from rawURL into structured fields.
func (e *Readability) Extract(html, rawURL string) (domain.Extracted, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return domain.Extracted{}, fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err != nil {
		return domain.Extracted{}, fmt.Errorf("readability: %w", err)
	}

	text := flattenText(article.Content)
	if text == "" {
		text = normalizeText(article.TextContent)
	}

	extracted := domain.Extracted{
		Title:       strings.TrimSpace(article.Title),
		Author:      strings.TrimSpace(article.Byline),
		Text:        text,
		Description: strings.TrimSpace(article.Excerpt),
		Language:    strings.TrimSpace(article.Language),
		WordCount:   len(strings.Fields(text)),
	}
	if article.PublishedTime != nil {
		extracted.Date = *article.PublishedTime
	}
	if extracted.Date.IsZero() {
		extracted.Date = metaDate(html)
	}
	return extracted, nil
}

// flattenText converts article HTML to plain text, inserting spaces
// around block elements so adjacent blocks do not run together.
func flattenText(articleHTML string) string {
	if strings.TrimSpace(articleHTML) == "" {
		return ""
	}
	spaced := articleHTML
	for _, tag := range blockTags {
		spaced = regexp.MustCompile(`<`+tag+`[^>]*>`).ReplaceAllString(spaced, " <"+tag+">")
		spaced = regexp.MustCompile(`</`+tag+`>`).ReplaceAllString(spaced, "</"+tag+"> ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(spaced))
	if err != nil {
		return ""
	}
	return normalizeText(doc.Text())
}

func normalizeText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// metaDate scrapes publication-date metadata out of the full document.
func metaDate(html string) time.Time {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return time.Time{}
	}

	for _, selector := range dateMetaSelectors {
		var raw string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr("content"); ok && v != "" {
				raw = v
				return false
			}
			if v, ok := s.Attr("datetime"); ok && v != "" {
				raw = v
				return false
			}
			return true
		})
		if raw == "" {
			continue
		}
		if t, ok := parseDate(raw); ok {
			return t
		}
	}
	return time.Time{}
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
