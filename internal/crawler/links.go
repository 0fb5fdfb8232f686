// Package crawler walks configured news sections, paces fetches through
// the host gate, and feeds accepted content into the ledger.
package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Path shapes that look like article or section pages worth following.
var allowPathExpr = regexp.MustCompile(`/(news|press-releases?|media|research|stories|articles|announcements)(/|$)`)

// Path shapes that are never articles.
var denyPathExpr = regexp.MustCompile(`/(tag|tags|category|categories|author|authors|archive|search|login|signup|admin|cart|account)(/|$)`)

var binaryExtExpr = regexp.MustCompile(`\.(pdf|jpe?g|png|gif|svg|webp|mp[34]|avi|mov|zip|gz|tar|docx?|xlsx?|pptx?|ico|css|js|xml|rss)$`)

// Selectors that point at the next page of a listing.
var paginationSelectors = []string{
	`a[rel="next"]`,
	`link[rel="next"]`,
	`a.next`,
	`.pagination a.next`,
	`.pager-next a`,
	`li.next a`,
}

// ExtractedLinks separates article candidates from pagination targets.
type ExtractedLinks struct {
	Articles   []string
	Pagination []string
}

// ExtractLinks pulls same-host candidate links out of a listing or
// article page. Relative links are resolved against baseURL; links to
// other hosts are dropped.
func ExtractLinks(html, baseURL string) (ExtractedLinks, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ExtractedLinks{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ExtractedLinks{}, err
	}

	var links ExtractedLinks
	seen := make(map[string]struct{})

	for _, selector := range paginationSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if resolved, ok := resolveLink(base, s.AttrOr("href", "")); ok {
				if _, dup := seen[resolved]; !dup {
					seen[resolved] = struct{}{}
					links.Pagination = append(links.Pagination, resolved)
				}
			}
		})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		resolved, ok := resolveLink(base, s.AttrOr("href", ""))
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		parsed, err := url.Parse(resolved)
		if err != nil {
			return
		}
		path := strings.ToLower(parsed.Path)
		if !allowPathExpr.MatchString(path) || denyPathExpr.MatchString(path) {
			return
		}
		seen[resolved] = struct{}{}
		links.Articles = append(links.Articles, resolved)
	})

	return links, nil
}

// resolveLink resolves href against base and filters out links the
// crawler must not follow.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "tel:") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(resolved.Hostname(), base.Hostname()) {
		return "", false
	}
	if binaryExtExpr.MatchString(strings.ToLower(resolved.Path)) {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}
