package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Tracking parameters removed during normalization. Any utm_-prefixed
// parameter is treated as tracking as well.
var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"mc_cid": {},
	"mc_eid": {},
}

// NormalizeURL canonically rewrites a URL for identity comparison:
// lowercase, tracking parameters stripped, fragment dropped, a single
// trailing slash removed unless the path is just "/". Two URLs that
// normalize identically are the same entity.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(strings.ToLower(strings.TrimSpace(rawURL)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	query := parsed.Query()
	for key := range query {
		if isTrackingParam(key) {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""

	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String()
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// URLHash computes the hex SHA-256 of the normalized form of rawURL.
func URLHash(rawURL string) string {
	return hashString(NormalizeURL(rawURL))
}

// ContentHash computes the hex SHA-256 of normalized article text.
// Whitespace runs are collapsed so cosmetic reflows of syndicated copy
// still collapse to one fingerprint.
func ContentHash(text string) string {
	return hashString(strings.Join(strings.Fields(text), " "))
}

// Hostname extracts the lowercased host for ledger and gate keys.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
