package coverage

import (
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a raw URL into the dedup key used to detect
// duplicate coverage items. It strips utm_* tracking parameters and a single
// trailing slash from the path (the root path "/" is preserved). Remaining
// query parameters keep the order they were received in, so two URLs that
// differ only in parameter order normalize to distinct keys.
//
// Normalization is fail-open: if the URL does not parse, the trimmed input is
// returned unchanged.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	path := u.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}

	// Filter utm_* params while preserving the received order. url.Values
	// is a map, so walk RawQuery directly.
	var kept []string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.Index(pair, "="); i >= 0 {
			key = pair[:i]
		}
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			continue
		}
		kept = append(kept, pair)
	}

	normalized := u.Scheme + "://" + u.Host + path
	if len(kept) > 0 {
		normalized += "?" + strings.Join(kept, "&")
	}
	return normalized
}

// CanonicalDomain extracts the hostname from a URL, lowercased and with a
// leading "www." removed. Returns "" when the URL does not parse.
func CanonicalDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
