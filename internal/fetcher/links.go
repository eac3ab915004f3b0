package fetcher

import (
	"net/url"
	"strings"
)

// parseBaseURL parses baseURL for link resolution, grounded on
// internal/parser/css.go's extractLinks base-URL handling.
func parseBaseURL(baseURL string) (*url.URL, error) {
	return url.Parse(baseURL)
}

// resolveLink resolves href against base, filtering out anchors,
// javascript:, mailto:, tel:, and data: links and any scheme other
// than http/https, and stripping the fragment. Ported from
// internal/parser/css.go's extractLinks.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return "", false
	}

	parsedHref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(parsedHref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}
