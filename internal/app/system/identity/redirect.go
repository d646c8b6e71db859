package identity

import (
	"net/url"
	"strings"
)

// SafeRedirect resolves a post-authentication target against baseURL.
// Paths starting with a single "/" are joined to baseURL, absolute URLs on
// baseURL's host are kept, and anything else falls back to baseURL.
func SafeRedirect(baseURL, target string) string {
	base := strings.TrimRight(baseURL, "/")
	target = strings.TrimSpace(target)

	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\") {
		return base + target
	}

	t, err := url.Parse(target)
	if err != nil || t.Scheme == "" || t.Host == "" {
		return baseURL
	}
	b, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	if strings.EqualFold(t.Scheme, b.Scheme) && strings.EqualFold(t.Host, b.Host) {
		return target
	}
	return baseURL
}
