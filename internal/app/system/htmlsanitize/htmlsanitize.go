// Package htmlsanitize cleans user-supplied profile text with bluemonday.
//
// Bios are shown on public booking pages, so only a small set of inline
// formatting survives; everything else is stripped.
package htmlsanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	bioPolicy    *bluemonday.Policy
	strictPolicy *bluemonday.Policy
	policyOnce   sync.Once
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		bioPolicy = bluemonday.NewPolicy()
		bioPolicy.AllowElements("p", "br", "strong", "b", "em", "i", "u", "ul", "ol", "li")
		bioPolicy.AllowStandardURLs()
		bioPolicy.AllowAttrs("href").OnElements("a")
		bioPolicy.RequireNoFollowOnLinks(true)
		bioPolicy.AddTargetBlankToFullyQualifiedLinks(true)

		strictPolicy = bluemonday.StrictPolicy()
	})
	return bioPolicy, strictPolicy
}

// Bio sanitizes a profile biography, keeping basic formatting and links.
func Bio(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	p, _ := policies()
	return p.Sanitize(s)
}

// PlainText strips every tag from s. Used for names and other single-line fields.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	_, p := policies()
	return strings.TrimSpace(p.Sanitize(s))
}
