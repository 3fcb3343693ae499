package parse

import (
	"net/url"
	"strings"
)

var ignoredSchemes = []string{"data:", "javascript:", "mailto:", "tel:", "blob:", "about:"}

// ResolveReference resolves an attribute value against base.
// It returns false for empty values, non-navigable schemes, unparseable values
// and anything that does not resolve to an absolute http(s) URL. The fragment is dropped.
func ResolveReference(base *url.URL, ref string) (*url.URL, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return nil, false
	}
	lower := strings.ToLower(ref)
	for _, s := range ignoredSchemes {
		if strings.HasPrefix(lower, s) {
			return nil, false
		}
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, false
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, false
	}
	if resolved.Host == "" {
		return nil, false
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved, true
}

// SameAuthority reports whether a and b have exactly the same network authority (host[:port]), case-insensitively
func SameAuthority(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Host, b.Host)
}
