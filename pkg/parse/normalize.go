package parse

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a page URL for visited-set membership.
// It lowercases the scheme and host, removes default ports, turns an empty path into "/",
// strips a trailing slash from longer paths and drops the fragment.
// The query string is kept: "?page=2" is a different page.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u
	normalized.User = nil

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = StripDefaultPort(normalized.Scheme, strings.ToLower(normalized.Host))

	if normalized.Path == "" {
		normalized.Path = "/"
		normalized.RawPath = ""
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = strings.TrimSuffix(normalized.Path, "/")
		normalized.RawPath = strings.TrimSuffix(normalized.RawPath, "/")
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.ForceQuery = false

	return normalized.String()
}

// StripDefaultPort removes :80 from http hosts and :443 from https hosts
func StripDefaultPort(scheme, host string) string {
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI (requiring a scheme) and then normalizes it using NormalizeURL
// Returns the normalized string, the parsed URL object, and any parse error
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}
