package process

import (
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/media-scraper/pkg/parse"
)

// LinkScope filters outbound page links
type LinkScope struct {
	// Seed is the crawl's seed URL; with SameDomain only links on its exact authority are kept
	Seed       *url.URL
	SameDomain bool
	// DisallowedPathPatterns are matched against the resolved link path
	DisallowedPathPatterns []*regexp.Regexp
}

// Allows reports whether link is within scope
func (s LinkScope) Allows(link *url.URL) bool {
	if s.SameDomain && !parse.SameAuthority(link, s.Seed) {
		return false
	}
	for _, pattern := range s.DisallowedPathPatterns {
		if pattern.MatchString(link.Path) {
			return false
		}
	}
	return true
}

// ExtractLinks returns every a[href] of doc resolved against base and filtered by scope.
// The result is an ordered set keyed by normalized URL, in document order.
func ExtractLinks(doc *goquery.Document, base *url.URL, scope LinkScope) []string {
	set := newOrderedSet()
	doc.Find("a[href]").Each(func(_ int, el *goquery.Selection) {
		href, _ := el.Attr("href")
		link, ok := parse.ResolveReference(base, href)
		if !ok || !scope.Allows(link) {
			return
		}
		set.add(parse.NormalizeURL(link), link.String())
	})
	return set.values()
}

// DocumentBase returns the URL relative references in doc resolve against:
// the first <base href> resolved against pageURL, or pageURL itself.
func DocumentBase(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, exists := doc.Find("base[href]").First().Attr("href")
	if !exists {
		return pageURL
	}
	if resolved, ok := parse.ResolveReference(pageURL, href); ok {
		return resolved
	}
	return pageURL
}

// orderedSet keeps first-seen values, deduplicated by key
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(key, value string) {
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, value)
}

func (s *orderedSet) values() []string { return s.items }
