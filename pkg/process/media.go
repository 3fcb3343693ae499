package process

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/parse"
)

// attrRule selects attribute values from matching elements
type attrRule struct {
	selector string
	attrs    []string
	// keep, when set, filters elements before their attributes are read
	keep func(*goquery.Selection) bool
}

var mediaRules = map[models.MediaType][]attrRule{
	models.MediaImages: {
		{selector: "img, source", attrs: []string{"src", "data-src"}, keep: outsideAV},
		{selector: "meta[content]", attrs: []string{"content"}, keep: isImageMeta},
	},
	models.MediaVideos: {
		{selector: "video[src], video source[src]", attrs: []string{"src"}},
	},
	models.MediaAudio: {
		{selector: "audio[src], audio source[src]", attrs: []string{"src"}},
	},
}

// outsideAV drops <source> elements that belong to a video or audio element
func outsideAV(s *goquery.Selection) bool {
	return s.Closest("video, audio").Length() == 0
}

// isImageMeta keeps og:image, twitter:image, itemprop=image and similar
func isImageMeta(s *goquery.Selection) bool {
	for _, attr := range []string{"property", "name", "itemprop"} {
		if v, ok := s.Attr(attr); ok && strings.Contains(strings.ToLower(v), "image") {
			return true
		}
	}
	return false
}

// ExtractMedia returns the absolute media URLs of type t referenced by doc, resolved against base.
// The result is an ordered set in document order.
//
//	images:    img and picture-level source src/data-src, plus image meta content
//	videos:    video src and nested source src
//	audio:     audio src and nested source src
//	documents: a[href] whose resolved path ends in a document extension
func ExtractMedia(doc *goquery.Document, base *url.URL, t models.MediaType) []string {
	set := newOrderedSet()

	if t == models.MediaDocuments {
		doc.Find("a[href]").Each(func(_ int, el *goquery.Selection) {
			href, _ := el.Attr("href")
			if link, ok := parse.ResolveReference(base, href); ok && t.HasExtension(link.Path) {
				set.add(link.String(), link.String())
			}
		})
		return set.values()
	}

	for _, rule := range mediaRules[t] {
		doc.Find(rule.selector).Each(func(_ int, el *goquery.Selection) {
			if rule.keep != nil && !rule.keep(el) {
				return
			}
			for _, attr := range rule.attrs {
				v, exists := el.Attr(attr)
				if !exists {
					continue
				}
				if link, ok := parse.ResolveReference(base, v); ok {
					set.add(link.String(), link.String())
				}
			}
		})
	}
	return set.values()
}
