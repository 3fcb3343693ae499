package process

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const fallbackExtension = ".bin"

// RandomSuffix returns an integer in [1000, 9999]
type RandomSuffix func() int

var guessedExtension = regexp.MustCompile(`^\.[A-Za-z0-9]{1,5}$`)

// preferredExtensions overrides mime.ExtensionsByType's alphabetical first choice
var preferredExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/svg+xml":   ".svg",
	"audio/mpeg":      ".mp3",
	"video/mp4":       ".mp4",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// ResolveFilename derives the local filename for a media URL. Rules, in order:
//
//  1. the base name of the URL path, when it contains a dot, sanitized with its extension kept;
//  2. otherwise "file_<n><ext>" with n from rnd, where ext is
//     a. the extension at the end of the full URL string (path, then query), if 1-5 alphanumerics,
//     b. else the extension registered for contentType,
//     c. else ".bin".
func ResolveFilename(mediaURL, contentType string, rnd RandomSuffix) string {
	u, err := url.Parse(mediaURL)
	if err == nil {
		base := path.Base(u.Path)
		if base != "." && base != "/" && strings.Contains(strings.Trim(base, "."), ".") {
			return utils.SanitizeFilenameKeepExt(base)
		}
	}
	return fmt.Sprintf("file_%d%s", rnd(), guessExtension(mediaURL, contentType))
}

func guessExtension(mediaURL, contentType string) string {
	candidate := mediaURL
	if u, err := url.Parse(mediaURL); err == nil {
		candidate = u.EscapedPath()
		if u.RawQuery != "" {
			candidate += "?" + u.RawQuery
		}
	}
	if ext := path.Ext(candidate); guessedExtension.MatchString(ext) {
		return strings.ToLower(ext)
	}

	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if ext, ok := preferredExtensions[mediaType]; ok {
				return ext
			}
			if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
				return exts[0]
			}
		}
	}
	return fallbackExtension
}
