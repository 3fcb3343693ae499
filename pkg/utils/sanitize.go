package utils

import (
	"path"
	"regexp"
	"strings"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var consecutiveUnderscores = regexp.MustCompile(`_+`)
const maxFilenameLength = 100

// SanitizeFilename cleans a string to be safe for use as a filename component
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ .")

	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_ .")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// SanitizeFilenameKeepExt sanitizes the stem of name and re-attaches its lowercased extension.
// Extensions longer than 10 bytes are treated as part of the stem.
func SanitizeFilenameKeepExt(name string) string {
	ext := path.Ext(name)
	if len(ext) <= 1 || len(ext) > 10 || invalidFilenameChars.MatchString(ext) {
		return SanitizeFilename(name)
	}
	return SanitizeFilename(strings.TrimSuffix(name, ext)) + strings.ToLower(ext)
}
