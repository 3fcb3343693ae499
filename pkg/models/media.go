package models

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// MediaType is one of the four download categories. Its value doubles as the output subdirectory name.
type MediaType string

const (
	MediaImages    MediaType = "images"
	MediaVideos    MediaType = "videos"
	MediaAudio     MediaType = "audio"
	MediaDocuments MediaType = "documents"
)

// AllMediaTypes lists every media type in menu order
var AllMediaTypes = []MediaType{MediaImages, MediaVideos, MediaAudio, MediaDocuments}

var mediaExtensions = map[MediaType][]string{
	MediaImages:    {".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"},
	MediaVideos:    {".mp4", ".webm"},
	MediaAudio:     {".mp3", ".ogg", ".wav"},
	MediaDocuments: {".pdf", ".epub", ".docx", ".txt"},
}

// Extensions returns the recognized lowercase extensions for t
func (t MediaType) Extensions() []string {
	return slices.Clone(mediaExtensions[t])
}

// HasExtension reports whether p (a URL path or filename) ends with one of t's extensions
func (t MediaType) HasExtension(p string) bool {
	return slices.Contains(mediaExtensions[t], strings.ToLower(path.Ext(p)))
}

// IsValid returns true for the four known media types
func (t MediaType) IsValid() bool {
	_, ok := mediaExtensions[t]
	return ok
}

func (t MediaType) String() string { return string(t) }

// ParseMediaType accepts a type name (singular or plural, any case) or a menu number 1-4
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "images", "image", "1":
		return MediaImages, nil
	case "videos", "video", "2":
		return MediaVideos, nil
	case "audio", "audios", "3":
		return MediaAudio, nil
	case "documents", "document", "docs", "4":
		return MediaDocuments, nil
	}
	return "", fmt.Errorf("unknown media type %q", s)
}

// ParseMediaTypes parses a list of selections. "all" or menu number 5 selects every type.
// The result keeps first-seen order and has no duplicates.
func ParseMediaTypes(values []string) ([]MediaType, error) {
	var out []MediaType
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if v == "5" || strings.EqualFold(v, "all") {
			for _, t := range AllMediaTypes {
				if !slices.Contains(out, t) {
					out = append(out, t)
				}
			}
			continue
		}
		t, err := ParseMediaType(v)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}
