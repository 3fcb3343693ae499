package download

import (
	"errors"
	"fmt"
	"io"
	"os"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// maxExifScan bounds how much of an image is searched for an EXIF block
const maxExifScan = 8 << 20

// ExtractExif returns the flat EXIF tags of the image at filePath, keyed by tag name.
// The first occurrence of a tag wins (IFD0 before the thumbnail IFD).
// An image without EXIF yields an empty map and no error.
func ExtractExif(filePath string) (tags map[string]string, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxExifScan))
	if err != nil {
		return nil, fmt.Errorf("%w: reading '%s': %w", utils.ErrFilesystem, filePath, err)
	}

	// go-exif reports some malformed input by panicking
	defer func() {
		if r := recover(); r != nil {
			tags, err = nil, fmt.Errorf("%w: exif decoder panic: %v", utils.ErrParsing, r)
		}
	}()

	tags = make(map[string]string)
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return tags, nil
		}
		return nil, fmt.Errorf("%w: locating exif: %w", utils.ErrParsing, err)
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding exif: %w", utils.ErrParsing, err)
	}
	for _, entry := range entries {
		if _, seen := tags[entry.TagName]; !seen && entry.TagName != "" {
			tags[entry.TagName] = entry.Formatted
		}
	}
	return tags, nil
}
