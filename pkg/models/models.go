package models

import "time"

// WorkItem represents a page URL and the depth it was discovered at
type WorkItem struct {
	URL   string
	Depth int
}

// DownloadItem is one queued media reference. Immutable once created.
type DownloadItem struct {
	MediaURL      string
	MediaType     MediaType
	SourcePageURL string
}

// DownloadRecord describes a file that has been fully written to outputDir/type/filename
type DownloadRecord struct {
	URL        string    `json:"url"`
	Type       MediaType `json:"type"`
	SizeKB     int64     `json:"size_kb"`
	Filename   string    `json:"filename"`
	SourcePage string    `json:"source_page"`

	// Not part of results.json/results.csv
	SizeBytes    int64             `json:"-"`
	SHA256       string            `json:"-"`
	ContentType  string            `json:"-"`
	DownloadedAt time.Time         `json:"-"`
	Exif         map[string]string `json:"-"`
}

// RelPath returns the record's path relative to the output directory
func (r DownloadRecord) RelPath() string {
	return string(r.Type) + "/" + r.Filename
}

// PageDBEntry stores the outcome of fetching a page in the visited store
type PageDBEntry struct {
	Status      PageStatus `json:"status"`
	ErrorType   string     `json:"error_type,omitempty"` // Error category (on failure)
	Depth       int        `json:"depth"`
	LastAttempt time.Time  `json:"last_attempt"`
}
