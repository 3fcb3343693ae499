package config

import (
	"net/url"
	"regexp"
	"time"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// QuotaMode selects how per-type quotas are enforced by the download pool
type QuotaMode string

const (
	// QuotaStrict reserves a slot before downloading, so a type never exceeds its limit
	QuotaStrict QuotaMode = "strict"
	// QuotaCompat checks the committed count without reserving; concurrent workers may overshoot
	QuotaCompat QuotaMode = "compat"
)

// VisitedBackend selects the visited-set implementation
type VisitedBackend string

const (
	VisitedMemory VisitedBackend = "memory"
	VisitedBadger VisitedBackend = "badger" // in-memory Badger instance
)

// SiteConfig holds configuration specific to a single seed URL
type SiteConfig struct {
	SeedURL                string         `yaml:"seed_url"`
	MediaTypes             []string       `yaml:"media_types"`
	MinSizeKB              int64          `yaml:"min_size_kb,omitempty"`
	MaxSizeKB              *int64         `yaml:"max_size_kb,omitempty"` // 0 = unlimited; nil = global default
	MaxDepth               *int           `yaml:"max_depth,omitempty"`   // nil = default (2); 0 = seed page only
	MaxPages               int            `yaml:"max_pages,omitempty"`
	SameDomain             *bool          `yaml:"same_domain,omitempty"` // nil = true
	MaxPerType             map[string]int `yaml:"max_per_type,omitempty"`
	OutputDir              string         `yaml:"output_dir,omitempty"`
	DisallowedPathPatterns []string       `yaml:"disallowed_path_patterns,omitempty"` // Regex patterns for link paths to skip
	DelayPerHost           time.Duration  `yaml:"delay_per_host,omitempty"`
}

// ManifestConfig toggles the optional manifest outputs. results.json, results.csv and media.zip are always written.
type ManifestConfig struct {
	EnableSQLite    bool `yaml:"sqlite,omitempty"`    // results.db
	EnableReport    bool `yaml:"report,omitempty"`    // report.md
	EnableStructure bool `yaml:"structure,omitempty"` // structure.txt
}

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgents          []string              `yaml:"user_agents,omitempty"`
	NumWorkers          int                   `yaml:"num_workers"`
	MaxRequestsPerHost  int                   `yaml:"max_requests_per_host"`
	DefaultDelayPerHost time.Duration         `yaml:"default_delay_per_host,omitempty"`
	RequestsPerSecond   float64               `yaml:"requests_per_second,omitempty"` // Per-host token bucket; 0 disables
	Burst               int                   `yaml:"burst,omitempty"`
	PageTimeout         time.Duration         `yaml:"page_timeout,omitempty"`
	DownloadTimeout     time.Duration         `yaml:"download_timeout,omitempty"`
	MaxPageSizeBytes    int64                 `yaml:"max_page_size_bytes,omitempty"`
	MaxSizeKB           int64                 `yaml:"max_size_kb,omitempty"` // Default media size ceiling; 0 = unlimited
	MaxRetries          int                   `yaml:"max_retries,omitempty"`
	InitialRetryDelay   time.Duration         `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay       time.Duration         `yaml:"max_retry_delay,omitempty"`
	OutputBaseDir       string                `yaml:"output_base_dir"`
	VisitedBackend      VisitedBackend        `yaml:"visited_backend,omitempty"`
	QuotaMode           QuotaMode             `yaml:"quota_mode,omitempty"`
	CollectExif         bool                  `yaml:"collect_exif,omitempty"`
	CleanOutput         bool                  `yaml:"clean_output,omitempty"` // Remove media left by earlier runs before crawling
	Manifest            ManifestConfig        `yaml:"manifest,omitempty"`
	HTTPClientSettings  HTTPClientConfig      `yaml:"http_client_settings,omitempty"`
	Sites               map[string]SiteConfig `yaml:"sites"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"` // Overall request timeout; 0 leaves it to per-request contexts
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil = default (true)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// ResolvedSiteConfig is the single struct the crawl pipeline consumes, merged from AppConfig and one SiteConfig
type ResolvedSiteConfig struct {
	SiteKey                string
	SeedURL                *url.URL
	MediaTypes             []models.MediaType
	MinSizeKB              int64
	MaxSizeKB              int64
	MaxDepth               int
	MaxPages               int
	SameDomain             bool
	MaxPerType             map[models.MediaType]int
	OutputDir              string
	MaxWorkers             int
	DisallowedPathPatterns []*regexp.Regexp
	DelayPerHost           time.Duration
	PageTimeout            time.Duration
	DownloadTimeout        time.Duration
	MaxPageSizeBytes       int64
	QuotaMode              QuotaMode
	VisitedBackend         VisitedBackend
	CollectExif            bool
	CleanOutput            bool
	Manifest               ManifestConfig
}

// Wants reports whether media type t was requested
func (r *ResolvedSiteConfig) Wants(t models.MediaType) bool {
	for _, mt := range r.MediaTypes {
		if mt == t {
			return true
		}
	}
	return false
}
