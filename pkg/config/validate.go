package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const (
	DefaultMaxDepth   = 2
	DefaultMaxPages   = 100
	DefaultNumWorkers = 8
)

// DefaultUserAgents are rotated randomly per request
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Linux; Android 10; Mobile)",
	"Mozilla/5.0 (Windows NT 10.0; Win64)",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64)",
}

// DefaultOutputBaseDir is <user download dir>/media
func DefaultOutputBaseDir() string {
	return filepath.Join(xdg.UserDirs.Download, "media")
}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if len(c.UserAgents) == 0 {
		c.UserAgents = append([]string(nil), DefaultUserAgents...)
	}

	if c.NumWorkers <= 0 {
		warnings = append(warnings, fmt.Sprintf("num_workers should be > 0, defaulting to %d", DefaultNumWorkers))
		c.NumWorkers = DefaultNumWorkers
	}

	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 4")
		c.MaxRequestsPerHost = 4
	}

	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, disabling delay")
		c.DefaultDelayPerHost = 0
	}

	if c.RequestsPerSecond < 0 {
		warnings = append(warnings, "requests_per_second cannot be negative, disabling token bucket")
		c.RequestsPerSecond = 0
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}

	if c.PageTimeout <= 0 {
		c.PageTimeout = 10 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 60 * time.Second
	}
	if c.MaxPageSizeBytes <= 0 {
		c.MaxPageSizeBytes = 10 << 20
	}

	if c.MaxSizeKB < 0 {
		warnings = append(warnings, "max_size_kb cannot be negative, setting to 0 (unlimited)")
		c.MaxSizeKB = 0
	}

	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.OutputBaseDir == "" {
		c.OutputBaseDir = DefaultOutputBaseDir()
		warnings = append(warnings, fmt.Sprintf("output_base_dir is empty, defaulting to '%s'", c.OutputBaseDir))
	}

	switch c.VisitedBackend {
	case "":
		c.VisitedBackend = VisitedMemory
	case VisitedMemory, VisitedBadger:
	default:
		return warnings, fmt.Errorf("%w: unknown visited_backend '%s' (want memory or badger)", utils.ErrConfigValidation, c.VisitedBackend)
	}

	switch c.QuotaMode {
	case "":
		c.QuotaMode = QuotaStrict
	case QuotaStrict:
	case QuotaCompat:
		warnings = append(warnings, "quota_mode 'compat' lets concurrent workers overshoot max_per_type")
	default:
		return warnings, fmt.Errorf("%w: unknown quota_mode '%s' (want strict or compat)", utils.ErrConfigValidation, c.QuotaMode)
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
// Timeout stays 0 unless set: page and download deadlines come from per-request contexts.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = c.MaxRequestsPerHost
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ResponseHeaderTimeout <= 0 {
		h.ResponseHeaderTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 10 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks SiteConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
func (c *SiteConfig) Validate() (warnings []string, err error) {
	if c.SeedURL == "" {
		return nil, fmt.Errorf("%w: site has no seed_url", utils.ErrConfigValidation)
	}
	seed, err := url.ParseRequestURI(c.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid seed_url '%s': %w", utils.ErrConfigValidation, c.SeedURL, err)
	}
	if (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		return nil, fmt.Errorf("%w: seed_url '%s' must be an absolute http(s) URL", utils.ErrConfigValidation, c.SeedURL)
	}

	if len(c.MediaTypes) == 0 {
		warnings = append(warnings, "media_types is empty, selecting all media types")
		c.MediaTypes = []string{"all"}
	}
	if _, err := models.ParseMediaTypes(c.MediaTypes); err != nil {
		return warnings, fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
	}

	if c.MinSizeKB < 0 {
		warnings = append(warnings, "min_size_kb cannot be negative, setting to 0")
		c.MinSizeKB = 0
	}
	if c.MaxSizeKB != nil && *c.MaxSizeKB < 0 {
		warnings = append(warnings, "max_size_kb cannot be negative, setting to 0 (unlimited)")
		zero := int64(0)
		c.MaxSizeKB = &zero
	}
	if c.MaxSizeKB != nil && *c.MaxSizeKB > 0 && *c.MaxSizeKB < c.MinSizeKB {
		return warnings, fmt.Errorf("%w: max_size_kb (%d) is below min_size_kb (%d)", utils.ErrConfigValidation, *c.MaxSizeKB, c.MinSizeKB)
	}

	if c.MaxDepth == nil {
		d := DefaultMaxDepth
		c.MaxDepth = &d
	} else if *c.MaxDepth < 0 {
		warnings = append(warnings, "max_depth cannot be negative, setting to 0 (seed page only)")
		zero := 0
		c.MaxDepth = &zero
	}

	if c.MaxPages <= 0 {
		warnings = append(warnings, fmt.Sprintf("max_pages should be >= 1, defaulting to %d", DefaultMaxPages))
		c.MaxPages = DefaultMaxPages
	}

	for k, v := range c.MaxPerType {
		if _, err := models.ParseMediaType(k); err != nil {
			return warnings, fmt.Errorf("%w: max_per_type: %w", utils.ErrConfigValidation, err)
		}
		if v < 0 {
			warnings = append(warnings, fmt.Sprintf("max_per_type[%s] cannot be negative, setting to 0 (unlimited)", k))
			c.MaxPerType[k] = 0
		}
	}

	if _, err := utils.CompilePathPatterns("disallowed_path_patterns", c.DisallowedPathPatterns); err != nil {
		return warnings, err
	}

	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, using global default")
		c.DelayPerHost = 0
	}

	return warnings, nil
}

// NewResolvedSiteConfig merges validated global and site settings.
// Both configs must have been validated first.
func NewResolvedSiteConfig(appCfg AppConfig, siteKey string, siteCfg SiteConfig) (*ResolvedSiteConfig, error) {
	seed, err := url.ParseRequestURI(siteCfg.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid seed_url '%s': %w", utils.ErrConfigValidation, siteCfg.SeedURL, err)
	}
	mediaTypes, err := models.ParseMediaTypes(siteCfg.MediaTypes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
	}
	patterns, err := utils.CompilePathPatterns("disallowed_path_patterns", siteCfg.DisallowedPathPatterns)
	if err != nil {
		return nil, err
	}

	if siteKey == "" {
		siteKey = utils.SanitizeFilename(seed.Host)
	}

	r := &ResolvedSiteConfig{
		SiteKey:                siteKey,
		SeedURL:                seed,
		MediaTypes:             mediaTypes,
		MinSizeKB:              siteCfg.MinSizeKB,
		MaxSizeKB:              appCfg.MaxSizeKB,
		MaxDepth:               DefaultMaxDepth,
		MaxPages:               siteCfg.MaxPages,
		SameDomain:             true,
		MaxPerType:             make(map[models.MediaType]int, len(siteCfg.MaxPerType)),
		OutputDir:              siteCfg.OutputDir,
		MaxWorkers:             appCfg.NumWorkers,
		DisallowedPathPatterns: patterns,
		DelayPerHost:           appCfg.DefaultDelayPerHost,
		PageTimeout:            appCfg.PageTimeout,
		DownloadTimeout:        appCfg.DownloadTimeout,
		MaxPageSizeBytes:       appCfg.MaxPageSizeBytes,
		QuotaMode:              appCfg.QuotaMode,
		VisitedBackend:         appCfg.VisitedBackend,
		CollectExif:            appCfg.CollectExif,
		CleanOutput:            appCfg.CleanOutput,
		Manifest:               appCfg.Manifest,
	}
	if siteCfg.MaxSizeKB != nil {
		r.MaxSizeKB = *siteCfg.MaxSizeKB
	}
	if siteCfg.MaxDepth != nil {
		r.MaxDepth = *siteCfg.MaxDepth
	}
	if r.MaxPages <= 0 {
		r.MaxPages = DefaultMaxPages
	}
	if siteCfg.SameDomain != nil {
		r.SameDomain = *siteCfg.SameDomain
	}
	if siteCfg.DelayPerHost > 0 {
		r.DelayPerHost = siteCfg.DelayPerHost
	}
	for k, v := range siteCfg.MaxPerType {
		mt, err := models.ParseMediaType(k)
		if err != nil {
			return nil, fmt.Errorf("%w: max_per_type: %w", utils.ErrConfigValidation, err)
		}
		if v > 0 {
			r.MaxPerType[mt] = v
		}
	}
	if r.OutputDir == "" {
		r.OutputDir = filepath.Join(appCfg.OutputBaseDir, siteKey)
	}
	return r, nil
}

// EnsureWritableDir creates dir if needed and verifies a file can be written inside it.
// An unwritable output directory is a fatal configuration error.
func EnsureWritableDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: output directory is empty", utils.ErrConfigValidation)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %w: creating output directory '%s': %w", utils.ErrConfigValidation, utils.ErrFilesystem, dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %w: output directory '%s' is not writable: %w", utils.ErrConfigValidation, utils.ErrFilesystem, dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
