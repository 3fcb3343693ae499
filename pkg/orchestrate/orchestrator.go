package orchestrate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/crawler"
	"github.com/Sriram-PR/media-scraper/pkg/fetch"
	"github.com/Sriram-PR/media-scraper/pkg/manifest"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const hostEvictionInterval = 5 * time.Minute

// SiteResult contains the result of crawling a single site
type SiteResult struct {
	SiteKey  string
	Success  bool
	Error    error
	Summary  manifest.RunSummary
	Duration time.Duration
}

// Orchestrator runs several site crawls in parallel over one shared HTTP client,
// rate limiter and per-host semaphore pool
type Orchestrator struct {
	sites []*config.ResolvedSiteConfig
	deps  crawler.Deps
	log   *logrus.Entry
}

// NewOrchestrator creates the shared network components from appCfg. appCfg must be validated.
func NewOrchestrator(appCfg *config.AppConfig, sites []*config.ResolvedSiteConfig, log *logrus.Entry) *Orchestrator {
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
	return &Orchestrator{
		sites: sites,
		deps: crawler.Deps{
			Fetcher:     fetch.NewFetcher(httpClient, appCfg, log.WithField("component", "fetcher")),
			HostSems:    fetch.NewHostSemaphorePool(appCfg.MaxRequestsPerHost, log.WithField("component", "host_semaphores")),
			RateLimiter: fetch.NewRateLimiter(appCfg.DefaultDelayPerHost, appCfg.RequestsPerSecond, appCfg.Burst, log.WithField("component", "rate_limiter")),
		},
		log: log,
	}
}

// Run crawls every site in parallel and waits for all of them.
// Results are returned in the order the sites were given.
func (o *Orchestrator) Run(ctx context.Context) []SiteResult {
	startTime := time.Now()
	keys := make([]string, len(o.sites))
	for i, s := range o.sites {
		keys[i] = s.SiteKey
	}
	o.log.Infof("Starting crawl of %d site(s): %v", len(o.sites), keys)

	evictCtx, stopEviction := context.WithCancel(ctx)
	defer stopEviction()
	go o.deps.HostSems.RunEviction(evictCtx, hostEvictionInterval)

	results := make([]SiteResult, len(o.sites))
	var wg sync.WaitGroup
	for i, site := range o.sites {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.crawlSite(ctx, site)
		}()
	}
	wg.Wait()

	o.logSummary(results, time.Since(startTime))
	return results
}

// crawlSite crawls a single site with the shared components
func (o *Orchestrator) crawlSite(ctx context.Context, site *config.ResolvedSiteConfig) SiteResult {
	startTime := time.Now()
	result := SiteResult{SiteKey: site.SiteKey}
	siteLog := o.log.WithField("site", site.SiteKey)

	c, err := crawler.NewCrawler(site, o.deps, o.log)
	if err != nil {
		result.Error = err
		siteLog.Errorf("Failed to create crawler: %v", err)
		result.Duration = time.Since(startTime)
		return result
	}

	runResult, err := c.Run(ctx)
	if runResult != nil {
		result.Summary = runResult.Summary
	}
	if err != nil {
		result.Error = err
		siteLog.Errorf("Crawl failed: %v", err)
	} else {
		result.Success = true
		siteLog.Info("Crawl completed")
	}
	result.Duration = time.Since(startTime)
	return result
}

// logSummary logs a summary of all crawl results
func (o *Orchestrator) logSummary(results []SiteResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("All crawls completed in %v", totalDuration.Round(time.Millisecond))
	o.log.Info("Site Results:")

	var totalPages int
	var totalFiles int64
	successCount := 0
	for _, r := range results {
		status := "SUCCESS"
		if r.Success {
			successCount++
		} else {
			status = "FAILED"
		}
		totalPages += r.Summary.PagesVisited
		totalFiles += r.Summary.Succeeded

		o.log.Infof("  %s: %s - %d pages, %d files in %v", r.SiteKey, status, r.Summary.PagesVisited, r.Summary.Succeeded, r.Duration.Round(time.Millisecond))
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d sites (%d success, %d failed), %d pages visited, %d files downloaded",
		len(results), successCount, len(results)-successCount, totalPages, totalFiles)
	o.log.Info("============================================")
}

// AllFailed reports whether no site succeeded. An empty result set counts as failed.
func AllFailed(results []SiteResult) bool {
	for _, r := range results {
		if r.Success {
			return false
		}
	}
	return true
}

// ValidateSiteKeys checks that all provided site keys exist in the config
func ValidateSiteKeys(appCfg *config.AppConfig, siteKeys []string) error {
	for _, key := range siteKeys {
		if _, exists := appCfg.Sites[key]; !exists {
			return fmt.Errorf("%w: site '%s' not found. Available sites: %v", utils.ErrConfigValidation, key, appCfg.SiteKeys())
		}
	}
	return nil
}

// GetAllSiteKeys returns all site keys from the config in sorted order
func GetAllSiteKeys(appCfg *config.AppConfig) []string {
	return appCfg.SiteKeys()
}

// ResolveSites validates the named site configs and merges each with appCfg.
// appCfg must be validated. Warnings are prefixed with their site key.
// Two sites resolving to the same output directory is an error, as is an output directory that cannot be written.
func ResolveSites(appCfg *config.AppConfig, siteKeys []string) ([]*config.ResolvedSiteConfig, []string, error) {
	if err := ValidateSiteKeys(appCfg, siteKeys); err != nil {
		return nil, nil, err
	}

	var warnings []string
	resolved := make([]*config.ResolvedSiteConfig, 0, len(siteKeys))
	outputDirs := make(map[string]string, len(siteKeys))
	for _, key := range siteKeys {
		siteCfg := appCfg.Sites[key]
		siteWarnings, err := siteCfg.Validate()
		for _, w := range siteWarnings {
			warnings = append(warnings, fmt.Sprintf("site '%s': %s", key, w))
		}
		if err != nil {
			return nil, warnings, fmt.Errorf("site '%s': %w", key, err)
		}

		r, err := config.NewResolvedSiteConfig(*appCfg, key, siteCfg)
		if err != nil {
			return nil, warnings, fmt.Errorf("site '%s': %w", key, err)
		}

		dir := filepath.Clean(r.OutputDir)
		if other, dup := outputDirs[dir]; dup {
			return nil, warnings, fmt.Errorf("%w: sites '%s' and '%s' share output directory '%s'", utils.ErrConfigValidation, other, key, dir)
		}
		outputDirs[dir] = key
		resolved = append(resolved, r)
	}

	// Every output directory must be usable before any site starts fetching
	for _, r := range resolved {
		if err := config.EnsureWritableDir(r.OutputDir); err != nil {
			return nil, warnings, fmt.Errorf("site '%s': %w", r.SiteKey, err)
		}
	}
	return resolved, warnings, nil
}
