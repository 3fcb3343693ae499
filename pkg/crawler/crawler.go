package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/download"
	"github.com/Sriram-PR/media-scraper/pkg/fetch"
	"github.com/Sriram-PR/media-scraper/pkg/manifest"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/process"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const defaultProgressInterval = 10 * time.Second

// Deps are the network components shared by every crawler of a run
type Deps struct {
	Fetcher     *fetch.Fetcher
	HostSems    *fetch.HostSemaphorePool
	RateLimiter *fetch.RateLimiter // may be nil
}

// Crawler runs one site: traversal, then the download pool, then the manifest
type Crawler struct {
	cfg     *config.ResolvedSiteConfig
	session *Session

	fetcher     *fetch.Fetcher
	hostSems    *fetch.HostSemaphorePool
	rateLimiter *fetch.RateLimiter
	scope       process.LinkScope

	progressInterval time.Duration
	log              *logrus.Entry
}

// Result is what a finished Run reports back
type Result struct {
	Summary manifest.RunSummary
	Records []models.DownloadRecord
}

// NewCrawler creates a crawler and its session for cfg
func NewCrawler(cfg *config.ResolvedSiteConfig, deps Deps, baseLogger *logrus.Entry) (*Crawler, error) {
	if deps.Fetcher == nil || deps.HostSems == nil {
		return nil, errors.New("crawler requires a fetcher and a host semaphore pool")
	}
	logger := baseLogger.WithField("site", cfg.SiteKey)

	session, err := NewSession(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating session for site '%s': %w", cfg.SiteKey, err)
	}
	logger = logger.WithField("session", session.ID)

	return &Crawler{
		cfg:         cfg,
		session:     session,
		fetcher:     deps.Fetcher,
		hostSems:    deps.HostSems,
		rateLimiter: deps.RateLimiter,
		scope: process.LinkScope{
			Seed:                   cfg.SeedURL,
			SameDomain:             cfg.SameDomain,
			DisallowedPathPatterns: cfg.DisallowedPathPatterns,
		},
		progressInterval: defaultProgressInterval,
		log:              logger,
	}, nil
}

// prepareOutputDir removes media left in the type directories by an earlier run when
// CleanOutput is set, and warns about it otherwise.
func (c *Crawler) prepareOutputDir() error {
	for _, t := range models.AllMediaTypes {
		dir := filepath.Join(c.cfg.OutputDir, string(t))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: reading '%s': %w", utils.ErrFilesystem, dir, err)
		}
		if len(entries) == 0 {
			continue
		}

		dirLog := c.log.WithFields(logrus.Fields{"dir": dir, "files": len(entries)})
		if c.cfg.CleanOutput {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("%w: removing '%s': %w", utils.ErrFilesystem, dir, err)
			}
			dirLog.Info("Removed media from an earlier run")
			continue
		}
		dirLog.Warn("Output holds media from an earlier run; it will be archived without manifest records (use --clean to remove it)")
	}
	return nil
}

// Session returns the crawler's per-run state
func (c *Crawler) Session() *Session { return c.session }

// Run crawls the site, drains the download queue and writes the manifest.
// The manifest is written even when ctx is cancelled, for whatever was committed.
// The session is closed when Run returns.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	defer func() {
		if err := c.session.Close(); err != nil {
			c.log.Warnf("Closing session: %v", err)
		}
	}()

	c.log.WithFields(logrus.Fields{
		"seed":       c.cfg.SeedURL.String(),
		"output_dir": c.cfg.OutputDir,
		"workers":    c.cfg.MaxWorkers,
		"quota_mode": c.cfg.QuotaMode,
	}).Info("Crawl starting")

	if err := config.EnsureWritableDir(c.cfg.OutputDir); err != nil {
		return nil, err
	}
	if err := c.prepareOutputDir(); err != nil {
		return nil, err
	}

	traverseErr := c.Traverse(ctx)
	if traverseErr != nil && !errors.Is(traverseErr, context.Canceled) && !errors.Is(traverseErr, context.DeadlineExceeded) {
		c.log.Errorf("Traversal finished with error: %v", traverseErr)
	}
	c.session.Queue.Close()

	downloader := download.NewDownloader(c.fetcher, c.hostSems, c.rateLimiter, c.session.Ledger, c.cfg, c.log.WithField("component", "downloader"))
	pool := download.NewPool(downloader, c.session.Queue, c.cfg.MaxWorkers, c.session.Stats, c.log.WithField("component", "pool"))
	poolErr := pool.Run(ctx)

	records := c.session.Ledger.Records()
	summary := c.summarize(ctx)

	writer := manifest.NewWriter(c.cfg.OutputDir, c.cfg.Manifest, c.log.WithField("component", "manifest"))
	manifestErr := writer.Write(ctx, records, summary)

	c.logSummary(summary)

	if ctx.Err() != nil {
		return &Result{Summary: summary, Records: records}, errors.Join(ctx.Err(), manifestErr)
	}
	if err := errors.Join(traverseErr, poolErr, manifestErr); err != nil {
		return &Result{Summary: summary, Records: records}, err
	}
	return &Result{Summary: summary, Records: records}, nil
}

func (c *Crawler) summarize(ctx context.Context) manifest.RunSummary {
	snap := c.session.Stats.Snapshot()
	return manifest.RunSummary{
		SessionID:         c.session.ID,
		SiteKey:           c.cfg.SiteKey,
		SeedURL:           c.cfg.SeedURL.String(),
		StartedAt:         c.session.StartedAt,
		FinishedAt:        time.Now(),
		Interrupted:       ctx.Err() != nil,
		PagesVisited:      c.session.Store.VisitedCount(),
		PagesFailed:       c.session.PagesFailed(),
		ItemsQueued:       c.session.Queue.Added(),
		Succeeded:         snap.Succeeded,
		Failed:            snap.Failed,
		SizeRejected:      snap.SizeRejected,
		QuotaSkipped:      snap.QuotaSkipped,
		FailureCategories: snap.Categories,
		MaxPerType:        c.cfg.MaxPerType,
	}
}

func (c *Crawler) logSummary(s manifest.RunSummary) {
	summaryLog := c.log.WithField("seed", s.SeedURL)
	summaryLog.Info("========================================================================")
	if s.Interrupted {
		summaryLog.Info("CRAWL INTERRUPTED")
	} else {
		summaryLog.Info("CRAWL FINISHED")
	}
	summaryLog.Infof("Duration:      %v", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	summaryLog.Infof("Pages:         %d visited, %d failed", s.PagesVisited, s.PagesFailed)
	summaryLog.Infof("Media items:   %d queued", s.ItemsQueued)
	summaryLog.Infof("Downloads:     %d ok, %d failed, %d size-rejected, %d quota-skipped",
		s.Succeeded, s.Failed, s.SizeRejected, s.QuotaSkipped)
	for _, t := range c.cfg.MediaTypes {
		summaryLog.Infof("  %-12s %d", t, c.session.Ledger.Count(t))
	}
	summaryLog.Infof("Output:        %s", c.cfg.OutputDir)
	summaryLog.Info("========================================================================")
}
