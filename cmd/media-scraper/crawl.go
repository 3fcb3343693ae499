package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// crawlOptions holds the crawl command's flags
type crawlOptions struct {
	configFile string
	siteKey    string
	siteKeys   string
	allSites   bool

	seedURL    string
	types      []string
	minSizeKB  int64
	maxSizeKB  int64
	depth      int
	pages      int
	sameDomain bool
	maxPerType string
	outputDir  string

	workers        int
	quotaMode      string
	visitedBackend string
	exif           bool
	sqlite         bool
	report         bool
	structure      bool
	clean          bool
}

// NewCrawlCmd creates the crawl command
func NewCrawlCmd(root *rootOptions) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one or more sites and download their media",
		Long: `Crawl a single ad-hoc site given by --url, or sites defined in a YAML config file.

Media types may be given by name (images, videos, audio, documents, all)
or by menu number (1-4, 5 for all).`,
		Example: `  media-scraper crawl --url https://example.com --types 1,4 --depth 1
  media-scraper crawl --url https://example.com --max-per-type images=20,videos=2
  media-scraper crawl --config config.yaml --sites docs,blog`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := setupLogger(root, cmd.ErrOrStderr())
			return runCrawl(cmd, opts, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "Path to YAML config file")
	f.StringVar(&opts.siteKey, "site", "", "Site key from config to crawl")
	f.StringVar(&opts.siteKeys, "sites", "", "Comma-separated site keys to crawl in parallel")
	f.BoolVar(&opts.allSites, "all-sites", false, "Crawl every site in the config")

	f.StringVar(&opts.seedURL, "url", "", "Seed URL for an ad-hoc crawl")
	f.StringSliceVar(&opts.types, "types", nil, "Media types to download (names or menu numbers, default all)")
	f.Int64Var(&opts.minSizeKB, "min-size-kb", 0, "Skip files smaller than this many KiB")
	f.Int64Var(&opts.maxSizeKB, "max-size-kb", 0, "Skip files larger than this many KiB (0 = unlimited)")
	f.IntVar(&opts.depth, "depth", config.DefaultMaxDepth, "Maximum link depth (0 = seed page only)")
	f.IntVar(&opts.pages, "pages", config.DefaultMaxPages, "Maximum number of pages to visit")
	f.BoolVar(&opts.sameDomain, "same-domain", true, "Only follow links on the seed's host")
	f.StringVar(&opts.maxPerType, "max-per-type", "", "Per-type download limits, e.g. images=10,videos=2")
	f.StringVar(&opts.outputDir, "output", "", "Output directory for the ad-hoc site")

	f.IntVar(&opts.workers, "workers", 0, "Number of download workers (overrides config)")
	f.StringVar(&opts.quotaMode, "quota-mode", "", "Quota enforcement: strict or compat (overrides config)")
	f.StringVar(&opts.visitedBackend, "visited-backend", "", "Visited set: memory or badger (overrides config)")
	f.BoolVar(&opts.exif, "exif", false, "Collect EXIF tags from downloaded JPEGs")
	f.BoolVar(&opts.sqlite, "sqlite", false, "Also write results.db")
	f.BoolVar(&opts.report, "report", false, "Also write report.md")
	f.BoolVar(&opts.structure, "structure", false, "Also write structure.txt")
	f.BoolVar(&opts.clean, "clean", false, "Remove media left in the output directory by earlier runs")

	cmd.MarkFlagsMutuallyExclusive("site", "sites", "all-sites", "url")

	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions, log *logrus.Logger) error {
	appCfg, sites, err := resolveCrawlTargets(cmd, opts, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(log)
	defer stop()

	results := orchestrate.NewOrchestrator(appCfg, sites, logrus.NewEntry(log)).Run(ctx)

	// An interrupted run still wrote its manifests
	if ctx.Err() != nil {
		log.Warn("Crawl interrupted, partial results were saved")
		return nil
	}
	if orchestrate.AllFailed(results) {
		return errors.New("all sites failed")
	}
	return nil
}

// resolveCrawlTargets builds the validated AppConfig and the sites to crawl from flags and config
func resolveCrawlTargets(cmd *cobra.Command, opts *crawlOptions, log *logrus.Logger) (*config.AppConfig, []*config.ResolvedSiteConfig, error) {
	appCfg := &config.AppConfig{}
	if opts.configFile != "" {
		loaded, err := loadConfig(opts.configFile)
		if err != nil {
			return nil, nil, err
		}
		appCfg = loaded
	}

	if err := applyGlobalOverrides(cmd, opts, appCfg); err != nil {
		return nil, nil, err
	}

	var siteKeys []string
	switch {
	case opts.seedURL != "":
		key, site, err := buildAdHocSite(cmd, opts)
		if err != nil {
			return nil, nil, err
		}
		appCfg.Sites = map[string]config.SiteConfig{key: site}
		siteKeys = []string{key}
	case opts.configFile == "":
		return nil, nil, fmt.Errorf("%w: either --url or --config is required", utils.ErrConfigValidation)
	case opts.allSites:
		siteKeys = orchestrate.GetAllSiteKeys(appCfg)
	case opts.siteKeys != "":
		siteKeys = splitList(opts.siteKeys)
	case opts.siteKey != "":
		siteKeys = []string{opts.siteKey}
	default:
		return nil, nil, fmt.Errorf("%w: one of --site, --sites or --all-sites is required with --config", utils.ErrConfigValidation)
	}
	if len(siteKeys) == 0 {
		return nil, nil, fmt.Errorf("%w: no sites to crawl", utils.ErrConfigValidation)
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warnf("Config: %s", w)
	}
	if err != nil {
		return nil, nil, err
	}

	sites, siteWarnings, err := orchestrate.ResolveSites(appCfg, siteKeys)
	for _, w := range siteWarnings {
		log.Warnf("Config: %s", w)
	}
	if err != nil {
		return nil, nil, err
	}
	return appCfg, sites, nil
}

// applyGlobalOverrides copies explicitly set global flags onto appCfg
func applyGlobalOverrides(cmd *cobra.Command, opts *crawlOptions, appCfg *config.AppConfig) error {
	f := cmd.Flags()
	if f.Changed("workers") {
		if opts.workers <= 0 {
			return fmt.Errorf("%w: --workers must be >= 1", utils.ErrConfigValidation)
		}
		appCfg.NumWorkers = opts.workers
	}
	if f.Changed("quota-mode") {
		appCfg.QuotaMode = config.QuotaMode(strings.ToLower(opts.quotaMode))
	}
	if f.Changed("visited-backend") {
		appCfg.VisitedBackend = config.VisitedBackend(strings.ToLower(opts.visitedBackend))
	}
	if f.Changed("exif") {
		appCfg.CollectExif = opts.exif
	}
	if f.Changed("sqlite") {
		appCfg.Manifest.EnableSQLite = opts.sqlite
	}
	if f.Changed("report") {
		appCfg.Manifest.EnableReport = opts.report
	}
	if f.Changed("structure") {
		appCfg.Manifest.EnableStructure = opts.structure
	}
	if f.Changed("clean") {
		appCfg.CleanOutput = opts.clean
	}
	return nil
}

// buildAdHocSite creates a SiteConfig from the ad-hoc flags. The key is the sanitized seed host.
func buildAdHocSite(cmd *cobra.Command, opts *crawlOptions) (string, config.SiteConfig, error) {
	seed, err := url.ParseRequestURI(opts.seedURL)
	if err != nil || seed.Host == "" {
		return "", config.SiteConfig{}, fmt.Errorf("%w: invalid --url '%s'", utils.ErrConfigValidation, opts.seedURL)
	}

	limits, err := parseMaxPerType(opts.maxPerType)
	if err != nil {
		return "", config.SiteConfig{}, err
	}

	depth := opts.depth
	sameDomain := opts.sameDomain
	site := config.SiteConfig{
		SeedURL:    opts.seedURL,
		MediaTypes: opts.types,
		MinSizeKB:  opts.minSizeKB,
		MaxDepth:   &depth,
		MaxPages:   opts.pages,
		SameDomain: &sameDomain,
		MaxPerType: limits,
		OutputDir:  opts.outputDir,
	}
	if cmd.Flags().Changed("max-size-kb") {
		maxSize := opts.maxSizeKB
		site.MaxSizeKB = &maxSize
	}
	return utils.SanitizeFilename(seed.Host), site, nil
}

// parseMaxPerType parses "images=10,videos=2" into a per-type limit map.
// Keys are checked later by SiteConfig.Validate, so menu numbers work too.
func parseMaxPerType(s string) (map[string]int, error) {
	entries := splitList(s)
	if len(entries) == 0 {
		return nil, nil
	}
	limits := make(map[string]int, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --max-per-type entry '%s' must be type=count", utils.ErrConfigValidation, entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: --max-per-type entry '%s': %w", utils.ErrConfigValidation, entry, err)
		}
		limits[key] = n
	}
	return limits, nil
}

// splitList splits a comma-separated list, dropping empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// signalContext returns a context cancelled on the first SIGINT/SIGTERM.
// A second signal exits the process immediately.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Finishing current work and writing manifest (press again to force exit)...", sig)
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigChan:
			log.Errorf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}
