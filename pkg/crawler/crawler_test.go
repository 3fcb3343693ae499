package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/fetch"
	"github.com/Sriram-PR/media-scraper/pkg/manifest"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/parse"
	"github.com/Sriram-PR/media-scraper/pkg/storage"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testSite serves HTML pages from a path map and 2 KiB PNG payloads under /media/.
// {{base}} in a page is replaced with the server's URL.
type testSite struct {
	*httptest.Server

	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
	order []string
}

func newTestSite(t *testing.T, pages map[string]string) *testSite {
	t.Helper()
	s := &testSite{pages: pages, hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *testSite) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.order = append(s.order, r.URL.Path)
	body, ok := s.pages[r.URL.Path]
	s.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/media/") {
		w.Header().Set("Content-Type", "image/png")
		w.Write(bytes.Repeat([]byte("p"), 2048))
		return
	}
	if strings.HasPrefix(body, "redirect:") {
		http.Redirect(w, r, strings.TrimPrefix(body, "redirect:"), http.StatusFound)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, strings.ReplaceAll(body, "{{base}}", s.URL))
}

func (s *testSite) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func page(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testConfig(t *testing.T, seed string) *config.ResolvedSiteConfig {
	t.Helper()
	seedURL, err := url.Parse(seed)
	require.NoError(t, err)
	return &config.ResolvedSiteConfig{
		SiteKey:          "test",
		SeedURL:          seedURL,
		MediaTypes:       []models.MediaType{models.MediaImages},
		MaxDepth:         5,
		MaxPages:         100,
		SameDomain:       true,
		MaxPerType:       map[models.MediaType]int{},
		OutputDir:        t.TempDir(),
		MaxWorkers:       4,
		PageTimeout:      5 * time.Second,
		DownloadTimeout:  5 * time.Second,
		MaxPageSizeBytes: 1 << 20,
		QuotaMode:        config.QuotaStrict,
		VisitedBackend:   config.VisitedMemory,
	}
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	appCfg := &config.AppConfig{OutputBaseDir: t.TempDir()}
	_, err := appCfg.Validate()
	require.NoError(t, err)
	log := testLogger()
	return Deps{
		Fetcher:  fetch.NewFetcher(fetch.NewClient(appCfg.HTTPClientSettings, log), appCfg, log),
		HostSems: fetch.NewHostSemaphorePool(appCfg.MaxRequestsPerHost, log),
	}
}

func newTestCrawler(t *testing.T, cfg *config.ResolvedSiteConfig) *Crawler {
	t.Helper()
	c, err := NewCrawler(cfg, testDeps(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Session().Close() })
	return c
}

func TestTraverse_NoDuplicateVisits(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  page("/a", "/b", "/a", "/#top", "/?"),
		"/a": page("/", "/b", "{{base}}/a"),
		"/b": page("/a", "/", "/b#frag"),
	})
	c := newTestCrawler(t, testConfig(t, site.URL+"/"))

	require.NoError(t, c.Traverse(context.Background()))

	for _, p := range []string{"/", "/a", "/b"} {
		assert.Equal(t, 1, site.Hits(p), "fetches of %s", p)
	}
	assert.Equal(t, 3, c.Session().Store.VisitedCount())
}

func TestTraverse_DepthFirstOrder(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":   page("/a", "/b"),
		"/a":  page("/a1", "/a2"),
		"/a1": page(),
		"/a2": page(),
		"/b":  page("/b1"),
		"/b1": page(),
	})
	c := newTestCrawler(t, testConfig(t, site.URL+"/"))

	require.NoError(t, c.Traverse(context.Background()))
	assert.Equal(t, []string{"/", "/a", "/a1", "/a2", "/b", "/b1"}, site.Order())
}

func TestTraverse_DepthBound(t *testing.T) {
	chain := map[string]string{
		"/p0": page("/p1"),
		"/p1": page("/p2"),
		"/p2": page("/p3"),
		"/p3": page("/p4"),
	}
	tests := []struct {
		name     string
		maxDepth int
		fetched  []string
		skipped  []string
	}{
		{"seed only", 0, []string{"/p0"}, []string{"/p1"}},
		{"depth two", 2, []string{"/p0", "/p1", "/p2"}, []string{"/p3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newTestSite(t, chain)
			cfg := testConfig(t, site.URL+"/p0")
			cfg.MaxDepth = tt.maxDepth
			c := newTestCrawler(t, cfg)

			require.NoError(t, c.Traverse(context.Background()))
			for _, p := range tt.fetched {
				assert.Equal(t, 1, site.Hits(p), p)
			}
			for _, p := range tt.skipped {
				assert.Zero(t, site.Hits(p), p)
			}
		})
	}
}

func TestTraverse_PageCeiling(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  page("/1", "/2", "/3", "/4", "/5"),
		"/1": page(), "/2": page(), "/3": page(), "/4": page(), "/5": page(),
	})
	cfg := testConfig(t, site.URL+"/")
	cfg.MaxPages = 1
	c := newTestCrawler(t, cfg)

	require.NoError(t, c.Traverse(context.Background()))
	assert.Equal(t, []string{"/"}, site.Order())
	assert.Equal(t, 1, c.Session().Store.VisitedCount())
}

func TestTraverse_DomainFilter(t *testing.T) {
	other := newTestSite(t, map[string]string{"/elsewhere": page()})

	tests := []struct {
		name       string
		sameDomain bool
		otherHits  int
	}{
		{"same domain only", true, 0},
		{"any domain", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newTestSite(t, map[string]string{
				"/":      page("/local", other.URL+"/elsewhere"),
				"/local": page(),
			})
			cfg := testConfig(t, site.URL+"/")
			cfg.SameDomain = tt.sameDomain
			c := newTestCrawler(t, cfg)

			before := other.Hits("/elsewhere")
			require.NoError(t, c.Traverse(context.Background()))
			assert.Equal(t, 1, site.Hits("/local"))
			assert.Equal(t, tt.otherHits, other.Hits("/elsewhere")-before)
		})
	}
}

func TestTraverse_DisallowedPatterns(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":          page("/private/x", "/public"),
		"/private/x": page(),
		"/public":    page(),
	})
	cfg := testConfig(t, site.URL+"/")
	patterns, err := utils.CompilePathPatterns("disallowed_path_patterns", []string{`^/private/`})
	require.NoError(t, err)
	cfg.DisallowedPathPatterns = patterns
	c := newTestCrawler(t, cfg)

	require.NoError(t, c.Traverse(context.Background()))
	assert.Zero(t, site.Hits("/private/x"))
	assert.Equal(t, 1, site.Hits("/public"))
}

func TestTraverse_FailedPageAttemptedOnce(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  page("/missing", "/a", "/missing"),
		"/a": page("/missing"),
	})
	c := newTestCrawler(t, testConfig(t, site.URL+"/"))

	require.NoError(t, c.Traverse(context.Background()))
	assert.Equal(t, 1, site.Hits("/missing"))
	assert.Equal(t, 1, c.Session().PagesFailed())
	assert.Equal(t, 2, c.Session().Store.VisitedCount())

	normalized, _, err := parse.ParseAndNormalize(site.URL + "/missing")
	require.NoError(t, err)
	status, entry, err := c.Session().Store.Status(normalized)
	require.NoError(t, err)
	assert.Equal(t, models.PageStatusFailure, status)
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP_404", entry.ErrorType)
}

func TestTraverse_SeedFailure(t *testing.T) {
	site := newTestSite(t, map[string]string{})
	c := newTestCrawler(t, testConfig(t, site.URL+"/nothing"))

	err := c.Traverse(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeedFailed)
	assert.ErrorIs(t, err, utils.ErrClientHTTPError)
}

func TestTraverse_RedirectOffHostIsScopeViolation(t *testing.T) {
	other := newTestSite(t, map[string]string{
		"/landing": page("/deeper"),
		"/deeper":  page(),
	})
	site := newTestSite(t, map[string]string{
		"/":    page("/out"),
		"/out": "redirect:" + other.URL + "/landing",
	})
	c := newTestCrawler(t, testConfig(t, site.URL+"/"))

	require.NoError(t, c.Traverse(context.Background()))
	assert.Equal(t, 1, c.Session().PagesFailed())
	assert.Zero(t, other.Hits("/deeper"), "links of an out-of-scope page must not be followed")
}

func TestTraverse_DuplicateImagesCollapse(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<img src="/media/one.png">
			<img src="{{base}}/media/one.png">
			<img src="/media/two.png">
		</body></html>`,
	})
	cfg := testConfig(t, site.URL+"/")
	cfg.MaxDepth = 0
	c := newTestCrawler(t, cfg)

	require.NoError(t, c.Traverse(context.Background()))
	assert.Equal(t, 2, c.Session().Queue.Len())
}

func TestTraverse_MediaQueuedOncePerSession(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  `<html><body><img src="/media/logo.png"><a href="/a">a</a></body></html>`,
		"/a": `<html><body><img src="/media/logo.png"><img src="/media/photo.png"></body></html>`,
	})
	c := newTestCrawler(t, testConfig(t, site.URL+"/"))

	require.NoError(t, c.Traverse(context.Background()))
	assert.Equal(t, 2, c.Session().Queue.Len())
}

func TestTraverse_Cancelled(t *testing.T) {
	site := newTestSite(t, map[string]string{"/": page()})
	c := newTestCrawler(t, testConfig(t, site.URL+"/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Traverse(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, site.Hits("/"))
}

func TestRun_ManifestMatchesDisk(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<img src="/media/a.png"><img src="/media/b.png"><img src="/media/c.png">
			<a href="/docs">docs</a>
		</body></html>`,
		"/docs": `<html><body><img src="/media/d.png"><a href="/media/guide.pdf">guide</a></body></html>`,
	})
	cfg := testConfig(t, site.URL+"/")
	cfg.MediaTypes = []models.MediaType{models.MediaImages, models.MediaDocuments}
	cfg.MaxPerType = map[models.MediaType]int{models.MediaImages: 2}
	cfg.Manifest = config.ManifestConfig{EnableReport: true, EnableStructure: true}
	c := newTestCrawler(t, cfg)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.Summary.PagesVisited)
	assert.Equal(t, 1, result.Summary.PagesFailed, "the PDF link is attempted as a page and rejected as non-HTML")
	assert.Equal(t, 5, result.Summary.ItemsQueued)
	assert.EqualValues(t, 3, result.Summary.Succeeded)
	assert.EqualValues(t, 2, result.Summary.QuotaSkipped)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, manifest.JSONFile))
	require.NoError(t, err)
	var records []models.DownloadRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)

	perType := map[models.MediaType]int{}
	for _, rec := range records {
		perType[rec.Type]++
		info, err := os.Stat(filepath.Join(cfg.OutputDir, string(rec.Type), rec.Filename))
		require.NoError(t, err, "record %s has no file", rec.Filename)
		assert.Equal(t, info.Size()/1024, rec.SizeKB)
	}
	assert.Equal(t, 2, perType[models.MediaImages])
	assert.Equal(t, 1, perType[models.MediaDocuments])

	require.Len(t, result.Records, 3)
	for _, rec := range result.Records {
		sum, err := utils.CalculateFileSHA256(filepath.Join(cfg.OutputDir, rec.RelPath()))
		require.NoError(t, err)
		assert.Equal(t, rec.SHA256, sum, rec.Filename)
	}

	imageFiles, err := os.ReadDir(filepath.Join(cfg.OutputDir, string(models.MediaImages)))
	require.NoError(t, err)
	assert.Len(t, imageFiles, 2, "no stray temp files or unrecorded images")

	for _, name := range []string{manifest.CSVFile, manifest.ReportFile, manifest.StructureFile, manifest.ArchiveFile} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRun_CancelledStillWritesManifest(t *testing.T) {
	site := newTestSite(t, map[string]string{"/": page()})
	cfg := testConfig(t, site.URL+"/")
	c := newTestCrawler(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := c.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, result)
	assert.True(t, result.Summary.Interrupted)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, manifest.JSONFile))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRun_UnwritableOutputDir(t *testing.T) {
	site := newTestSite(t, map[string]string{"/": page()})
	cfg := testConfig(t, site.URL+"/")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	cfg.OutputDir = filepath.Join(blocker, "out")
	c := newTestCrawler(t, cfg)

	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
	assert.Zero(t, site.Hits("/"))
}

func TestNewCrawler_RequiresDeps(t *testing.T) {
	_, err := NewCrawler(testConfig(t, "http://example.com/"), Deps{}, testLogger())
	assert.Error(t, err)
}

func TestRun_OutputFromEarlierRun(t *testing.T) {
	tests := []struct {
		name      string
		clean     bool
		wantFiles []string
		wantWarn  bool
	}{
		{"kept and reported", false, []string{"a.png", "a_1.png"}, true},
		{"removed with clean", true, []string{"a.png"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newTestSite(t, map[string]string{"/": `<html><body><img src="/media/a.png"></body></html>`})
			cfg := testConfig(t, site.URL+"/")
			cfg.CleanOutput = tt.clean
			imagesDir := filepath.Join(cfg.OutputDir, string(models.MediaImages))
			require.NoError(t, os.MkdirAll(imagesDir, 0755))
			require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "a.png"), []byte("old"), 0644))

			logger, hook := logtest.NewNullLogger()
			c, err := NewCrawler(cfg, testDeps(t), logrus.NewEntry(logger))
			require.NoError(t, err)

			result, err := c.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, result.Records, 1)

			entries, err := os.ReadDir(imagesDir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.ElementsMatch(t, tt.wantFiles, names)
			if tt.clean {
				assert.Equal(t, "a.png", result.Records[0].Filename)
			}

			warned := false
			for _, entry := range hook.AllEntries() {
				if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "earlier run") {
					warned = true
				}
			}
			assert.Equal(t, tt.wantWarn, warned)
		})
	}
}

// failingVisitStore refuses to record visits to paths ending in failSuffix
type failingVisitStore struct {
	storage.VisitedStore
	failSuffix string
}

func (s failingVisitStore) MarkVisited(normalizedPageURL string, depth int) (bool, error) {
	if strings.HasSuffix(normalizedPageURL, s.failSuffix) {
		return false, fmt.Errorf("%w: disk full", utils.ErrDatabase)
	}
	return s.VisitedStore.MarkVisited(normalizedPageURL, depth)
}

func TestTraverse_UnrecordablePageCountsAsFailed(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  page("/a", "/b"),
		"/a": `<html><body><img src="/media/from-a.png"><a href="/c">c</a></body></html>`,
		"/b": page("/a"),
		"/c": page(),
	})
	c := newTestCrawler(t, testConfig(t, site.URL+"/"))
	c.Session().Store = failingVisitStore{VisitedStore: c.Session().Store, failSuffix: "/a"}

	require.NoError(t, c.Traverse(context.Background()))

	assert.Equal(t, 1, site.Hits("/a"), "a failed page is attempted once")
	assert.Zero(t, site.Hits("/c"), "links of an unrecorded page are not followed")
	assert.Equal(t, 1, c.Session().PagesFailed())
	assert.Equal(t, 2, c.Session().Store.VisitedCount())
	assert.Zero(t, c.Session().Queue.Len(), "media of an unrecorded page is not queued")
}
