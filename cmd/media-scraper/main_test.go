package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
num_workers: 2
output_base_dir: /tmp/media-scraper-test
sites:
  docs:
    seed_url: https://docs.example.com/
    media_types: [images, documents]
    max_depth: 1
  blog:
    seed_url: https://blog.example.com/
`

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: yaml: content: [")
	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestLoadConfig_Valid(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NumWorkers)
	assert.Len(t, cfg.Sites, 2)
}

func TestDoValidate(t *testing.T) {
	validPath := writeConfig(t, validConfig)
	badSitePath := writeConfig(t, `
output_base_dir: /tmp/media-scraper-test
sites:
  good:
    seed_url: https://example.com/
  bad:
    seed_url: ftp://example.com/
`)

	tests := []struct {
		name       string
		path       string
		site       string
		wantCode   int
		wantStdout []string
		wantStderr []string
	}{
		{
			name:       "all sites",
			path:       validPath,
			wantStdout: []string{"OK: [blog]", "OK: [docs]", "Configuration valid."},
		},
		{
			name:       "single site",
			path:       validPath,
			site:       "docs",
			wantStdout: []string{"OK: [docs]", "Configuration valid."},
		},
		{
			name:       "unknown site",
			path:       validPath,
			site:       "missing",
			wantCode:   1,
			wantStderr: []string{"site 'missing' not found"},
		},
		{
			name:       "invalid site",
			path:       badSitePath,
			wantCode:   1,
			wantStdout: []string{"OK: [good]"},
			wantStderr: []string{"ERROR: [bad]", "http(s)"},
		},
		{
			name:       "missing file",
			path:       "/nonexistent/config.yaml",
			wantCode:   1,
			wantStderr: []string{"ERROR:", "read config"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := doValidate(tt.path, tt.site, &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code, "stderr: %s", stderr.String())
			for _, s := range tt.wantStdout {
				assert.Contains(t, stdout.String(), s)
			}
			for _, s := range tt.wantStderr {
				assert.Contains(t, stderr.String(), s)
			}
			if tt.site == "docs" {
				assert.NotContains(t, stdout.String(), "[blog]")
			}
		})
	}
}

func TestDoListSites(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doListSites(writeConfig(t, validConfig), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Less(t, strings.Index(out, "blog"), strings.Index(out, "docs"), "sites should be sorted")
	assert.Contains(t, out, "https://docs.example.com/")
	assert.Contains(t, out, "images, documents")
	assert.Contains(t, out, "types: all")
}

func TestDoListSites_Empty(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doListSites(writeConfig(t, "num_workers: 1\n"), &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "No sites configured.")
}

func TestParseMaxPerType(t *testing.T) {
	tests := []struct {
		input   string
		want    map[string]int
		wantErr bool
	}{
		{input: "", want: nil},
		{input: "images=10", want: map[string]int{"images": 10}},
		{input: " images = 10 , 2=3 ", want: map[string]int{"images": 10, "2": 3}},
		{input: "images", wantErr: true},
		{input: "=4", wantErr: true},
		{input: "videos=many", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseMaxPerType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, utils.ErrConfigValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	log := setupLogger(&rootOptions{logLevel: "debug", logFormat: "json"}, io.Discard)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log = setupLogger(&rootOptions{logLevel: "bogus", logFormat: "text"}, io.Discard)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "media-scraper version")
	assert.Contains(t, out.String(), "commit:")
}

func TestCrawlCmd_ConfigErrors(t *testing.T) {
	configPath := writeConfig(t, validConfig)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no target", args: []string{"crawl"}, want: "--url or --config"},
		{name: "config without site", args: []string{"crawl", "--config", configPath}, want: "--site"},
		{name: "unknown site", args: []string{"crawl", "--config", configPath, "--site", "nope"}, want: "not found"},
		{name: "bad url", args: []string{"crawl", "--url", "not a url"}, want: "invalid --url"},
		{name: "bad type", args: []string{"crawl", "--url", "https://example.com/", "--types", "9"}, want: "unknown media type"},
		{name: "bad quota mode", args: []string{"crawl", "--url", "https://example.com/", "--quota-mode", "loose"}, want: "quota_mode"},
		{name: "bad workers", args: []string{"crawl", "--url", "https://example.com/", "--workers", "0"}, want: "--workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRootCmd()
			root.SetOut(io.Discard)
			root.SetErr(io.Discard)
			root.SetArgs(tt.args)

			err := root.Execute()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCrawlCmd_AdHoc(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, `<html><body><img src="/a.png"><img src="/b.png"><a href="/guide.pdf">guide</a></body></html>`)
		case "/a.png", "/b.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(bytes.Repeat([]byte("x"), 2048))
		case "/guide.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(bytes.Repeat([]byte("d"), 4096))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	outputDir := filepath.Join(t.TempDir(), "out")
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"crawl", "--url", server.URL + "/",
		"--types", "1",
		"--depth", "0",
		"--max-per-type", "images=1",
		"--output", outputDir,
		"--workers", "2",
		"--report",
		"--loglevel", "error",
	})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(filepath.Join(outputDir, "results.json"))
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1, "max-per-type caps images at one")
	assert.Equal(t, "images", records[0]["type"])

	assert.FileExists(t, filepath.Join(outputDir, "results.csv"))
	assert.FileExists(t, filepath.Join(outputDir, "media.zip"))
	assert.FileExists(t, filepath.Join(outputDir, "report.md"))
	assert.NoFileExists(t, filepath.Join(outputDir, "results.db"))
	assert.NoDirExists(t, filepath.Join(outputDir, "documents"))
}

func TestCrawlCmd_AllSitesFailed(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"crawl", "--url", server.URL + "/",
		"--output", t.TempDir(),
		"--loglevel", "panic",
	})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all sites failed")
}

func TestCrawlCmd_UnwritableOutputDirIsConfigError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body></body></html>`)
	}))
	defer server.Close()

	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	configPath := writeConfig(t, fmt.Sprintf(`
output_base_dir: %s
sites:
  good:
    seed_url: %s/
  bad:
    seed_url: %s/other
    output_dir: %s
`, base, server.URL, server.URL, filepath.Join(blocker, "out")))

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"crawl", "--config", configPath, "--all-sites", "--loglevel", "panic"})

	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
	assert.Zero(t, hits.Load())
}
