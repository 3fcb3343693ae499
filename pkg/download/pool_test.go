package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/queue"
)

func filledQueue(items ...models.DownloadItem) *queue.DownloadQueue {
	q := queue.NewDownloadQueue(testLogger())
	for _, it := range items {
		q.Add(it)
	}
	q.Close()
	return q
}

func imageItems(baseURL string, n int) []models.DownloadItem {
	items := make([]models.DownloadItem, n)
	for i := range items {
		items[i] = models.DownloadItem{
			MediaURL:      fmt.Sprintf("%s/len/2048/img%02d.png", baseURL, i),
			MediaType:     models.MediaImages,
			SourcePageURL: baseURL + "/",
		}
	}
	return items
}

func TestPool_SizeIsMinOfWorkersAndQueue(t *testing.T) {
	tests := []struct {
		name       string
		maxWorkers int
		queued     int
		want       int
	}{
		{"EmptyQueue", 8, 0, 0},
		{"FewerItemsThanWorkers", 8, 3, 3},
		{"MoreItemsThanWorkers", 2, 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(nil, filledQueue(imageItems("http://unused", tt.queued)...), tt.maxWorkers, nil, testLogger())
			assert.Equal(t, tt.want, p.Size())
		})
	}
}

func TestPool_EmptyQueueStartsNoWorkers(t *testing.T) {
	p := NewPool(nil, filledQueue(), 4, nil, testLogger())
	require.NoError(t, p.Run(context.Background()))
	assert.Zero(t, p.Stats().Snapshot().Total())
}

func TestPool_StrictQuotaExactUnderConcurrency(t *testing.T) {
	server := mediaServer(t)
	cfg := testSiteConfig(t)
	cfg.MaxPerType = map[models.MediaType]int{models.MediaImages: 5}
	d, ledger := newTestDownloader(cfg)

	stats := NewStats()
	p := NewPool(d, filledQueue(imageItems(server.URL, 30)...), 8, stats, testLogger())
	require.NoError(t, p.Run(context.Background()))

	snap := stats.Snapshot()
	assert.Equal(t, 5, ledger.Count(models.MediaImages))
	assert.Len(t, ledger.Records(), 5)
	assert.EqualValues(t, 5, snap.Succeeded)
	assert.EqualValues(t, 25, snap.QuotaSkipped)
	assert.Zero(t, snap.Failed)
	assert.Len(t, dirEntries(t, filepath.Join(cfg.OutputDir, "images")), 5)
}

func TestPool_CompatQuotaBoundedByWorkers(t *testing.T) {
	server := mediaServer(t)
	cfg := testSiteConfig(t)
	cfg.QuotaMode = config.QuotaCompat
	cfg.MaxPerType = map[models.MediaType]int{models.MediaImages: 5}
	d, ledger := newTestDownloader(cfg)

	const workers = 8
	p := NewPool(d, filledQueue(imageItems(server.URL, 30)...), workers, nil, testLogger())
	require.NoError(t, p.Run(context.Background()))

	count := ledger.Count(models.MediaImages)
	assert.GreaterOrEqual(t, count, 5)
	assert.LessOrEqual(t, count, 5+workers-1)
}

func TestPool_MixedOutcomes(t *testing.T) {
	server := mediaServer(t)
	cfg := testSiteConfig(t)
	cfg.MinSizeKB = 1
	d, ledger := newTestDownloader(cfg)

	items := []models.DownloadItem{
		{MediaURL: server.URL + "/len/2048/a.png", MediaType: models.MediaImages},
		{MediaURL: server.URL + "/len/10/tiny.png", MediaType: models.MediaImages},
		{MediaURL: server.URL + "/missing/1/x.mp3", MediaType: models.MediaAudio},
		{MediaURL: server.URL + "/len/1500/b.mp3", MediaType: models.MediaAudio},
	}
	stats := NewStats()
	p := NewPool(d, filledQueue(items...), 3, stats, testLogger())
	require.NoError(t, p.Run(context.Background()))

	snap := stats.Snapshot()
	assert.EqualValues(t, 2, snap.Succeeded)
	assert.EqualValues(t, 1, snap.SizeRejected)
	assert.EqualValues(t, 1, snap.Failed)
	assert.Equal(t, map[string]int{"HTTP_404": 1}, snap.Categories)
	assert.Len(t, ledger.Records(), 2)

	// Every record names a file that exists
	for _, rec := range ledger.Records() {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, filepath.FromSlash(rec.RelPath())))
		assert.NoError(t, err, rec.RelPath())
	}
}

func TestPool_CancelledBeforeStart(t *testing.T) {
	server := mediaServer(t)
	cfg := testSiteConfig(t)
	d, ledger := newTestDownloader(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPool(d, filledQueue(imageItems(server.URL, 5)...), 2, nil, testLogger())
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ledger.Records())
}

func TestPool_RecoversFromPanics(t *testing.T) {
	// A nil downloader panics on every item
	stats := NewStats()
	p := NewPool(nil, filledQueue(imageItems("http://unused", 3)...), 2, stats, testLogger())
	require.NoError(t, p.Run(context.Background()))
	assert.EqualValues(t, 3, stats.Snapshot().Failed)
}
