package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/fetch"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/process"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Downloader fetches one queued media item into outputDir/<type>/ and commits it to the ledger
type Downloader struct {
	fetcher     *fetch.Fetcher
	hostSems    *fetch.HostSemaphorePool
	rateLimiter *fetch.RateLimiter
	ledger      *Ledger
	cfg         *config.ResolvedSiteConfig
	rnd         process.RandomSuffix
	log         *logrus.Entry
}

// NewDownloader wires a Downloader. rateLimiter may be nil.
func NewDownloader(
	fetcher *fetch.Fetcher,
	hostSems *fetch.HostSemaphorePool,
	rateLimiter *fetch.RateLimiter,
	ledger *Ledger,
	cfg *config.ResolvedSiteConfig,
	log *logrus.Entry,
) *Downloader {
	return &Downloader{
		fetcher:     fetcher,
		hostSems:    hostSems,
		rateLimiter: rateLimiter,
		ledger:      ledger,
		cfg:         cfg,
		rnd:         func() int { return 1000 + rand.IntN(9000) },
		log:         log,
	}
}

// Download processes item end to end. A nil error means the file is on disk and its record committed.
// Errors wrap ErrQuotaExceeded, ErrSizeRejected, a fetch sentinel or ErrFilesystem; use OutcomeOf to classify.
func (d *Downloader) Download(ctx context.Context, item models.DownloadItem) (*models.DownloadRecord, error) {
	itemLog := d.log.WithFields(logrus.Fields{"media_url": item.MediaURL, "type": item.MediaType})

	mediaURL, err := url.Parse(item.MediaURL)
	if err != nil {
		return nil, fmt.Errorf("%w: media URL '%s': %w", utils.ErrParsing, item.MediaURL, err)
	}
	host := mediaURL.Hostname()

	if err := d.ledger.Reserve(ctx, item.MediaType); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			d.ledger.Release(item.MediaType)
		}
	}()

	var rec *models.DownloadRecord
	err = d.hostSems.Do(ctx, host, func() error {
		if err := d.rateLimiter.ApplyDelay(ctx, host, d.cfg.DelayPerHost); err != nil {
			return err
		}
		var fetchErr error
		rec, fetchErr = d.fetchToDisk(ctx, item, itemLog)
		d.rateLimiter.UpdateLastRequestTime(host)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	if d.cfg.CollectExif && item.MediaType == models.MediaImages {
		tags, exifErr := ExtractExif(filepath.Join(d.cfg.OutputDir, filepath.FromSlash(rec.RelPath())))
		if exifErr != nil {
			itemLog.Debugf("EXIF extraction skipped: %v", exifErr)
		} else if len(tags) > 0 {
			rec.Exif = tags
		}
	}

	d.ledger.Commit(*rec)
	committed = true
	return rec, nil
}

// fetchToDisk streams the media body into a temp file in the type directory,
// enforces the size window and renames the file to its claimed name
func (d *Downloader) fetchToDisk(ctx context.Context, item models.DownloadItem, itemLog *logrus.Entry) (*models.DownloadRecord, error) {
	if d.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DownloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.MediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request for '%s': %w", utils.ErrRequestCreation, item.MediaURL, err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := d.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed for '%s': %w", item.MediaURL, err)
	}
	defer resp.Body.Close()

	minBytes := d.cfg.MinSizeKB * 1024
	maxBytes := d.cfg.MaxSizeKB * 1024

	// --- Header Size Check ---
	if cl := resp.ContentLength; cl >= 0 {
		if cl < minBytes {
			return nil, utils.WrapErrorf(utils.ErrSizeRejected, "Content-Length %d below minimum %d bytes", cl, minBytes)
		}
		if maxBytes > 0 && cl > maxBytes {
			return nil, utils.WrapErrorf(utils.ErrSizeRejected, "Content-Length %d above maximum %d bytes", cl, maxBytes)
		}
	}

	typeDir := filepath.Join(d.cfg.OutputDir, string(item.MediaType))
	if err := os.MkdirAll(typeDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating directory '%s': %w", utils.ErrFilesystem, typeDir, err)
	}

	tmp, err := os.CreateTemp(typeDir, ".part-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp file in '%s': %w", utils.ErrFilesystem, typeDir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	// --- Stream Data with Size Limit ---
	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	hw := utils.NewHashingWriter(tmp)
	if _, err := io.Copy(hw, reader); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: streaming '%s' after %d bytes: %w", utils.ErrFetchTimeout, item.MediaURL, hw.Written(), ctxErr)
			}
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: streaming '%s' after %d bytes: %w", utils.ErrResponseBodyRead, item.MediaURL, hw.Written(), err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmpPath, err)
	}

	size := hw.Written()
	if size < minBytes {
		return nil, utils.WrapErrorf(utils.ErrSizeRejected, "streamed %d bytes, below minimum %d", size, minBytes)
	}
	if maxBytes > 0 && size > maxBytes {
		return nil, utils.WrapErrorf(utils.ErrSizeRejected, "stream exceeded maximum %d bytes", maxBytes)
	}

	// --- Name and Place the File ---
	contentType := resp.Header.Get("Content-Type")
	name := process.ResolveFilename(item.MediaURL, contentType, d.rnd)
	final := d.ledger.ClaimFilename(item.MediaType, name, func(candidate string) bool {
		_, statErr := os.Lstat(filepath.Join(typeDir, candidate))
		return statErr == nil
	})
	finalPath := filepath.Join(typeDir, final)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		d.ledger.UnclaimFilename(item.MediaType, final)
		return nil, fmt.Errorf("%w: renaming to '%s': %w", utils.ErrFilesystem, finalPath, err)
	}
	tmpPath = ""
	if final != name {
		itemLog.Debugf("Filename '%s' taken, saved as '%s'", name, final)
	}

	return &models.DownloadRecord{
		URL:          item.MediaURL,
		Type:         item.MediaType,
		SizeKB:       size / 1024,
		Filename:     final,
		SourcePage:   item.SourcePageURL,
		SizeBytes:    size,
		SHA256:       hw.Sum(),
		ContentType:  contentType,
		DownloadedAt: time.Now(),
	}, nil
}
