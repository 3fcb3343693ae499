package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/parse"
	"github.com/Sriram-PR/media-scraper/pkg/process"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// ErrSeedFailed is returned by Traverse when the seed page itself could not be fetched or parsed
var ErrSeedFailed = errors.New("seed page failed")

// Traverse walks the site depth-first from the seed, filling the session's download queue.
// It returns when the worklist is empty, the page ceiling is hit or ctx is cancelled.
// Page failures are logged and recorded; only cancellation or a failed seed page are returned.
func (c *Crawler) Traverse(ctx context.Context) error {
	s := c.session
	stack := []models.WorkItem{{URL: c.cfg.SeedURL.String(), Depth: 0}}
	lastProgress := time.Now()
	var seedErr error

	c.log.WithFields(logrus.Fields{
		"max_depth": c.cfg.MaxDepth,
		"max_pages": c.cfg.MaxPages,
		"types":     c.cfg.MediaTypes,
	}).Info("Traversal starting")

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			c.log.Warnf("Traversal stopped by context: %v", err)
			return err
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pageLog := c.log.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})

		normalized, pageURL, err := parse.ParseAndNormalize(item.URL)
		if err != nil {
			pageLog.Debugf("Skipping unparsable URL: %v", err)
			continue
		}

		// --- Guards ---
		status, _, err := s.Store.Status(normalized)
		if err != nil {
			pageLog.Errorf("Visited store lookup failed, skipping page: %v", err)
			continue
		}
		if status == models.PageStatusSuccess || status == models.PageStatusFailure {
			pageLog.Debugf("Already %s, skipping", status)
			continue
		}
		if item.Depth > c.cfg.MaxDepth {
			pageLog.Debug("Beyond max depth, skipping")
			continue
		}
		if s.Store.VisitedCount() >= c.cfg.MaxPages {
			pageLog.Infof("Page ceiling reached (%d), stopping traversal", c.cfg.MaxPages)
			break
		}

		doc, base, err := c.loadPage(ctx, pageURL, pageLog)
		if err == nil {
			// A page the store cannot record is a failed page, so it is neither counted nor processed
			if _, markErr := s.Store.MarkVisited(normalized, item.Depth); markErr != nil {
				err = fmt.Errorf("recording visited page: %w", markErr)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation mid-fetch is not a page failure
				return ctx.Err()
			}
			category := utils.CategorizeError(err)
			pageLog.WithField("category", category).Warnf("Page failed: %v", err)
			if markErr := s.Store.MarkFailed(normalized, item.Depth, category); markErr != nil {
				pageLog.Errorf("Failed to record page failure: %v", markErr)
			}
			s.pagesFailed++
			if item.Depth == 0 && s.Store.VisitedCount() == 0 {
				seedErr = fmt.Errorf("%w: %w", ErrSeedFailed, err)
			}
			continue
		}

		queued := c.enqueueMedia(doc, base, pageURL.String(), pageLog)

		var pushed int
		if item.Depth < c.cfg.MaxDepth {
			links := process.ExtractLinks(doc, base, c.scope)
			// Reverse push keeps left-to-right order when popping
			for i := len(links) - 1; i >= 0; i-- {
				stack = append(stack, models.WorkItem{URL: links[i], Depth: item.Depth + 1})
			}
			pushed = len(links)
		}
		pageLog.WithFields(logrus.Fields{"media_queued": queued, "links": pushed}).Debug("Page visited")

		if time.Since(lastProgress) >= c.progressInterval {
			lastProgress = time.Now()
			c.logProgress(len(stack))
		}
	}

	c.logProgress(len(stack))
	return seedErr
}

// loadPage fetches and parses one page under the shared host limits.
// It returns the document and the base URL relative references resolve against.
func (c *Crawler) loadPage(ctx context.Context, pageURL *url.URL, pageLog *logrus.Entry) (*goquery.Document, *url.URL, error) {
	host := pageURL.Hostname()

	var body []byte
	var finalURL *url.URL
	var contentType string
	var isHTML bool
	err := c.hostSems.Do(ctx, host, func() error {
		if err := c.rateLimiter.ApplyDelay(ctx, host, c.cfg.DelayPerHost); err != nil {
			return err
		}
		page, err := c.fetcher.FetchPage(ctx, pageURL.String(), c.cfg.PageTimeout, c.cfg.MaxPageSizeBytes)
		c.rateLimiter.UpdateLastRequestTime(host)
		if err != nil {
			return err
		}
		body, finalURL, contentType, isHTML = page.Body, page.FinalURL, page.ContentType, page.IsHTML()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if finalURL.String() != pageURL.String() {
		pageLog = pageLog.WithField("final_url", finalURL.String())
		pageLog.Debug("URL redirected")
	}
	if c.cfg.SameDomain && !parse.SameAuthority(finalURL, c.cfg.SeedURL) {
		return nil, nil, fmt.Errorf("%w: redirected to '%s' outside '%s'", utils.ErrScopeViolation, finalURL, c.cfg.SeedURL.Host)
	}
	if !isHTML {
		// Media and document links are also page links; they are downloaded, never parsed
		return nil, nil, fmt.Errorf("%w: '%s' is not HTML (Content-Type '%s')", utils.ErrParsing, finalURL, contentType)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parsing HTML from '%s': %w", utils.ErrParsing, finalURL, err)
	}
	return doc, process.DocumentBase(doc, finalURL), nil
}

// enqueueMedia queues every requested media type found on the page, in configured type order
func (c *Crawler) enqueueMedia(doc *goquery.Document, base *url.URL, sourcePage string, pageLog *logrus.Entry) int {
	queued := 0
	for _, t := range c.cfg.MediaTypes {
		for _, mediaURL := range process.ExtractMedia(doc, base, t) {
			normalized, _, err := parse.ParseAndNormalize(mediaURL)
			if err != nil {
				pageLog.Debugf("Skipping media URL '%s': %v", mediaURL, err)
				continue
			}
			item := models.DownloadItem{MediaURL: mediaURL, MediaType: t, SourcePageURL: sourcePage}
			if c.session.enqueue(item, normalized) {
				queued++
			}
		}
	}
	return queued
}

func (c *Crawler) logProgress(stackLen int) {
	c.log.WithFields(logrus.Fields{
		"pages_visited": c.session.Store.VisitedCount(),
		"pages_failed":  c.session.PagesFailed(),
		"queue_len":     c.session.Queue.Len(),
		"stack_len":     stackLen,
	}).Info("Crawl Progress")
}
