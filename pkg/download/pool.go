package download

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/queue"
)

const defaultProgressInterval = 15 * time.Second

// Pool drains a closed download queue with a fixed number of workers
type Pool struct {
	downloader       *Downloader
	queue            *queue.DownloadQueue
	maxWorkers       int
	stats            *Stats
	progressInterval time.Duration
	log              *logrus.Entry
}

// NewPool creates a pool over q. stats may be shared with the caller to read counts afterwards.
func NewPool(downloader *Downloader, q *queue.DownloadQueue, maxWorkers int, stats *Stats, log *logrus.Entry) *Pool {
	if stats == nil {
		stats = NewStats()
	}
	return &Pool{
		downloader:       downloader,
		queue:            q,
		maxWorkers:       maxWorkers,
		stats:            stats,
		progressInterval: defaultProgressInterval,
		log:              log,
	}
}

// Size returns the number of workers Run will start: min(maxWorkers, queued items)
func (p *Pool) Size() int {
	return max(0, min(p.maxWorkers, p.queue.Len()))
}

// Run starts the workers and blocks until every worker has exited.
// Item failures never abort the pool; the only error returned is the context's.
func (p *Pool) Run(ctx context.Context) error {
	n := p.Size()
	if n == 0 {
		p.log.Info("Download queue empty, no workers started")
		return nil
	}
	p.log.Infof("Starting %d download worker(s) for %d queued item(s)...", n, p.queue.Len())

	progressDone := make(chan struct{})
	go p.reportProgress(ctx, progressDone)
	defer close(progressDone)

	var g errgroup.Group
	for i := 1; i <= n; i++ {
		workerLog := p.log.WithField("worker_id", i)
		g.Go(func() error {
			p.worker(ctx, workerLog)
			return nil
		})
	}
	_ = g.Wait()

	snap := p.stats.Snapshot()
	p.log.WithFields(logrus.Fields{
		"succeeded":     snap.Succeeded,
		"failed":        snap.Failed,
		"size_rejected": snap.SizeRejected,
		"quota_skipped": snap.QuotaSkipped,
	}).Info("All download workers finished")
	return ctx.Err()
}

// worker pops items until the queue is drained or ctx is cancelled
func (p *Pool) worker(ctx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		if ctx.Err() != nil {
			workerLog.Warnf("Worker shutting down due to context cancellation: %v", ctx.Err())
			return
		}
		item, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.processItem(ctx, item, workerLog)
	}
}

func (p *Pool) processItem(ctx context.Context, item models.DownloadItem, workerLog *logrus.Entry) {
	itemLog := workerLog.WithField("media_url", item.MediaURL)
	defer func() {
		if r := recover(); r != nil {
			itemLog.WithFields(logrus.Fields{"panic_info": r, "stack_trace": string(debug.Stack())}).Error("PANIC recovered in download worker")
			p.stats.Record(models.OutcomeFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	rec, err := p.downloader.Download(ctx, item)
	outcome := OutcomeOf(err)
	p.stats.Record(outcome, err)

	snap := p.stats.Snapshot()
	countsLog := itemLog.WithFields(logrus.Fields{
		"outcome": outcome,
		"ok":      snap.Succeeded,
		"failed":  snap.Failed,
	})
	switch outcome {
	case models.OutcomeSucceeded:
		countsLog.WithFields(logrus.Fields{"filename": rec.Filename, "size_kb": rec.SizeKB}).Info("Downloaded")
	case models.OutcomeFailed:
		countsLog.Warnf("Download failed: %v", err)
	default:
		countsLog.Debugf("Item skipped: %v", err)
	}
}

func (p *Pool) reportProgress(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(p.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.stats.Snapshot()
			p.log.WithFields(logrus.Fields{
				"queue_len":     p.queue.Len(),
				"succeeded":     snap.Succeeded,
				"failed":        snap.Failed,
				"size_rejected": snap.SizeRejected,
				"quota_skipped": snap.QuotaSkipped,
			}).Info("Download Progress")
		}
	}
}

// Stats returns the pool's counters
func (p *Pool) Stats() *Stats { return p.stats }
