package download

import (
	"errors"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Stats holds the running outcome counts of a download pool
type Stats struct {
	succeeded    atomic.Int64
	failed       atomic.Int64
	sizeRejected atomic.Int64
	quotaSkipped atomic.Int64

	mu         sync.Mutex
	categories map[string]int // failure category -> count
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Succeeded    int64
	Failed       int64
	SizeRejected int64
	QuotaSkipped int64
	Categories   map[string]int
}

// Total returns the number of items that finished with any outcome
func (s StatsSnapshot) Total() int64 {
	return s.Succeeded + s.Failed + s.SizeRejected + s.QuotaSkipped
}

func NewStats() *Stats {
	return &Stats{categories: make(map[string]int)}
}

// OutcomeOf classifies the error returned by Downloader.Download
func OutcomeOf(err error) models.DownloadOutcome {
	switch {
	case err == nil:
		return models.OutcomeSucceeded
	case errors.Is(err, utils.ErrSizeRejected):
		return models.OutcomeSizeRejected
	case errors.Is(err, utils.ErrQuotaExceeded):
		return models.OutcomeQuotaSkipped
	default:
		return models.OutcomeFailed
	}
}

// Record counts one finished item. Failures are also counted under their error category.
func (s *Stats) Record(outcome models.DownloadOutcome, err error) {
	switch outcome {
	case models.OutcomeSucceeded:
		s.succeeded.Add(1)
	case models.OutcomeSizeRejected:
		s.sizeRejected.Add(1)
	case models.OutcomeQuotaSkipped:
		s.quotaSkipped.Add(1)
	default:
		s.failed.Add(1)
		s.mu.Lock()
		s.categories[utils.CategorizeError(err)]++
		s.mu.Unlock()
	}
}

// Snapshot copies the current counts
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	categories := maps.Clone(s.categories)
	s.mu.Unlock()
	return StatsSnapshot{
		Succeeded:    s.succeeded.Load(),
		Failed:       s.failed.Load(),
		SizeRejected: s.sizeRejected.Load(),
		QuotaSkipped: s.quotaSkipped.Load(),
		Categories:   categories,
	}
}
