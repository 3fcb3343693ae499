package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// VisitedStore tracks page outcomes for one crawl session.
// Pages marked visited count toward max_pages; pages marked failed are only remembered so they are not refetched.
type VisitedStore interface {
	// MarkVisited records a successful fetch+parse of a normalized page URL.
	// Returns false if the URL was already recorded as visited.
	MarkVisited(normalizedPageURL string, depth int) (bool, error)

	// MarkFailed records a failed fetch attempt with its error category
	MarkFailed(normalizedPageURL string, depth int, errorType string) error

	// Status returns PageStatusSuccess, PageStatusFailure or PageStatusNotFound
	Status(normalizedPageURL string) (models.PageStatus, *models.PageDBEntry, error)

	// VisitedCount returns the number of successfully visited pages
	VisitedCount() int

	// Close releases backend resources
	Close() error
}

// New opens the visited store for backend
func New(backend config.VisitedBackend, logger *logrus.Entry) (VisitedStore, error) {
	switch backend {
	case config.VisitedMemory, "":
		return NewMemoryStore(), nil
	case config.VisitedBadger:
		return NewBadgerStore(logger)
	default:
		return nil, fmt.Errorf("%w: unknown visited backend %q", utils.ErrConfigValidation, backend)
	}
}
