package crawler

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/download"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/queue"
	"github.com/Sriram-PR/media-scraper/pkg/storage"
)

// Session owns all per-run state of one site crawl. Nothing in it outlives the run.
type Session struct {
	ID        string
	StartedAt time.Time

	Store  storage.VisitedStore
	Queue  *queue.DownloadQueue
	Ledger *download.Ledger
	Stats  *download.Stats

	pagesFailed int
	queued      map[string]struct{} // type + "\x00" + normalized media URL
}

// NewSession creates a session with a fresh visited store, download queue and ledger
func NewSession(cfg *config.ResolvedSiteConfig, log *logrus.Entry) (*Session, error) {
	id := uuid.NewString()
	sessionLog := log.WithField("session", id)

	store, err := storage.New(cfg.VisitedBackend, sessionLog)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		StartedAt: time.Now(),
		Store:     store,
		Queue:     queue.NewDownloadQueue(sessionLog),
		Ledger:    download.NewLedger(cfg.QuotaMode, cfg.MaxPerType),
		Stats:     download.NewStats(),
		queued:    make(map[string]struct{}),
	}, nil
}

// PagesFailed returns the number of pages that were attempted and failed
func (s *Session) PagesFailed() int { return s.pagesFailed }

// enqueue adds a media item unless the same URL was already queued for its type in this session
func (s *Session) enqueue(item models.DownloadItem, normalizedMediaURL string) bool {
	key := string(item.MediaType) + "\x00" + normalizedMediaURL
	if _, dup := s.queued[key]; dup {
		return false
	}
	if !s.Queue.Add(item) {
		return false
	}
	s.queued[key] = struct{}{}
	return true
}

// Close releases the visited store
func (s *Session) Close() error {
	return s.Store.Close()
}
