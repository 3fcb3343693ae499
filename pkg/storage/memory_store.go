package storage

import (
	"sync"
	"time"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// MemoryStore is the default map-backed VisitedStore
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.PageDBEntry
	visited int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.PageDBEntry)}
}

func (s *MemoryStore) MarkVisited(normalizedPageURL string, depth int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[normalizedPageURL]; ok && e.Status == models.PageStatusSuccess {
		return false, nil
	}
	s.entries[normalizedPageURL] = models.PageDBEntry{
		Status:      models.PageStatusSuccess,
		Depth:       depth,
		LastAttempt: time.Now(),
	}
	s.visited++
	return true, nil
}

func (s *MemoryStore) MarkFailed(normalizedPageURL string, depth int, errorType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[normalizedPageURL]; ok && e.Status == models.PageStatusSuccess {
		return nil // a visited page stays visited
	}
	s.entries[normalizedPageURL] = models.PageDBEntry{
		Status:      models.PageStatusFailure,
		ErrorType:   errorType,
		Depth:       depth,
		LastAttempt: time.Now(),
	}
	return nil
}

func (s *MemoryStore) Status(normalizedPageURL string) (models.PageStatus, *models.PageDBEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[normalizedPageURL]
	if !ok {
		return models.PageStatusNotFound, nil, nil
	}
	return e.Status, &e, nil
}

func (s *MemoryStore) VisitedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visited
}

func (s *MemoryStore) Close() error { return nil }
