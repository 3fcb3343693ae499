package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/log"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const pageKeyPrefix = "page:" // Prefix for page URL keys in DB

// BadgerStore implements VisitedStore on an in-memory BadgerDB instance.
// Nothing is written to disk; state lives only as long as the session.
type BadgerStore struct {
	db           *badger.DB
	log          *logrus.Entry
	visitedCount atomic.Int64
}

// NewBadgerStore opens an in-memory Badger database
func NewBadgerStore(logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening in-memory badger: %w", utils.ErrDatabase, err)
	}
	logger.Debug("In-memory visited store opened")
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// readEntry returns the decoded entry for key, or nil if absent
func readEntry(txn *badger.Txn, key []byte) (*models.PageDBEntry, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry models.PageDBEntry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decoding entry '%s': %w", utils.ErrParsing, string(key), err)
	}
	return &entry, nil
}

func (s *BadgerStore) put(key []byte, entry models.PageDBEntry, skip func(existing *models.PageDBEntry) bool) (bool, error) {
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("%w: marshal PageDBEntry for key '%s': %w", utils.ErrParsing, string(key), err)
	}

	written := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		written = false
		existing, errGet := readEntry(txn, key)
		if errGet != nil {
			return errGet
		}
		if skip(existing) {
			return nil
		}
		if errSet := txn.SetEntry(badger.NewEntry(key, entryBytes)); errSet != nil {
			return errSet
		}
		written = true
		return nil
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB update error: %v", err)
		return false, fmt.Errorf("%w: updating key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	return written, nil
}

// MarkVisited implements VisitedStore
func (s *BadgerStore) MarkVisited(normalizedPageURL string, depth int) (bool, error) {
	added, err := s.put([]byte(pageKeyPrefix+normalizedPageURL), models.PageDBEntry{
		Status:      models.PageStatusSuccess,
		Depth:       depth,
		LastAttempt: time.Now(),
	}, func(existing *models.PageDBEntry) bool {
		return existing != nil && existing.Status == models.PageStatusSuccess
	})
	if added {
		s.visitedCount.Add(1)
	}
	return added, err
}

// MarkFailed implements VisitedStore
func (s *BadgerStore) MarkFailed(normalizedPageURL string, depth int, errorType string) error {
	_, err := s.put([]byte(pageKeyPrefix+normalizedPageURL), models.PageDBEntry{
		Status:      models.PageStatusFailure,
		ErrorType:   errorType,
		Depth:       depth,
		LastAttempt: time.Now(),
	}, func(existing *models.PageDBEntry) bool {
		return existing != nil && existing.Status == models.PageStatusSuccess
	})
	return err
}

// Status implements VisitedStore
func (s *BadgerStore) Status(normalizedPageURL string) (models.PageStatus, *models.PageDBEntry, error) {
	key := []byte(pageKeyPrefix + normalizedPageURL)
	var entry *models.PageDBEntry
	err := s.db.View(func(txn *badger.Txn) error {
		var errGet error
		entry, errGet = readEntry(txn, key)
		return errGet
	})
	if err != nil {
		s.log.Errorf("DB view error for key '%s': %v", string(key), err)
		return models.PageStatusNotFound, nil, fmt.Errorf("%w: reading key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if entry == nil {
		return models.PageStatusNotFound, nil, nil
	}
	return entry.Status, entry, nil
}

// VisitedCount implements VisitedStore
func (s *BadgerStore) VisitedCount() int {
	return int(s.visitedCount.Load())
}

// Close implements VisitedStore. Safe to call twice.
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing visited DB: %v", err)
		return err
	}
	return nil
}
