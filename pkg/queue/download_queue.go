package queue

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// DownloadQueue is a thread-safe FIFO of download items.
// The traversal fills it, closes it, and the worker pool drains it.
type DownloadQueue struct {
	items  []models.DownloadItem
	head   int
	mu     sync.Mutex
	cond   *sync.Cond // Signals waiting consumers that an item arrived or the queue closed
	closed bool
	added  int
	log    *logrus.Entry
}

// NewDownloadQueue creates an empty open queue
func NewDownloadQueue(logger *logrus.Entry) *DownloadQueue {
	q := &DownloadQueue{log: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add appends an item. Items added after Close are dropped with a warning.
func (q *DownloadQueue) Add(item models.DownloadItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warnf("Attempted to add item to closed queue: %s", item.MediaURL)
		return false
	}
	q.items = append(q.items, item)
	q.added++
	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest item.
// It blocks while the queue is empty and open; it returns false once the queue is closed and drained.
func (q *DownloadQueue) Pop() (models.DownloadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) {
		if q.closed {
			return models.DownloadItem{}, false
		}
		q.cond.Wait()
	}

	item := q.items[q.head]
	q.items[q.head] = models.DownloadItem{}
	q.head++
	if q.head == len(q.items) {
		// Drained; reuse the backing array
		q.items = q.items[:0]
		q.head = 0
	}
	return item, true
}

// Close signals that no more items will be added
func (q *DownloadQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast() // Wake every consumer so they can observe the closed state
	}
}

// Len returns the number of items waiting
func (q *DownloadQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Added returns the total number of items ever accepted
func (q *DownloadQueue) Added() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.added
}
