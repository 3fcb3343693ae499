package queue

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func item(n int) models.DownloadItem {
	return models.DownloadItem{
		MediaURL:      fmt.Sprintf("https://example.com/%d.png", n),
		MediaType:     models.MediaImages,
		SourcePageURL: "https://example.com/",
	}
}

func TestNewDownloadQueue(t *testing.T) {
	q := NewDownloadQueue(testLogger())
	if q.Len() != 0 {
		t.Errorf("New queue Len() = %d, want 0", q.Len())
	}
}

func TestDownloadQueue_FIFO(t *testing.T) {
	q := NewDownloadQueue(testLogger())
	for i := range 5 {
		q.Add(item(i))
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	q.Close()

	for i := range 5 {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned ok=false", i)
		}
		if got != item(i) {
			t.Errorf("Pop() #%d = %q, want %q", i, got.MediaURL, item(i).MediaURL)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on closed empty queue returned ok=true")
	}
}

func TestDownloadQueue_AddAfterClose(t *testing.T) {
	q := NewDownloadQueue(testLogger())
	q.Close()
	if q.Add(item(1)) {
		t.Error("Add() after Close returned true")
	}
	if q.Len() != 0 || q.Added() != 0 {
		t.Errorf("closed queue accepted an item: Len=%d Added=%d", q.Len(), q.Added())
	}
}

func TestDownloadQueue_CloseIsIdempotent(t *testing.T) {
	q := NewDownloadQueue(testLogger())
	q.Close()
	q.Close()
	if _, ok := q.Pop(); ok {
		t.Error("Pop() returned ok=true after double Close")
	}
}

func TestDownloadQueue_PopBlocksUntilAdd(t *testing.T) {
	q := NewDownloadQueue(testLogger())
	done := make(chan models.DownloadItem)

	go func() {
		got, _ := q.Pop()
		done <- got
	}()

	select {
	case <-done:
		t.Fatal("Pop() returned before any item was added")
	case <-time.After(50 * time.Millisecond):
	}

	q.Add(item(7))
	select {
	case got := <-done:
		if got != item(7) {
			t.Errorf("Pop() = %q, want %q", got.MediaURL, item(7).MediaURL)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not wake after Add")
	}
}

func TestDownloadQueue_CloseWakesWaiters(t *testing.T) {
	q := NewDownloadQueue(testLogger())
	const waiters = 4
	var wg sync.WaitGroup
	results := make(chan bool, waiters)
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	finished := make(chan struct{})
	go func() { wg.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("waiters not released by Close")
	}
	close(results)
	for ok := range results {
		if ok {
			t.Error("waiter got ok=true from closed empty queue")
		}
	}
}

func TestDownloadQueue_ConcurrentConsumersEachItemOnce(t *testing.T) {
	q := NewDownloadQueue(testLogger())
	const total = 500
	for i := range total {
		q.Add(item(i))
	}
	q.Close()

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				it, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[it.MediaURL]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("consumed %d distinct items, want %d", len(seen), total)
	}
	for u, n := range seen {
		if n != 1 {
			t.Errorf("%s consumed %d times", u, n)
		}
	}
	if q.Added() != total {
		t.Errorf("Added() = %d, want %d", q.Added(), total)
	}
}
