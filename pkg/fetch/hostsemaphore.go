package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const defaultMaxPerHost = 4

// hostSlot is the permit set of one host plus what eviction needs to know about it
type hostSlot struct {
	sem       *semaphore.Weighted
	users     int       // holders and waiters
	idleSince time.Time // set when users drops to zero
}

// HostSemaphorePool caps in-flight requests per host. Page fetches and media
// downloads of all sites share one pool, so max_requests_per_host is global.
type HostSemaphorePool struct {
	mu    sync.Mutex
	slots map[string]*hostSlot
	limit int64
	log   *logrus.Entry
}

// NewHostSemaphorePool returns a pool allowing maxPerHost concurrent requests per host
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	if maxPerHost <= 0 {
		log.Warnf("max_requests_per_host is %d, using %d", maxPerHost, defaultMaxPerHost)
		maxPerHost = defaultMaxPerHost
	}
	return &HostSemaphorePool{
		slots: make(map[string]*hostSlot),
		limit: int64(maxPerHost),
		log:   log,
	}
}

// Do runs fn while holding one of host's permits. Host names compare case-insensitively.
// Returns ctx's error if the permit could not be obtained.
func (p *HostSemaphorePool) Do(ctx context.Context, host string, fn func() error) error {
	host = strings.ToLower(host)
	slot := p.join(host)
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		p.leave(slot)
		return err
	}
	defer func() {
		slot.sem.Release(1)
		p.leave(slot)
	}()
	return fn()
}

// join registers a user of host's slot, creating the slot on first use
func (p *HostSemaphorePool) join(host string) *hostSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.slots[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(p.limit)}
		p.slots[host] = slot
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Tracking new host")
	}
	slot.users++
	return slot
}

func (p *HostSemaphorePool) leave(slot *hostSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot.users--
	if slot.users == 0 {
		slot.idleSince = time.Now()
	}
}

// RunEviction drops hosts idle for at least interval until ctx is done. Run it in its own goroutine.
func (p *HostSemaphorePool) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle(interval)
		case <-ctx.Done():
			return
		}
	}
}

// evictIdle removes slots nobody has used for maxIdle. Returns how many were removed.
func (p *HostSemaphorePool) evictIdle(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	evicted := 0
	for host, slot := range p.slots {
		if slot.users == 0 && !slot.idleSince.After(cutoff) {
			delete(p.slots, host)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.WithFields(logrus.Fields{"evicted": evicted, "tracked": len(p.slots)}).Debug("Evicted idle hosts")
	}
	return evicted
}

// TrackedHosts returns the number of hosts currently holding a slot
func (p *HostSemaphorePool) TrackedHosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
