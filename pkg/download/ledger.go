package download

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Ledger is the result ledger of one crawl session: the committed records, the per-type
// quota counters and the claimed filenames, all guarded by one mutex.
//
// In strict mode a worker reserves a slot before fetching, so the committed count of a type
// never exceeds its limit. In compat mode the check happens before the download and the
// increment after it, so concurrent workers may overshoot the limit.
type Ledger struct {
	mu   sync.Mutex
	cond *sync.Cond // Broadcast whenever a reservation resolves

	mode     config.QuotaMode
	limits   map[models.MediaType]int // 0 or absent = unlimited
	counts   map[models.MediaType]int
	reserved map[models.MediaType]int
	records  []models.DownloadRecord
	claimed  map[string]struct{} // "type/filename"
}

// NewLedger creates an empty ledger. limits is copied.
func NewLedger(mode config.QuotaMode, limits map[models.MediaType]int) *Ledger {
	l := &Ledger{
		mode:     mode,
		limits:   make(map[models.MediaType]int, len(limits)),
		counts:   make(map[models.MediaType]int),
		reserved: make(map[models.MediaType]int),
		claimed:  make(map[string]struct{}),
	}
	for t, n := range limits {
		l.limits[t] = n
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Ledger) strict() bool { return l.mode != config.QuotaCompat }

// Reserve claims a quota slot for one download of type t.
// It returns an error wrapping ErrQuotaExceeded when the committed count has reached the limit.
// When only in-flight reservations could fill the remaining slots it waits for one of them to resolve.
// A nil return must be paired with exactly one Commit or Release.
func (l *Ledger) Reserve(ctx context.Context, t models.MediaType) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.cond.Broadcast()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limits[t]
	for {
		if limit > 0 && l.counts[t] >= limit {
			return utils.WrapErrorf(utils.ErrQuotaExceeded, "%s limit %d reached", t, limit)
		}
		if !l.strict() {
			return nil
		}
		if limit <= 0 || l.counts[t]+l.reserved[t] < limit {
			l.reserved[t]++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
}

// Release gives back a reservation whose download failed
func (l *Ledger) Release(t models.MediaType) {
	if !l.strict() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserved[t] > 0 {
		l.reserved[t]--
	}
	l.cond.Broadcast()
}

// Commit appends rec and increments its type counter, consuming the reservation in strict mode
func (l *Ledger) Commit(rec models.DownloadRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	l.counts[rec.Type]++
	if l.strict() && l.reserved[rec.Type] > 0 {
		l.reserved[rec.Type]--
	}
	l.claimed[claimKey(rec.Type, rec.Filename)] = struct{}{}
	l.cond.Broadcast()
}

// ClaimFilename returns a filename for type t derived from name that no other record of this run
// uses and for which exists reports false. Collisions get "_1", "_2", ... before the extension.
// The returned name stays claimed until UnclaimFilename.
func (l *Ledger) ClaimFilename(t models.MediaType, name string, exists func(string) bool) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		if _, taken := l.claimed[claimKey(t, candidate)]; !taken && (exists == nil || !exists(candidate)) {
			break
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	l.claimed[claimKey(t, candidate)] = struct{}{}
	return candidate
}

// UnclaimFilename frees a name claimed for a download that was never committed
func (l *Ledger) UnclaimFilename(t models.MediaType, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claimed, claimKey(t, name))
}

func claimKey(t models.MediaType, name string) string {
	return string(t) + "/" + strings.ToLower(name)
}

// Records returns a copy of the committed records in commit order
func (l *Ledger) Records() []models.DownloadRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.DownloadRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Count returns the committed count for t
func (l *Ledger) Count(t models.MediaType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[t]
}

// Counts returns a copy of every type's committed count
func (l *Ledger) Counts() map[models.MediaType]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[models.MediaType]int, len(l.counts))
	for t, n := range l.counts {
		out[t] = n
	}
	return out
}

// Limit returns the configured limit for t (0 = unlimited)
func (l *Ledger) Limit(t models.MediaType) int {
	return l.limits[t]
}
