package fetch

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter enforces per-host politeness: a minimum delay between requests (with jitter)
// and, when enabled, a token bucket of requestsPerSecond with the given burst.
type RateLimiter struct {
	mu              sync.Mutex
	hostLastRequest map[string]time.Time
	limiters        map[string]*rate.Limiter
	defaultDelay    time.Duration
	rps             float64
	burst           int
	log             *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. rps <= 0 disables the token bucket.
func NewRateLimiter(defaultDelay time.Duration, rps float64, burst int, log *logrus.Entry) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		limiters:        make(map[string]*rate.Limiter),
		defaultDelay:    defaultDelay,
		rps:             rps,
		burst:           burst,
		log:             log,
	}
}

// ApplyDelay blocks until host may be contacted again or ctx is done.
// minDelay <= 0 falls back to the default delay. The sleep carries +/- 10% jitter.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string, minDelay time.Duration) error {
	if rl == nil {
		return nil
	}
	host = strings.ToLower(host)
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}

	rl.mu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	limiter := rl.limiterLocked(host)
	rl.mu.Unlock()

	if exists && minDelay > 0 {
		if elapsed := time.Since(lastReqTime); elapsed < minDelay {
			sleep := withJitter(minDelay - elapsed)
			if sleep > 0 {
				rl.log.WithFields(logrus.Fields{
					"host": host, "sleep": sleep, "required_delay": minDelay, "elapsed": elapsed,
				}).Debug("Rate limit applying sleep")
				timer := time.NewTimer(sleep)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
		}
	}

	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

// UpdateLastRequestTime records now as the last request attempt for host.
// Call it after the request attempt, successful or not.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.hostLastRequest[strings.ToLower(host)] = time.Now()
	rl.mu.Unlock()
}

func (rl *RateLimiter) limiterLocked(host string) *rate.Limiter {
	if rl.rps <= 0 {
		return nil
	}
	limiter, ok := rl.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.limiters[host] = limiter
	}
	return limiter
}

// withJitter returns d shifted by a random amount in [-10%, +10%)
func withJitter(d time.Duration) time.Duration {
	jitterRange := int64(d) / 5
	if jitterRange <= 0 {
		return d
	}
	out := d + time.Duration(rand.Int64N(jitterRange)) - d/10
	if out < 0 {
		return 0
	}
	return out
}
