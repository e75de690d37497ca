// internal/quota/limiter.go
package quota

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-account rate limiting for usage fetches
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry

	// every is the minimum spacing between fetches for one account
	every time.Duration

	// entryTTL is how long entries are kept after last use
	entryTTL time.Duration

	now func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLimiter creates a limiter that admits one fetch per account every
// interval. A zero interval admits everything.
func NewLimiter(every time.Duration) *Limiter {
	return &Limiter{
		limiters: make(map[string]*limiterEntry),
		every:    every,
		entryTTL: 10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a fetch for account may proceed now
func (l *Limiter) Allow(account string) bool {
	if l == nil || l.every <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	entry, ok := l.limiters[account]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.every), 1)}
		l.limiters[account] = entry
	}
	entry.lastAccess = now

	return entry.limiter.AllowN(now, 1)
}

// cleanup removes entries that haven't been accessed recently
func (l *Limiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.entryTTL)
	for account, entry := range l.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(l.limiters, account)
		}
	}
}
