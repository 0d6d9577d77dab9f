package accesscode

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mediagate.org/internal/obs"
)

const (
	guardBucketTTL   = 5 * time.Minute
	guardSweepPeriod = time.Minute
)

// Guard applies a per-client token bucket to code validation so bearer
// secrets cannot be guessed at line rate. A rejected attempt never reaches
// storage.
type Guard struct {
	mu        sync.Mutex
	buckets   map[string]*guardBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

type guardBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewGuard builds a guard allowing perSecond sustained validations with the
// given burst per client key.
func NewGuard(perSecond float64, burst int) *Guard {
	return &Guard{
		buckets:   make(map[string]*guardBucket),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the client may attempt another validation now.
func (g *Guard) Allow(client string) bool {
	if client == "" {
		client = "unknown"
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) > guardSweepPeriod {
		for k, b := range g.buckets {
			if now.Sub(b.seen) > guardBucketTTL {
				delete(g.buckets, k)
			}
		}
		g.lastSweep = now
	}

	b, ok := g.buckets[client]
	if !ok {
		b = &guardBucket{lim: rate.NewLimiter(g.limit, g.burst)}
		g.buckets[client] = b
	}
	b.seen = now
	if !b.lim.Allow() {
		obs.CodeGuardRejected()
		return false
	}
	return true
}
