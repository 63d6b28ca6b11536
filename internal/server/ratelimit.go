package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/metrics"
)

const (
	defaultRateLimit     = rate.Limit(5)
	defaultRateBurst     = 10
	defaultLimiterIdle   = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type senderBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// senderLimiter applies a token bucket per authenticated identity.
// Buckets idle longer than idleTTL are dropped; by then they have refilled.
type senderLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	clock     func() time.Time
	lastSweep time.Time
	buckets   map[string]*senderBucket
}

func newSenderLimiter(limit rate.Limit, burst int) *senderLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if burst < 1 {
		burst = defaultRateBurst
	}
	idleTTL := defaultLimiterIdle
	if limit != rate.Inf {
		if refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); refill > idleTTL {
			idleTTL = refill
		}
	}
	return &senderLimiter{
		limit:   limit,
		burst:   burst,
		idleTTL: idleTTL,
		clock:   time.Now,
		buckets: make(map[string]*senderBucket),
	}
}

func (l *senderLimiter) Allow(identity string) bool {
	l.mu.Lock()
	now := l.clock()
	l.evictIdle(now)
	bucket, ok := l.buckets[identity]
	if !ok {
		bucket = &senderBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[identity] = bucket
	}
	bucket.lastSeen = now
	l.mu.Unlock()
	if bucket.limiter.AllowN(now, 1) {
		return true
	}
	metrics.RateLimited.Inc()
	return false
}

// evictIdle runs at most once per sweep interval. Callers hold mu.
func (l *senderLimiter) evictIdle(now time.Time) {
	if now.Sub(l.lastSweep) < limiterSweepInterval {
		return
	}
	l.lastSweep = now
	for identity, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > l.idleTTL {
			delete(l.buckets, identity)
		}
	}
}

func (l *senderLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
