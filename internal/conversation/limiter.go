package conversation

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a sender's bucket survives without traffic.
const idleAfter = 10 * time.Minute

// senderLimiter keeps one token bucket per sender.
type senderLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// newSenderLimiter returns nil, meaning unlimited, for a non-positive rate.
func newSenderLimiter(perSecond float64, burst int) *senderLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &senderLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

// Take spends one token of senderID's bucket. When ok, refund hands the
// token back for a send that did not go through.
func (l *senderLimiter) Take(senderID string) (refund func(), ok bool) {
	if l == nil {
		return func() {}, true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleAfter {
		for id, b := range l.buckets {
			if now.Sub(b.seen) > idleAfter {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[senderID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[senderID] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return nil, false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, false
	}
	return func() { r.CancelAt(time.Now()) }, true
}
