package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a per-client request budget. Clients are tracked by an
// opaque key (the claims user id, falling back to the remote address) and
// evicted after a period of inactivity.
type Limiter struct {
	burst   int
	rps     float64
	expiry  time.Duration
	clients map[string]*client
	mu      sync.Mutex
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLimiter(burst int, expiry time.Duration, rps float64) *Limiter {
	l := &Limiter{
		burst:   burst,
		rps:     rps,
		expiry:  expiry,
		clients: make(map[string]*client),
	}
	go l.sweep()
	return l
}

// Allow reports whether the client identified by key is within its budget.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

func (l *Limiter) sweep() {
	for {
		time.Sleep(time.Minute)

		l.mu.Lock()
		for key, c := range l.clients {
			if time.Since(c.lastSeen) > l.expiry {
				delete(l.clients, key)
			}
		}
		l.mu.Unlock()
	}
}

func Every(interval time.Duration) float64 {
	return float64(rate.Every(interval))
}
