package download

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiters hands out one rate.Limiter per target host so a page with
// many assets on one CDN does not hammer it. Safe for concurrent use.
type hostLimiters struct {
	mu         sync.Mutex
	store      map[string]*hostEntry
	rps        rate.Limit
	burst      int
	maxEntries int
}

type hostEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func newHostLimiters(rps float64, burst, maxEntries int) *hostLimiters {
	if burst < 1 {
		burst = 1
	}
	if maxEntries < 1 {
		maxEntries = 64
	}
	return &hostLimiters{
		store:      make(map[string]*hostEntry),
		rps:        rate.Limit(rps),
		burst:      burst,
		maxEntries: maxEntries,
	}
}

// get returns the limiter for host, creating it on first use. When the
// registry is full the least recently used entry is evicted.
func (h *hostLimiters) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.store[host]; ok {
		e.lastUsed = time.Now()
		return e.limiter
	}

	if len(h.store) >= h.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range h.store {
			if oldestKey == "" || e.lastUsed.Before(oldest) {
				oldestKey = k
				oldest = e.lastUsed
			}
		}
		delete(h.store, oldestKey)
	}

	e := &hostEntry{
		limiter:  rate.NewLimiter(h.rps, h.burst),
		lastUsed: time.Now(),
	}
	h.store[host] = e
	return e.limiter
}
