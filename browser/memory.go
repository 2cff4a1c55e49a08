package browser

import (
	"sync"
	"time"
)

// popupEntry stores which dismissal strategies matched on a domain.
type popupEntry struct {
	strategies []string
	expiresAt  time.Time
}

// popupMemory remembers, per domain, which popup strategies actually
// matched, so later pages from the same site try those first instead of
// walking the whole heuristic list. Entries expire after the TTL.
type popupMemory struct {
	store sync.Map // domain (string) -> *popupEntry
	ttl   time.Duration
	done  chan struct{}
}

func newPopupMemory(ttl time.Duration) *popupMemory {
	m := &popupMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the remembered strategy names for a domain, or nil.
func (m *popupMemory) Get(domain string) []string {
	val, ok := m.store.Load(domain)
	if !ok {
		return nil
	}
	entry := val.(*popupEntry)
	if time.Now().After(entry.expiresAt) {
		m.store.Delete(domain)
		return nil
	}
	return entry.strategies
}

// Set records the strategies that matched for a domain.
func (m *popupMemory) Set(domain string, strategies []string) {
	if len(strategies) == 0 {
		return
	}
	m.store.Store(domain, &popupEntry{
		strategies: strategies,
		expiresAt:  time.Now().Add(m.ttl),
	})
}

// Stop terminates the background cleanup goroutine.
func (m *popupMemory) Stop() {
	close(m.done)
}

func (m *popupMemory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			m.store.Range(func(key, value any) bool {
				if now.After(value.(*popupEntry).expiresAt) {
					m.store.Delete(key)
				}
				return true
			})
		}
	}
}
