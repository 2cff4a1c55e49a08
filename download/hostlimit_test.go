package download

import (
	"testing"
	"time"
)

func TestHostLimiters_SameHostSameLimiter(t *testing.T) {
	h := newHostLimiters(8, 4, 16)
	a := h.get("cdn.example.com")
	b := h.get("cdn.example.com")
	if a != b {
		t.Error("repeated lookups for one host must share a limiter")
	}
	if a == h.get("other.example.com") {
		t.Error("different hosts must not share a limiter")
	}
}

func TestHostLimiters_EvictsOldest(t *testing.T) {
	h := newHostLimiters(8, 4, 2)
	first := h.get("a.example.com")
	h.get("b.example.com")
	h.store["a.example.com"].lastUsed = h.store["a.example.com"].lastUsed.Add(-time.Minute)
	h.get("c.example.com") // registry full, a.example.com is oldest

	if len(h.store) != 2 {
		t.Fatalf("store size = %d, want 2", len(h.store))
	}
	if _, ok := h.store["a.example.com"]; ok {
		t.Error("oldest entry should have been evicted")
	}
	if h.get("a.example.com") == first {
		t.Error("re-added host must get a fresh limiter")
	}
}

func TestHostLimiters_Defaults(t *testing.T) {
	h := newHostLimiters(1, 0, 0)
	if h.burst != 1 {
		t.Errorf("burst = %d, want clamped to 1", h.burst)
	}
	if h.maxEntries != 64 {
		t.Errorf("maxEntries = %d, want default 64", h.maxEntries)
	}
}
