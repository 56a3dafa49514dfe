package notify

import (
	"sync"
	"time"
)

// Dedup suppresses repeat alerts for the same opportunity within a TTL. It
// is safe for concurrent use.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time // key -> last alerted
	ttl  time.Duration
	now  func() time.Time
}

// NewDedup creates a Dedup that treats a key seen within ttl as a repeat.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// IsDuplicate reports whether key was alerted within the TTL. A fresh or
// expired key is recorded and reported as new. Expired entries are swept on
// every call, so the map stays bounded by the alert rate.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}

// Len returns the number of live entries.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
