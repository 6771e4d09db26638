package ui

import (
	"sync"
	"time"
)

const (
	dedupWindow  = 5 * time.Minute
	dedupMaxSize = 10000
)

// deduplicator remembers recently handled signal IDs. A browser that lost
// its socket resends queued signals after reconnecting, and some of them may
// already have been handled.
type deduplicator struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func newDeduplicator() *deduplicator {
	return &deduplicator{seen: make(map[string]time.Time), now: time.Now}
}

// isDuplicate reports whether msgID was seen within the window and records
// it otherwise. Empty IDs are never duplicates.
func (d *deduplicator) isDuplicate(msgID string) bool {
	if msgID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if ts, ok := d.seen[msgID]; ok && now.Sub(ts) < dedupWindow {
		return true
	}
	d.seen[msgID] = now

	// Cleanup old entries if map gets too big
	if len(d.seen) > dedupMaxSize {
		for k, v := range d.seen {
			if now.Sub(v) > 2*dedupWindow {
				delete(d.seen, k)
			}
		}
	}
	return false
}
