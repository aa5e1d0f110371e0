// cache/tracker.go

package cache

import (
	"sort"
	"sync"
	"time"
)

// Tracker records the last access time of every cached archive key.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

// Touch creates or overwrites the access time of key.
func (t *Tracker) Touch(key string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key] = at
}

func (t *Tracker) LastAccess(key string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.last[key]
	return at, ok
}

func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, key)
}

// Expired returns, oldest first, the keys idle for strictly longer than ttl.
func (t *Tracker) Expired(now time.Time, ttl time.Duration) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var keys []string
	for key, at := range t.last {
		if now.Sub(at) > ttl {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return t.last[keys[i]].Before(t.last[keys[j]])
	})
	return keys
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.last)
}

func (t *Tracker) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.last))
	for key := range t.last {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
