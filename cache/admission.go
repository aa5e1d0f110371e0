// cache/admission.go

package cache

import (
	"sync"

	"go.uber.org/zap"

	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// admit decides whether address may be resolved. Tracked archives bypass the
// capacity check and get their access time refreshed. A new address reserves
// one slot, shared by concurrent accesses to the same address, until the
// returned release is called.
func (c *Cache) admit(address string) (release func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, tracked := c.manager.Lookup(address); tracked {
		if _, seen := c.tracker.LastAccess(key); seen {
			c.tracker.Touch(key, c.clock.Now())
		}
		return func() {}, nil
	}

	if c.pending[address] == 0 {
		tracked := c.manager.TrackedKeyCount()
		if tracked+c.reserved >= c.conf.Max {
			logger.Warn("Cache is full",
				zap.String("address", address),
				zap.Int("tracked", tracked),
				zap.Int("reserved", c.reserved),
				zap.Int("max", c.conf.Max))
			return nil, gwerrors.ErrCacheFull
		}
		c.reserved++
	}
	c.pending[address]++

	var once sync.Once
	return func() { once.Do(func() { c.unreserve(address) }) }, nil
}

// unreserve drops one pending access; the last one frees the slot.
func (c *Cache) unreserve(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[address]--
	if c.pending[address] > 0 {
		return
	}
	delete(c.pending, address)
	c.reserved--
}

// Reserved is the number of slots held by in-flight first accesses.
func (c *Cache) Reserved() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserved
}
