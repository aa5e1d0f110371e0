// cache/cache.go

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// DefaultPopulateTimeout bounds how long an access waits for archive metadata.
const DefaultPopulateTimeout = 3 * time.Second

// Archive is a live archive handle. The Manager owns it; the cache only
// keeps bookkeeping about its key.
type Archive interface {
	// Key is the canonical hex key of the archive.
	Key() string
	// Synced is closed once enough metadata has synced from peers to serve the archive.
	Synced() <-chan struct{}
	Close() error
}

// Manager resolves addresses to archives and owns the set of tracked keys.
type Manager interface {
	// Resolve returns the archive for address, tracking it if it was not tracked yet.
	Resolve(ctx context.Context, address string) (Archive, error)
	// Lookup reports the canonical key for address if that archive is tracked.
	Lookup(address string) (key string, tracked bool)
	// Detach stops tracking key and hands the archive back for release.
	Detach(key string) (Archive, bool)
	TrackedKeyCount() int
}

// Publisher receives archive lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{})
}

// Accessor is the part of Cache the HTTP layer needs.
type Accessor interface {
	Access(ctx context.Context, address string) (Result, error)
}

type Config struct {
	// Max is the ceiling on archives tracked at once.
	Max int
	// TTL and Period enable idle eviction; both must be positive.
	TTL    time.Duration
	Period time.Duration
	// PopulateTimeout defaults to DefaultPopulateTimeout.
	PopulateTimeout time.Duration
}

// Result of a successful access.
type Result struct {
	Archive Archive
	Outcome Outcome
}

// Cache bounds how many archives are open at once and evicts idle ones.
type Cache struct {
	mu       sync.Mutex
	manager  Manager
	tracker  *Tracker
	clock    clock.Clock
	conf     Config
	reserved int
	// pending counts in-flight accesses per address holding a reservation.
	pending map[string]int

	sweeper  *Sweeper
	events   Publisher
	recorder Recorder
}

var _ Accessor = (*Cache)(nil)

type Option func(*Cache)

func WithClock(c clock.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

func WithPublisher(p Publisher) Option {
	return func(cache *Cache) { cache.events = p }
}

func WithRecorder(r Recorder) Option {
	return func(cache *Cache) { cache.recorder = r }
}

func New(manager Manager, conf Config, opts ...Option) *Cache {
	if conf.PopulateTimeout <= 0 {
		conf.PopulateTimeout = DefaultPopulateTimeout
	}
	c := &Cache{
		manager:  manager,
		tracker:  NewTracker(),
		clock:    clock.New(),
		conf:     conf,
		pending:  make(map[string]int),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sweeper = newSweeper(c, conf.TTL, conf.Period)
	return c
}

// Access admits address, resolves it through the manager and waits for it to
// populate. It fails only on admission or resolution; a slow archive is
// returned with ReadyTimedOut.
func (c *Cache) Access(ctx context.Context, address string) (Result, error) {
	release, err := c.admit(address)
	if err != nil {
		c.recorder.Admission(AdmissionRejected)
		c.publish(ctx, EventRejected, Event{Address: address, Err: err.Error()})
		return Result{}, err
	}
	archive, err := c.manager.Resolve(ctx, address)
	release()
	if err != nil {
		c.recorder.Admission(AdmissionFailed)
		return Result{}, fmt.Errorf("failed to resolve %q: %w", address, err)
	}
	c.recorder.Admission(AdmissionAccepted)
	c.recorder.Tracked(c.manager.TrackedKeyCount())

	outcome := c.awaitReady(archive, c.conf.PopulateTimeout)
	c.recorder.Population(outcome)
	ev := Event{Address: address, Key: archive.Key(), Outcome: outcome.String()}
	if outcome == ReadyTimedOut {
		c.publish(ctx, EventTimedOut, ev)
	}
	c.publish(ctx, EventAdmitted, ev)
	return Result{Archive: archive, Outcome: outcome}, nil
}

// Remove explicitly evicts the archive for address, keeping the access table
// and the manager consistent.
func (c *Cache) Remove(ctx context.Context, address string) error {
	c.mu.Lock()
	key, tracked := c.manager.Lookup(address)
	if !tracked {
		c.mu.Unlock()
		return gwerrors.ErrArchiveNotFound
	}
	c.tracker.Forget(key)
	archive, ok := c.manager.Detach(key)
	c.mu.Unlock()
	if !ok {
		return gwerrors.ErrArchiveNotFound
	}
	return c.release(ctx, archive)
}

// LastAccess reports when key was last accessed.
func (c *Cache) LastAccess(key string) (time.Time, bool) {
	return c.tracker.LastAccess(key)
}

// Len is the number of keys in the access table.
func (c *Cache) Len() int {
	return c.tracker.Len()
}

// Start runs the expiry sweeper if TTL and Period are configured.
func (c *Cache) Start() {
	c.sweeper.Start()
}

// Stop halts the sweeper and waits for its in-flight releases.
func (c *Cache) Stop() {
	c.sweeper.Stop()
}

// Sweeper exposes the expiry sweeper, mostly for tests and diagnostics.
func (c *Cache) Sweeper() *Sweeper {
	return c.sweeper
}

// touch records an access for key if the manager still tracks it.
func (c *Cache) touch(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, tracked := c.manager.Lookup(key); !tracked {
		logger.Debug("Skip access record of untracked archive", zap.String("key", key))
		return
	}
	c.tracker.Touch(key, c.clock.Now())
}

// expire forgets and detaches every archive idle longer than ttl.
func (c *Cache) expire(ttl time.Duration) []Archive {
	c.mu.Lock()
	defer c.mu.Unlock()
	var detached []Archive
	for _, key := range c.tracker.Expired(c.clock.Now(), ttl) {
		logger.Info("Deleting expired archive", zap.String("key", key))
		c.tracker.Forget(key)
		archive, ok := c.manager.Detach(key)
		if !ok {
			logger.Warn("Expired archive was not tracked by manager", zap.String("key", key))
			continue
		}
		detached = append(detached, archive)
	}
	return detached
}

func (c *Cache) release(ctx context.Context, archive Archive) error {
	key := archive.Key()
	err := archive.Close()
	c.recorder.Eviction(err)
	c.recorder.Tracked(c.manager.TrackedKeyCount())
	if err != nil {
		logger.Error("Failed to release archive", zap.String("key", key), zap.Error(err))
		c.publish(ctx, EventEvictFailed, Event{Key: key, Err: err.Error()})
		return fmt.Errorf("failed to release archive %s: %w", key, err)
	}
	c.publish(ctx, EventEvicted, Event{Key: key})
	return nil
}

func (c *Cache) publish(ctx context.Context, eventType string, ev Event) {
	if c.events == nil {
		return
	}
	ev.Type = eventType
	ev.At = c.clock.Now()
	// Handlers outlive the request that triggered the event.
	c.events.Publish(context.WithoutCancel(ctx), eventType, ev)
}
