package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
)

func newTestCache(m *fakeManager, conf Config, opts ...Option) *Cache {
	if conf.PopulateTimeout == 0 {
		conf.PopulateTimeout = 200 * time.Millisecond
	}
	return New(m, conf, opts...)
}

func TestAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("AdmitsUpToMax", func(t *testing.T) {
		m := newFakeManager()
		c := newTestCache(m, Config{Max: 2})

		for _, address := range []string{"a", "b"} {
			res, err := c.Access(ctx, address)
			require.NoError(t, err)
			assert.Equal(t, address, res.Archive.Key())
			assert.Equal(t, ReadySynced, res.Outcome)
		}
		assert.Equal(t, 2, m.TrackedKeyCount())
		assert.Equal(t, 2, c.Len())
		assert.Equal(t, 0, c.Reserved())
	})

	t.Run("RejectsWhenFullWithoutResolving", func(t *testing.T) {
		m := newFakeManager()
		c := newTestCache(m, Config{Max: 1})

		_, err := c.Access(ctx, "a")
		require.NoError(t, err)

		start := time.Now()
		_, err = c.Access(ctx, "b")
		assert.ErrorIs(t, err, gwerrors.ErrCacheFull)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
		assert.EqualValues(t, 1, m.resolves.Load())
		assert.False(t, m.has("b"))
	})

	t.Run("MaxZeroRejectsEverything", func(t *testing.T) {
		m := newFakeManager()
		c := newTestCache(m, Config{Max: 0})

		_, err := c.Access(ctx, "a")
		assert.ErrorIs(t, err, gwerrors.ErrCacheFull)
		assert.EqualValues(t, 0, m.resolves.Load())
	})

	t.Run("TrackedAddressBypassesFullCache", func(t *testing.T) {
		m := newFakeManager()
		c := newTestCache(m, Config{Max: 1})

		_, err := c.Access(ctx, "a")
		require.NoError(t, err)
		res, err := c.Access(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", res.Archive.Key())
		assert.Equal(t, 1, m.TrackedKeyCount())
	})

	t.Run("ResolveFailureFreesSlot", func(t *testing.T) {
		m := newFakeManager()
		m.failures["missing"] = gwerrors.ErrArchiveNotFound
		c := newTestCache(m, Config{Max: 1})

		_, err := c.Access(ctx, "missing")
		assert.ErrorIs(t, err, gwerrors.ErrArchiveNotFound)
		assert.Equal(t, 0, c.Reserved())
		assert.Equal(t, 0, c.Len())

		_, err = c.Access(ctx, "a")
		assert.NoError(t, err)
	})

	t.Run("InFlightAccessHoldsSlot", func(t *testing.T) {
		m := newFakeManager()
		m.block = make(chan struct{})
		c := newTestCache(m, Config{Max: 1})

		done := make(chan error, 1)
		go func() {
			_, err := c.Access(ctx, "a")
			done <- err
		}()
		require.Eventually(t, func() bool { return m.resolves.Load() == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, 1, c.Reserved())

		_, err := c.Access(ctx, "b")
		assert.ErrorIs(t, err, gwerrors.ErrCacheFull)

		close(m.block)
		require.NoError(t, <-done)
		assert.Equal(t, 0, c.Reserved())
		assert.Equal(t, 1, m.TrackedKeyCount())
	})

	t.Run("ConcurrentAccessesShareReservation", func(t *testing.T) {
		m := newFakeManager()
		m.block = make(chan struct{})
		c := newTestCache(m, Config{Max: 1})

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.Access(ctx, "a")
				errs <- err
			}()
		}
		require.Eventually(t, func() bool { return m.resolves.Load() == 2 }, time.Second, time.Millisecond)
		assert.Equal(t, 1, c.Reserved())

		close(m.block)
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, 0, c.Reserved())
		assert.Equal(t, 1, m.TrackedKeyCount())
	})

	t.Run("PublishesEvents", func(t *testing.T) {
		m := newFakeManager()
		events := &eventRecorder{}
		c := newTestCache(m, Config{Max: 1}, WithPublisher(events))

		_, err := c.Access(ctx, "a")
		require.NoError(t, err)
		_, err = c.Access(ctx, "b")
		require.Error(t, err)

		assert.Equal(t, []string{EventAdmitted, EventRejected}, events.types())
		assert.Equal(t, "a", events.events[0].event.Key)
		assert.Equal(t, "synced", events.events[0].event.Outcome)
		assert.Equal(t, "b", events.events[1].event.Address)
	})
}

func TestPopulationGate(t *testing.T) {
	ctx := context.Background()

	t.Run("TimesOutWithHandle", func(t *testing.T) {
		m := newFakeManager()
		m.prepare(newFakeArchive("slow", false))
		events := &eventRecorder{}
		c := newTestCache(m, Config{Max: 1, PopulateTimeout: 50 * time.Millisecond}, WithPublisher(events))

		start := time.Now()
		res, err := c.Access(ctx, "slow")
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, ReadyTimedOut, res.Outcome)
		assert.Equal(t, "slow", res.Archive.Key())
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
		assert.Less(t, elapsed, time.Second)
		_, touched := c.LastAccess("slow")
		assert.True(t, touched)
		assert.Equal(t, []string{EventTimedOut, EventAdmitted}, events.types())
	})

	t.Run("SyncBeforeTimeoutWins", func(t *testing.T) {
		m := newFakeManager()
		a := newFakeArchive("late", false)
		m.prepare(a)
		c := newTestCache(m, Config{Max: 1, PopulateTimeout: 2 * time.Second})

		time.AfterFunc(20*time.Millisecond, func() { close(a.synced) })
		start := time.Now()
		res, err := c.Access(ctx, "late")

		require.NoError(t, err)
		assert.Equal(t, ReadySynced, res.Outcome)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("TouchesWithClockTime", func(t *testing.T) {
		mock := clock.NewMock()
		m := newFakeManager()
		c := newTestCache(m, Config{Max: 1}, WithClock(mock))

		_, err := c.Access(ctx, "a")
		require.NoError(t, err)
		at, ok := c.LastAccess("a")
		require.True(t, ok)
		assert.Equal(t, mock.Now(), at)
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	m := newFakeManager()
	events := &eventRecorder{}
	c := newTestCache(m, Config{Max: 1}, WithPublisher(events))

	res, err := c.Access(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Remove(ctx, "a"))
	assert.False(t, m.has("a"))
	assert.Equal(t, 0, c.Len())
	assert.EqualValues(t, 1, res.Archive.(*fakeArchive).closed.Load())
	assert.Contains(t, events.types(), EventEvicted)

	assert.ErrorIs(t, c.Remove(ctx, "a"), gwerrors.ErrArchiveNotFound)

	// The freed slot can be used again.
	_, err = c.Access(ctx, "b")
	assert.NoError(t, err)
}

func TestRemoveReportsCloseFailure(t *testing.T) {
	ctx := context.Background()
	m := newFakeManager()
	a := newFakeArchive("a", true)
	a.closeErr = errClose
	m.prepare(a)
	c := newTestCache(m, Config{Max: 1})

	_, err := c.Access(ctx, "a")
	require.NoError(t, err)

	err = c.Remove(ctx, "a")
	assert.True(t, errors.Is(err, errClose))
	assert.False(t, m.has("a"))
}
