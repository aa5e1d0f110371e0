// cache/sweeper.go

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// Sweeper periodically evicts archives that were not accessed for longer
// than ttl. It is dormant unless both ttl and period are positive.
type Sweeper struct {
	cache  *Cache
	ttl    time.Duration
	period time.Duration

	ticker   *clock.Ticker
	stop     chan struct{}
	done     chan struct{}
	releases sync.WaitGroup

	// mu orders releases.Add in sweep before releases.Wait in Stop.
	mu      sync.Mutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
}

func newSweeper(c *Cache, ttl, period time.Duration) *Sweeper {
	return &Sweeper{
		cache:  c,
		ttl:    ttl,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *Sweeper) Enabled() bool {
	return s.ttl > 0 && s.period > 0
}

func (s *Sweeper) Start() {
	if !s.Enabled() {
		logger.Info("Archive expiry disabled, archives live until shutdown")
		return
	}
	s.startOnce.Do(func() {
		// Created here, not in loop, so no tick is lost to goroutine scheduling.
		s.ticker = s.cache.clock.Ticker(s.period)
		logger.Info("Starting archive expiry sweeper",
			zap.Duration("ttl", s.ttl),
			zap.Duration("period", s.period))
		go s.loop()
	})
}

// Stop stops ticking and waits for releases started by previous ticks.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		// Waits out a concurrent Start and disables later ones.
		s.startOnce.Do(func() {})
		close(s.stop)
		if s.ticker != nil {
			<-s.done
		}
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.releases.Wait()
		logger.Info("Archive expiry sweeper stopped")
	})
}

func (s *Sweeper) loop() {
	defer close(s.done)
	defer s.ticker.Stop()
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// sweep evicts expired archives. Their access records are dropped
// synchronously; the archives are released concurrently in the background,
// so a slow release never delays the next tick. It returns how many
// archives were evicted, and does nothing once the sweeper is stopped.
func (s *Sweeper) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}
	logger.Debug("Checking for expired archives")
	expired := s.cache.expire(s.ttl)
	if len(expired) == 0 {
		return 0
	}
	s.releases.Add(1)
	go func() {
		defer s.releases.Done()
		var g errgroup.Group
		for _, archive := range expired {
			archive := archive
			g.Go(func() error {
				return s.cache.release(context.Background(), archive)
			})
		}
		// Each failure is logged by release; the rest of the sweep still completes.
		if err := g.Wait(); err != nil {
			logger.Warn("Archive expiry sweep finished with errors", zap.Error(err))
		}
	}()
	return len(expired)
}

// Wait blocks until releases started so far are done.
func (s *Sweeper) Wait() {
	s.releases.Wait()
}
