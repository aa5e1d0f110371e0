// cache/gate.go

package cache

import (
	"time"

	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// Outcome tells how an access left the population gate.
type Outcome int

const (
	// ReadySynced means the archive metadata synced before the timeout.
	ReadySynced Outcome = iota
	// ReadyTimedOut means the access proceeds on an archive that may not have content yet.
	ReadyTimedOut
)

func (o Outcome) String() string {
	switch o {
	case ReadySynced:
		return "synced"
	case ReadyTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// awaitReady waits until the archive synced or timeout passed, whichever comes
// first, records the access and reports which one it was. It never fails, so
// an address that never resolves cannot hold a request forever.
func (c *Cache) awaitReady(archive Archive, timeout time.Duration) Outcome {
	timer := c.clock.Timer(timeout)
	defer timer.Stop()

	var outcome Outcome
	select {
	case <-archive.Synced():
		outcome = ReadySynced
	case <-timer.C:
		outcome = ReadyTimedOut
		logger.Debug("Archive not populated in time, proceeding anyway",
			zap.String("key", archive.Key()),
			zap.Duration("timeout", timeout))
	}
	c.touch(archive.Key())
	return outcome
}
