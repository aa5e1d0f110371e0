// cache/events.go

package cache

import "time"

// Event types published by the cache.
const (
	EventAdmitted    = "archive.admitted"
	EventRejected    = "archive.rejected"
	EventTimedOut    = "archive.timed_out"
	EventEvicted     = "archive.evicted"
	EventEvictFailed = "archive.evict_failed"
)

// Event is the payload of every published cache event.
type Event struct {
	Type    string
	Address string
	Key     string
	Outcome string
	Err     string
	At      time.Time
}

// Admission results reported to the Recorder.
const (
	AdmissionAccepted = "accepted"
	AdmissionRejected = "rejected"
	AdmissionFailed   = "failed"
)

// Recorder collects cache metrics.
type Recorder interface {
	Admission(result string)
	Population(outcome Outcome)
	Eviction(err error)
	Tracked(n int)
}

type nopRecorder struct{}

func (nopRecorder) Admission(string)   {}
func (nopRecorder) Population(Outcome) {}
func (nopRecorder) Eviction(error)     {}
func (nopRecorder) Tracked(int)        {}
