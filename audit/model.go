// audit/model.go
package audit

import (
	"time"

	"github.com/dev-mohitbeniwal/archive-gateway/cache"
)

// ArchiveEvent is one archive lifecycle event as stored in the audit index.
type ArchiveEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Address   string    `json:"address,omitempty"`
	Key       string    `json:"key,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// FromCacheEvent converts an event published by the cache.
func FromCacheEvent(ev cache.Event) ArchiveEvent {
	return ArchiveEvent{
		Timestamp: ev.At,
		Type:      ev.Type,
		Address:   ev.Address,
		Key:       ev.Key,
		Outcome:   ev.Outcome,
		Error:     ev.Err,
	}
}
