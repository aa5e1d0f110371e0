// audit/service.go
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/cache"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
	"github.com/dev-mohitbeniwal/archive-gateway/util"
)

type Service interface {
	LogEvent(ctx context.Context, event ArchiveEvent) error
	QueryEvents(ctx context.Context, from, to time.Time, key string) ([]ArchiveEvent, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) LogEvent(ctx context.Context, event ArchiveEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return s.repo.LogEvent(ctx, event)
}

func (s *service) QueryEvents(ctx context.Context, from, to time.Time, key string) ([]ArchiveEvent, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid time range: %s is before %s", to, from)
	}
	return s.repo.QueryEvents(ctx, from, to, key)
}

// AuditedEvents are the cache events written to the audit index.
var AuditedEvents = []string{
	cache.EventAdmitted,
	cache.EventRejected,
	cache.EventTimedOut,
	cache.EventEvicted,
	cache.EventEvictFailed,
}

// Subscribe records every audited cache event published on bus.
func Subscribe(bus *util.EventBus, svc Service) {
	handler := func(ctx context.Context, e util.Event) error {
		ev, ok := e.Payload.(cache.Event)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Type)
		}
		if err := svc.LogEvent(ctx, FromCacheEvent(ev)); err != nil {
			return fmt.Errorf("failed to audit %s: %w", e.Type, err)
		}
		logger.Debug("Archive event audited", zap.String("type", e.Type), zap.String("key", ev.Key))
		return nil
	}
	for _, eventType := range AuditedEvents {
		bus.Subscribe(eventType, handler)
	}
}
