// test/mock/audit.go
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dev-mohitbeniwal/archive-gateway/audit"
)

// MockAuditService is a mock implementation of audit.Service
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) LogEvent(ctx context.Context, event audit.ArchiveEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAuditService) QueryEvents(ctx context.Context, from, to time.Time, key string) ([]audit.ArchiveEvent, error) {
	args := m.Called(ctx, from, to, key)
	return args.Get(0).([]audit.ArchiveEvent), args.Error(1)
}

// MockAuditRepository is a mock implementation of audit.Repository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) LogEvent(ctx context.Context, event audit.ArchiveEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAuditRepository) QueryEvents(ctx context.Context, from, to time.Time, key string) ([]audit.ArchiveEvent, error) {
	args := m.Called(ctx, from, to, key)
	return args.Get(0).([]audit.ArchiveEvent), args.Error(1)
}
