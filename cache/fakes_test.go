package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type fakeArchive struct {
	key      string
	synced   chan struct{}
	closeErr error
	// closeGate, when set, blocks Close until it is closed.
	closeGate chan struct{}
	closed    atomic.Int32
}

func newFakeArchive(key string, synced bool) *fakeArchive {
	a := &fakeArchive{key: key, synced: make(chan struct{})}
	if synced {
		close(a.synced)
	}
	return a
}

func (a *fakeArchive) Key() string             { return a.key }
func (a *fakeArchive) Synced() <-chan struct{} { return a.synced }

func (a *fakeArchive) Close() error {
	if a.closeGate != nil {
		<-a.closeGate
	}
	a.closed.Add(1)
	return a.closeErr
}

// fakeManager tracks archives by address; the address is the key.
type fakeManager struct {
	mu       sync.Mutex
	archives map[string]*fakeArchive
	// prepared archives are handed out by Resolve instead of fresh synced ones.
	prepared map[string]*fakeArchive
	failures map[string]error
	block    chan struct{}
	resolves atomic.Int32
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		archives: make(map[string]*fakeArchive),
		prepared: make(map[string]*fakeArchive),
		failures: make(map[string]error),
	}
}

func (m *fakeManager) prepare(a *fakeArchive) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepared[a.key] = a
}

func (m *fakeManager) Resolve(ctx context.Context, address string) (Archive, error) {
	m.resolves.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[address]; err != nil {
		return nil, err
	}
	if a, ok := m.archives[address]; ok {
		return a, nil
	}
	a, ok := m.prepared[address]
	if !ok {
		a = newFakeArchive(address, true)
	}
	m.archives[address] = a
	return a, nil
}

func (m *fakeManager) Lookup(address string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.archives[address]
	return address, ok
}

func (m *fakeManager) Detach(key string) (Archive, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.archives[key]
	if !ok {
		return nil, false
	}
	delete(m.archives, key)
	return a, true
}

func (m *fakeManager) TrackedKeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.archives)
}

func (m *fakeManager) has(key string) bool {
	_, ok := m.Lookup(key)
	return ok
}

type recordedEvent struct {
	eventType string
	event     Event
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Publish(ctx context.Context, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{eventType: eventType, event: payload.(Event)})
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.eventType
	}
	return types
}

var errClose = errors.New("close failed")
