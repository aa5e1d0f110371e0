// archive/manager.go

package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/cache"
	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

type Config struct {
	// Dir keeps archive content on disk under Dir/<key>. Empty keeps it in memory.
	Dir         string
	Peers       []string
	SyncRetry   time.Duration
	Refresh     time.Duration
	HTTPTimeout time.Duration
}

// KeyResolver maps addresses to canonical keys.
type KeyResolver interface {
	Resolve(ctx context.Context, address string) (string, error)
}

// Manager tracks the archives the gateway holds open.
type Manager struct {
	conf     Config
	resolver KeyResolver
	peers    *peerClient
	baseFs   afero.Fs

	mu       sync.RWMutex
	archives map[string]*Archive
	// aliases maps names resolved through Resolve to the key they are tracked
	// under, for as long as that key is tracked.
	aliases map[string]string
	closed  bool
}

var _ cache.Manager = (*Manager)(nil)

type ManagerOption func(*Manager)

// WithFs stores archives on fs instead of the default chosen from Config.Dir.
func WithFs(fs afero.Fs) ManagerOption {
	return func(m *Manager) { m.baseFs = fs }
}

func NewManager(conf Config, resolver KeyResolver, opts ...ManagerOption) *Manager {
	if conf.HTTPTimeout <= 0 {
		conf.HTTPTimeout = 10 * time.Second
	}
	m := &Manager{
		conf:     conf,
		resolver: resolver,
		peers:    newPeerClient(conf.Peers, conf.HTTPTimeout),
		archives: make(map[string]*Archive),
		aliases:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.baseFs == nil && conf.Dir != "" {
		m.baseFs = afero.NewBasePathFs(afero.NewOsFs(), conf.Dir)
	}
	return m
}

// Resolve returns the tracked archive for address, opening it on first use.
func (m *Manager) Resolve(ctx context.Context, address string) (cache.Archive, error) {
	key, err := m.resolver.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, gwerrors.ErrManagerClosed
	}
	a, ok := m.archives[key]
	if !ok {
		if a, err = m.open(key); err != nil {
			return nil, err
		}
		m.archives[key] = a
	}
	if _, isKey := ParseKey(address); !isKey {
		m.aliases[normalizeName(address)] = key
	}
	if ok {
		return a, nil
	}
	logger.Info("Archive added", zap.String("address", address), zap.String("key", key), zap.Int("tracked", len(m.archives)))
	return a, nil
}

func (m *Manager) open(key string) (*Archive, error) {
	fs := afero.NewMemMapFs()
	if m.baseFs != nil {
		if err := m.baseFs.MkdirAll(key, 0o755); err != nil {
			return nil, err
		}
		fs = afero.NewBasePathFs(m.baseFs, key)
	}
	a := newArchive(key, fs, m.peers)
	a.startSync(m.conf.SyncRetry, m.conf.Refresh)
	return a, nil
}

// Lookup reports the key of address if its archive is tracked. Names match
// while the archive they were resolved to through Resolve is tracked.
func (m *Manager) Lookup(address string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := ParseKey(address)
	if !ok {
		if key, ok = m.aliases[normalizeName(address)]; !ok {
			return "", false
		}
	}
	_, tracked := m.archives[key]
	return key, tracked
}

// Detach stops tracking key; the caller releases the returned archive.
func (m *Manager) Detach(key string) (cache.Archive, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.archives[key]
	if !ok {
		return nil, false
	}
	delete(m.archives, key)
	for name, k := range m.aliases {
		if k == key {
			delete(m.aliases, name)
		}
	}
	logger.Info("Archive removed", zap.String("key", key), zap.Int("tracked", len(m.archives)))
	return a, true
}

// Get returns the tracked archive for key.
func (m *Manager) Get(key string) (*Archive, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.archives[key]
	return a, ok
}

func (m *Manager) TrackedKeyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.archives)
}

func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.archives))
	for key := range m.archives {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// StoredKeys lists archives persisted on disk by earlier runs.
func (m *Manager) StoredKeys() ([]string, error) {
	if m.baseFs == nil {
		return nil, nil
	}
	entries, err := afero.ReadDir(m.baseFs, "/")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if key, ok := ParseKey(filepath.Base(e.Name())); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close releases every tracked archive. The manager cannot be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	archives := m.archives
	m.archives = make(map[string]*Archive)
	m.aliases = make(map[string]string)
	m.mu.Unlock()

	var errs error
	for key, a := range archives {
		if err := a.Close(); err != nil {
			errs = multierr.Append(errs, err)
			logger.Error("Failed to close archive", zap.String("key", key), zap.Error(err))
		}
	}
	logger.Info("Archive manager closed", zap.Int("released", len(archives)))
	return errs
}
