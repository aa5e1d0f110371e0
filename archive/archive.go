// archive/archive.go

package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

const maxSyncRetry = 30 * time.Second

// Archive is a lazily replicated archive. Metadata is synced from peers in
// the background; file content is fetched on first read and kept in fs.
type Archive struct {
	key   string
	fs    afero.Fs
	peers *peerClient

	mu       sync.RWMutex
	manifest *Manifest
	index    map[string]Entry
	closed   bool

	synced   chan struct{}
	syncOnce sync.Once
	fetches  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newArchive(key string, fs afero.Fs, peers *peerClient) *Archive {
	ctx, cancel := context.WithCancel(context.Background())
	return &Archive{
		key:    key,
		fs:     fs,
		peers:  peers,
		index:  make(map[string]Entry),
		synced: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (a *Archive) Key() string { return a.key }

// Synced is closed after the first manifest was received.
func (a *Archive) Synced() <-chan struct{} { return a.synced }

func (a *Archive) IsSynced() bool {
	select {
	case <-a.synced:
		return true
	default:
		return false
	}
}

// Version of the current manifest, 0 before the first sync.
func (a *Archive) Version() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.manifest == nil {
		return 0
	}
	return a.manifest.Version
}

// startSync keeps the manifest up to date until the archive is closed.
// Failures are retried with doubling delay starting at retry; after a
// successful sync a new version is polled every refresh, never if refresh is 0.
func (a *Archive) startSync(retry, refresh time.Duration) {
	if retry <= 0 {
		retry = time.Second
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		delay := retry
		for {
			var wait time.Duration
			m, err := a.peers.Manifest(a.ctx, a.key)
			if err != nil {
				if a.ctx.Err() != nil {
					return
				}
				logger.Debug("Archive metadata sync failed",
					zap.String("key", a.key),
					zap.Duration("retry", delay),
					zap.Error(err))
				wait = delay
				if delay *= 2; delay > maxSyncRetry {
					delay = maxSyncRetry
				}
			} else {
				a.apply(m)
				if refresh <= 0 {
					return
				}
				wait, delay = refresh, retry
			}
			select {
			case <-a.ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}()
}

// apply installs m unless it is older than the current manifest. Cached
// files whose entry changed are dropped so they are fetched again.
func (a *Archive) apply(m *Manifest) {
	a.mu.Lock()
	if a.closed || (a.manifest != nil && m.Version < a.manifest.Version) {
		a.mu.Unlock()
		return
	}
	index := buildIndex(m.Entries)
	var stale []string
	for p, old := range a.index {
		if cur, ok := index[p]; !ok || cur.Size != old.Size || !cur.ModTime.Equal(old.ModTime) {
			if !old.Dir {
				stale = append(stale, p)
			}
		}
	}
	prev := int64(0)
	if a.manifest != nil {
		prev = a.manifest.Version
	}
	a.manifest = m
	a.index = index
	a.mu.Unlock()

	for _, p := range stale {
		if err := a.fs.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to drop stale archive file", zap.String("key", a.key), zap.String("path", p), zap.Error(err))
		}
	}
	if prev != m.Version {
		logger.Debug("Archive metadata updated",
			zap.String("key", a.key),
			zap.Int64("version", m.Version),
			zap.Int("entries", len(m.Entries)))
	}
	a.syncOnce.Do(func() { close(a.synced) })
}

// buildIndex maps every entry path, plus implied parent directories, to its entry.
func buildIndex(entries []Entry) map[string]Entry {
	index := map[string]Entry{"/": {Path: "/", Dir: true}}
	for _, e := range entries {
		index[e.Path] = e
		for dir := path.Dir(e.Path); ; dir = path.Dir(dir) {
			if _, ok := index[dir]; !ok {
				index[dir] = Entry{Path: dir, Dir: true, ModTime: e.ModTime}
			}
			if dir == "/" {
				break
			}
		}
	}
	return index
}

// Stat describes name, or returns ErrFileNotFound.
func (a *Archive) Stat(name string) (Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return Entry{}, gwerrors.ErrArchiveClosed
	}
	e, ok := a.index[cleanPath(name)]
	if !ok || a.manifest == nil {
		return Entry{}, fmt.Errorf("%w: %s", gwerrors.ErrFileNotFound, name)
	}
	return e, nil
}

// ReadDir lists the entries directly under dir, sorted by name.
func (a *Archive) ReadDir(dir string) ([]Entry, error) {
	e, err := a.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !e.Dir {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	var children []Entry
	for p, child := range a.index {
		if p != "/" && path.Dir(p) == e.Path {
			children = append(children, child)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })
	return children, nil
}

// Open returns the content of file name, fetching it from peers on first read.
func (a *Archive) Open(ctx context.Context, name string) (afero.File, error) {
	e, err := a.Stat(name)
	if err != nil {
		return nil, err
	}
	if e.Dir {
		return nil, fmt.Errorf("%s is a directory", name)
	}
	if fi, err := a.fs.Stat(e.Path); err == nil && fi.Size() == e.Size {
		return a.fs.Open(e.Path)
	}
	// The fetch is shared by every reader of the file, so it runs on the
	// archive context, bounded by the peer client timeout. A reader that goes
	// away stops waiting without cancelling it for the others.
	fetched := a.fetches.DoChan(e.Path, func() (interface{}, error) {
		return nil, a.fetch(a.ctx, e)
	})
	select {
	case res := <-fetched:
		if res.Err != nil {
			return nil, res.Err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return a.fs.Open(e.Path)
}

func (a *Archive) fetch(ctx context.Context, e Entry) error {
	body, err := a.peers.File(ctx, a.key, e.Path)
	if err != nil {
		return fmt.Errorf("failed to fetch %s from peers: %w", e.Path, err)
	}
	defer body.Close()

	if err := a.fs.MkdirAll(path.Dir(e.Path), 0o755); err != nil {
		return err
	}
	tmp := e.Path + ".partial"
	if err := afero.WriteReader(a.fs, tmp, io.LimitReader(body, e.Size)); err != nil {
		a.fs.Remove(tmp)
		return fmt.Errorf("failed to store %s: %w", e.Path, err)
	}
	if fi, err := a.fs.Stat(tmp); err != nil || fi.Size() != e.Size {
		a.fs.Remove(tmp)
		return fmt.Errorf("short read of %s from peers", e.Path)
	}
	logger.Debug("Fetched archive file", zap.String("key", a.key), zap.String("path", e.Path), zap.Int64("size", e.Size))
	return a.fs.Rename(tmp, e.Path)
}

// Close stops syncing. Repeated calls are no-ops.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	return nil
}
