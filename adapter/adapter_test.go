package adapter_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-mohitbeniwal/archive-gateway/adapter"
	"github.com/dev-mohitbeniwal/archive-gateway/archive"
	"github.com/dev-mohitbeniwal/archive-gateway/cache"
	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
)

type fakeSource struct {
	mu      sync.Mutex
	key     string
	version int64
	fs      afero.Fs
	entries map[string]archive.Entry
	synced  chan struct{}
	openErr error
}

var modTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFakeSource() *fakeSource {
	return &fakeSource{
		key:     "abc123",
		fs:      afero.NewMemMapFs(),
		entries: map[string]archive.Entry{},
		synced:  make(chan struct{}),
	}
}

func (s *fakeSource) addFile(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	afero.WriteFile(s.fs, name, []byte(content), 0o644)
	s.entries[name] = archive.Entry{Path: name, Size: int64(len(content)), ModTime: modTime}
	for dir := path.Dir(name); ; dir = path.Dir(dir) {
		s.entries[dir] = archive.Entry{Path: dir, Dir: true, ModTime: modTime}
		if dir == "/" {
			break
		}
	}
}

func (s *fakeSource) sync() {
	s.mu.Lock()
	s.version = 1
	s.mu.Unlock()
	close(s.synced)
}

func (s *fakeSource) Key() string  { return s.key }
func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *fakeSource) IsSynced() bool {
	select {
	case <-s.synced:
		return true
	default:
		return false
	}
}

func (s *fakeSource) Synced() <-chan struct{} { return s.synced }

func (s *fakeSource) Stat(name string) (archive.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path.Clean("/"+name)]
	if !ok {
		return archive.Entry{}, fmt.Errorf("%w: %s", gwerrors.ErrFileNotFound, name)
	}
	return e, nil
}

func (s *fakeSource) ReadDir(name string) ([]archive.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var children []archive.Entry
	for p, e := range s.entries {
		if p != "/" && path.Dir(p) == name {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })
	return children, nil
}

func (s *fakeSource) Open(_ context.Context, name string) (afero.File, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.fs.Open(name)
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler(t *testing.T) {
	src := newFakeSource()
	src.addFile("/index.html", "<h1>home</h1>")
	src.addFile("/docs/guide.txt", "0123456789")
	src.addFile("/docs/api/ref.txt", "ref")
	src.sync()
	h := adapter.New(src, cache.ReadySynced, 0)

	t.Run("ServesFileWithArchiveHeaders", func(t *testing.T) {
		w := serve(h, http.MethodGet, "/docs/guide.txt", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0123456789", w.Body.String())
		assert.Equal(t, "abc123", w.Header().Get(adapter.HeaderKey))
		assert.Equal(t, "1", w.Header().Get(adapter.HeaderVersion))
		assert.Equal(t, "true", w.Header().Get(adapter.HeaderSynced))
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		assert.NotEmpty(t, w.Header().Get("ETag"))
	})

	t.Run("ByteRange", func(t *testing.T) {
		w := serve(h, http.MethodGet, "/docs/guide.txt", http.Header{"Range": {"bytes=2-5"}})
		assert.Equal(t, http.StatusPartialContent, w.Code)
		assert.Equal(t, "2345", w.Body.String())
		assert.Equal(t, "bytes 2-5/10", w.Header().Get("Content-Range"))
	})

	t.Run("ConditionalRequest", func(t *testing.T) {
		etag := serve(h, http.MethodGet, "/docs/guide.txt", nil).Header().Get("ETag")
		w := serve(h, http.MethodGet, "/docs/guide.txt", http.Header{"If-None-Match": {etag}})
		assert.Equal(t, http.StatusNotModified, w.Code)
	})

	t.Run("HeadHasNoBody", func(t *testing.T) {
		w := serve(h, http.MethodHead, "/docs/guide.txt", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("RootServesIndex", func(t *testing.T) {
		w := serve(h, http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "<h1>home</h1>", w.Body.String())
	})

	t.Run("DirectoryRedirectsToSlash", func(t *testing.T) {
		w := serve(h, http.MethodGet, "/docs?x=1", nil)
		assert.Equal(t, http.StatusMovedPermanently, w.Code)
		assert.Equal(t, "docs/?x=1", w.Header().Get("Location"))
	})

	t.Run("DirectoryListing", func(t *testing.T) {
		w := serve(h, http.MethodGet, "/docs/", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `href="./guide.txt"`)
		assert.Contains(t, w.Body.String(), `href="./api/"`)
		assert.Contains(t, w.Body.String(), `href="../"`)
	})

	t.Run("MissingFile", func(t *testing.T) {
		w := serve(h, http.MethodGet, "/nope.txt", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Not found")
	})

	t.Run("RejectsWrites", func(t *testing.T) {
		w := serve(h, http.MethodPost, "/index.html", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
	})
}

func TestHandlerWaitsForSync(t *testing.T) {
	t.Run("TimedOutAccessRetriesAfterSync", func(t *testing.T) {
		src := newFakeSource()
		h := adapter.New(src, cache.ReadyTimedOut, time.Second)
		time.AfterFunc(20*time.Millisecond, func() {
			src.addFile("/late.txt", "finally")
			src.sync()
		})

		w := serve(h, http.MethodGet, "/late.txt", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "finally", w.Body.String())
	})

	t.Run("GivesUpAfterFetchWait", func(t *testing.T) {
		src := newFakeSource()
		h := adapter.New(src, cache.ReadyTimedOut, 30*time.Millisecond)

		start := time.Now()
		w := serve(h, http.MethodGet, "/late.txt", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Equal(t, "false", w.Header().Get(adapter.HeaderSynced))
	})

	t.Run("SyncedAccessDoesNotWait", func(t *testing.T) {
		src := newFakeSource()
		h := adapter.New(src, cache.ReadySynced, time.Hour)

		w := serve(h, http.MethodGet, "/late.txt", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandlerPeerFailure(t *testing.T) {
	src := newFakeSource()
	src.addFile("/a.txt", "a")
	src.sync()
	src.openErr = errors.New("connection refused")

	w := serve(adapter.New(src, cache.ReadySynced, 0), http.MethodGet, "/a.txt", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestFactory(t *testing.T) {
	factory := adapter.NewFactory(time.Second)

	_, err := factory(cache.Result{Archive: unservable{}})
	assert.Error(t, err)

	src := newFakeSource()
	src.addFile("/a.txt", "a")
	src.sync()
	h, err := factory(cache.Result{Archive: src, Outcome: cache.ReadySynced})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/a.txt", nil).Code)
}

type unservable struct{}

func (unservable) Key() string             { return "x" }
func (unservable) Synced() <-chan struct{} { return nil }
func (unservable) Close() error            { return nil }
