package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
)

type memNameCache struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
}

func newMemNameCache() *memNameCache {
	return &memNameCache{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memNameCache) GetArchiveName(_ context.Context, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.keys[name]
	return key, ok, nil
}

func (c *memNameCache) SetArchiveName(_ context.Context, name, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[name] = key
	c.ttls[name] = ttl
	return nil
}

// wellKnownServer answers /<name> with the key registered for name.
func wellKnownServer(t *testing.T, names map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		key, ok := names[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "dat://%s\nTTL=60\n", key)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("0f", KeySize)

	t.Run("KeyResolvesToItself", func(t *testing.T) {
		r := NewResolver(8, time.Hour)
		got, err := r.Resolve(ctx, "dat://"+strings.ToUpper(key))
		require.NoError(t, err)
		assert.Equal(t, key, got)

		cached, ok := r.Cached(key)
		assert.True(t, ok)
		assert.Equal(t, key, cached)
	})

	t.Run("NameLookupIsCached", func(t *testing.T) {
		srv, hits := wellKnownServer(t, map[string]string{"example.org": key})
		shared := newMemNameCache()
		r := NewResolver(8, time.Hour,
			WithNameCache(shared),
			WithWellKnownURL(func(name string) string { return srv.URL + "/" + name }))

		_, ok := r.Cached("example.org")
		assert.False(t, ok)

		for i := 0; i < 3; i++ {
			got, err := r.Resolve(ctx, "Example.org")
			require.NoError(t, err)
			assert.Equal(t, key, got)
		}
		assert.EqualValues(t, 1, hits.Load())

		cached, ok := r.Cached("example.org")
		assert.True(t, ok)
		assert.Equal(t, key, cached)
		assert.Equal(t, key, shared.keys["example.org"])
		assert.Equal(t, time.Minute, shared.ttls["example.org"])
	})

	t.Run("SharedCacheAvoidsLookup", func(t *testing.T) {
		srv, hits := wellKnownServer(t, nil)
		shared := newMemNameCache()
		shared.keys["example.org"] = key
		r := NewResolver(8, time.Hour,
			WithNameCache(shared),
			WithWellKnownURL(func(name string) string { return srv.URL + "/" + name }))

		got, err := r.Resolve(ctx, "example.org")
		require.NoError(t, err)
		assert.Equal(t, key, got)
		assert.EqualValues(t, 0, hits.Load())
	})

	t.Run("UnknownNameIsNotFound", func(t *testing.T) {
		srv, _ := wellKnownServer(t, nil)
		r := NewResolver(8, time.Hour,
			WithWellKnownURL(func(name string) string { return srv.URL + "/" + name }))

		_, err := r.Resolve(ctx, "missing.example.org")
		assert.ErrorIs(t, err, gwerrors.ErrArchiveNotFound)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("InvalidAddressIsNotFound", func(t *testing.T) {
		srv, hits := wellKnownServer(t, nil)
		r := NewResolver(8, time.Hour,
			WithWellKnownURL(func(name string) string { return srv.URL + "/" + name }))

		for _, address := range []string{"", "favicon", "no spaces.org", "bad_chars.org"} {
			_, err := r.Resolve(ctx, address)
			assert.ErrorIs(t, err, gwerrors.ErrArchiveNotFound, address)
		}
		assert.EqualValues(t, 0, hits.Load())
	})
}

func TestParseWellKnown(t *testing.T) {
	key := strings.Repeat("0f", KeySize)

	got, ttl, err := parseWellKnown(strings.NewReader("dat://" + key + "\nTTL=3600\n"))
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.Equal(t, time.Hour, ttl)

	_, ttl, err = parseWellKnown(strings.NewReader(key))
	require.NoError(t, err)
	assert.Zero(t, ttl)

	_, _, err = parseWellKnown(strings.NewReader("<html>"))
	assert.Error(t, err)

	_, _, err = parseWellKnown(strings.NewReader(""))
	assert.Error(t, err)
}
