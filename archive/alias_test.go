package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-mohitbeniwal/archive-gateway/cache"
)

func TestManagerTracksNamesPastResolverTTL(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("2b", KeySize)
	srv, _ := wellKnownServer(t, map[string]string{"example.org": key})
	resolver := NewResolver(16, 50*time.Millisecond,
		WithWellKnownURL(func(name string) string { return srv.URL + "/" + name }))
	m := NewManager(Config{SyncRetry: time.Second}, resolver)
	defer m.Close()
	c := cache.New(m, cache.Config{Max: 1, PopulateTimeout: 10 * time.Millisecond})

	first, err := c.Access(ctx, "example.org")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	_, cached := resolver.Cached("example.org")
	require.False(t, cached, "resolver entry should have expired")

	got, tracked := m.Lookup("Example.org/")
	assert.True(t, tracked)
	assert.Equal(t, key, got)

	second, err := c.Access(ctx, "example.org")
	require.NoError(t, err, "a tracked archive is never rejected for capacity")
	assert.Same(t, first.Archive, second.Archive)
	assert.Equal(t, 1, m.TrackedKeyCount())
}

func TestManagerDropsAliasesOnDetach(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("3c", KeySize)
	srv, _ := wellKnownServer(t, map[string]string{"example.org": key, "mirror.example.org": key})
	m := NewManager(Config{SyncRetry: time.Second}, NewResolver(16, time.Hour,
		WithWellKnownURL(func(name string) string { return srv.URL + "/" + name })))
	defer m.Close()

	for _, address := range []string{"example.org", "dat://mirror.example.org"} {
		_, err := m.Resolve(ctx, address)
		require.NoError(t, err)
	}
	_, tracked := m.Lookup("mirror.example.org")
	assert.True(t, tracked)

	handle, ok := m.Detach(key)
	require.True(t, ok)
	require.NoError(t, handle.Close())

	for _, address := range []string{"example.org", "mirror.example.org", key} {
		_, tracked := m.Lookup(address)
		assert.False(t, tracked, address)
	}
}
