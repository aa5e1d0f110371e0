// archive/resolver.go

package archive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// NameCache is a shared store of resolved names, Redis in production.
type NameCache interface {
	GetArchiveName(ctx context.Context, name string) (key string, found bool, err error)
	SetArchiveName(ctx context.Context, name, key string, ttl time.Duration) error
}

// Resolver turns addresses into archive keys. Keys resolve to themselves;
// domain names are looked up at https://<name>/.well-known/dat.
type Resolver struct {
	local        *expirable.LRU[string, string]
	shared       NameCache
	client       *http.Client
	ttl          time.Duration
	group        singleflight.Group
	wellKnownURL func(name string) string
}

type ResolverOption func(*Resolver)

func WithNameCache(c NameCache) ResolverOption {
	return func(r *Resolver) { r.shared = c }
}

func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.client = c }
}

// WithWellKnownURL overrides where the key of a name is looked up.
func WithWellKnownURL(f func(name string) string) ResolverOption {
	return func(r *Resolver) { r.wellKnownURL = f }
}

// NewResolver caches up to size names locally for ttl.
func NewResolver(size int, ttl time.Duration, opts ...ResolverOption) *Resolver {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	r := &Resolver{
		local:  expirable.NewLRU[string, string](size, nil, ttl),
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    ttl,
		wellKnownURL: func(name string) string {
			return "https://" + name + "/.well-known/dat"
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical key for address or ErrArchiveNotFound.
func (r *Resolver) Resolve(ctx context.Context, address string) (string, error) {
	if key, ok := ParseKey(address); ok {
		return key, nil
	}
	name := normalizeName(address)
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", gwerrors.ErrArchiveNotFound, address)
	}
	if key, ok := r.local.Get(name); ok {
		return key, nil
	}
	if r.shared != nil {
		key, found, err := r.shared.GetArchiveName(ctx, name)
		if err != nil {
			logger.Warn("Shared name cache lookup failed", zap.String("name", name), zap.Error(err))
		} else if found {
			r.local.Add(name, key)
			return key, nil
		}
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		return r.lookup(ctx, name)
	})
	if err != nil {
		return "", err
	}
	res := v.(lookupResult)
	key := res.key
	r.local.Add(name, key)
	if r.shared != nil {
		ttl := r.ttl
		if res.ttl > 0 && res.ttl < ttl {
			ttl = res.ttl
		}
		if err := r.shared.SetArchiveName(ctx, name, key, ttl); err != nil {
			logger.Warn("Failed to store resolved name", zap.String("name", name), zap.Error(err))
		}
	}
	return key, nil
}

// Cached reports the key of a name resolved earlier, without network access.
func (r *Resolver) Cached(address string) (string, bool) {
	if key, ok := ParseKey(address); ok {
		return key, true
	}
	name := normalizeName(address)
	return r.local.Peek(name)
}

type lookupResult struct {
	key string
	ttl time.Duration
}

func (r *Resolver) lookup(ctx context.Context, name string) (lookupResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.wellKnownURL(name), nil)
	if err != nil {
		return lookupResult{}, fmt.Errorf("%w: %q", gwerrors.ErrArchiveNotFound, name)
	}
	res, err := r.client.Do(req)
	if err != nil {
		logger.Debug("Name lookup failed", zap.String("name", name), zap.Error(err))
		return lookupResult{}, fmt.Errorf("%w: %q: %v", gwerrors.ErrArchiveNotFound, name, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return lookupResult{}, fmt.Errorf("%w: %q: lookup status %d", gwerrors.ErrArchiveNotFound, name, res.StatusCode)
	}
	key, ttl, err := parseWellKnown(io.LimitReader(res.Body, 4096))
	if err != nil {
		return lookupResult{}, fmt.Errorf("%w: %q: %v", gwerrors.ErrArchiveNotFound, name, err)
	}
	logger.Debug("Resolved archive name", zap.String("name", name), zap.String("key", key))
	return lookupResult{key: key, ttl: ttl}, nil
}

// parseWellKnown reads a `dat://<key>` line and an optional `TTL=<seconds>` line.
func parseWellKnown(r io.Reader) (key string, ttl time.Duration, err error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return "", 0, fmt.Errorf("empty well-known file")
	}
	key, ok := ParseKey(sc.Text())
	if !ok {
		return "", 0, fmt.Errorf("invalid key line %q", sc.Text())
	}
	if sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, found := strings.CutPrefix(line, "TTL="); found {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				ttl = time.Duration(secs) * time.Second
			}
		}
	}
	return key, ttl, nil
}

// normalizeName is the form names are cached and tracked under.
func normalizeName(address string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(address, "dat://"), "/"))
}

func validName(name string) bool {
	if name == "" || len(name) > 253 || !strings.Contains(name, ".") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
