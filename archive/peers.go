// archive/peers.go

package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/multierr"

	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
)

// Manifest is the metadata of one archive version as published by peers.
type Manifest struct {
	Key     string  `json:"key"`
	Version int64   `json:"version"`
	Entries []Entry `json:"entries"`
}

// Entry describes a file or directory of an archive.
type Entry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	Dir     bool      `json:"dir,omitempty"`
}

// Name is the last element of the entry path.
func (e Entry) Name() string {
	return path.Base(e.Path)
}

// peerClient fetches archive metadata and files from HTTP peers:
//
//	GET <peer>/<key>/manifest
//	GET <peer>/<key>/files/<path>
type peerClient struct {
	peers  []string
	client *http.Client
}

func newPeerClient(peers []string, timeout time.Duration) *peerClient {
	cleaned := make([]string, 0, len(peers))
	for _, p := range peers {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &peerClient{
		peers:  cleaned,
		client: &http.Client{Timeout: timeout},
	}
}

// Manifest asks every peer in order and returns the first manifest found.
func (c *peerClient) Manifest(ctx context.Context, key string) (*Manifest, error) {
	if len(c.peers) == 0 {
		return nil, gwerrors.ErrNoPeers
	}
	var errs error
	for _, peer := range c.peers {
		m, err := c.manifestFrom(ctx, peer, key)
		if err == nil {
			return m, nil
		}
		errs = multierr.Append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errs
}

func (c *peerClient) manifestFrom(ctx context.Context, peer, key string) (*Manifest, error) {
	res, err := c.get(ctx, peer+"/"+key+"/manifest")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var m Manifest
	if err := json.NewDecoder(res.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("peer %s: invalid manifest: %w", peer, err)
	}
	if m.Key != "" && m.Key != key {
		return nil, fmt.Errorf("peer %s: manifest for %s, want %s", peer, m.Key, key)
	}
	m.Key = key
	for i := range m.Entries {
		m.Entries[i].Path = cleanPath(m.Entries[i].Path)
	}
	return &m, nil
}

// File opens the content of name from the first peer that has it.
func (c *peerClient) File(ctx context.Context, key, name string) (io.ReadCloser, error) {
	if len(c.peers) == 0 {
		return nil, gwerrors.ErrNoPeers
	}
	escaped := (&url.URL{Path: strings.TrimPrefix(cleanPath(name), "/")}).EscapedPath()
	var errs error
	for _, peer := range c.peers {
		res, err := c.get(ctx, peer+"/"+key+"/files/"+escaped)
		if err == nil {
			return res.Body, nil
		}
		errs = multierr.Append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errs
}

func (c *peerClient) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", rawURL, res.StatusCode)
	}
	return res, nil
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}
