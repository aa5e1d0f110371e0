// adapter/adapter.go

// Package adapter serves the file tree of one archive over HTTP.
package adapter

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/archive"
	"github.com/dev-mohitbeniwal/archive-gateway/cache"
	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// Response headers describing the served archive.
const (
	HeaderKey     = "Archive-Key"
	HeaderVersion = "Archive-Version"
	HeaderSynced  = "Archive-Synced"
)

// DefaultFetchWait bounds how long a read of a not yet synced archive waits
// for metadata before answering not found.
const DefaultFetchWait = time.Second

// Source is the archive file tree the handler reads from.
type Source interface {
	Key() string
	Version() int64
	IsSynced() bool
	Synced() <-chan struct{}
	Stat(name string) (archive.Entry, error)
	ReadDir(name string) ([]archive.Entry, error)
	Open(ctx context.Context, name string) (afero.File, error)
}

var _ Source = (*archive.Archive)(nil)

// Handler answers GET and HEAD requests against one archive.
type Handler struct {
	src       Source
	outcome   cache.Outcome
	fetchWait time.Duration
}

// New binds a handler to src. An access that timed out in the population
// gate makes the first missing read wait up to fetchWait for metadata.
func New(src Source, outcome cache.Outcome, fetchWait time.Duration) *Handler {
	if fetchWait <= 0 {
		fetchWait = DefaultFetchWait
	}
	return &Handler{src: src, outcome: outcome, fetchWait: fetchWait}
}

// Factory builds handlers for access results, it is what the gateway controller uses.
type Factory func(res cache.Result) (http.Handler, error)

// NewFactory returns a Factory for archives served by the archive package.
func NewFactory(fetchWait time.Duration) Factory {
	return func(res cache.Result) (http.Handler, error) {
		src, ok := res.Archive.(Source)
		if !ok {
			return nil, errors.New("archive cannot be served over HTTP")
		}
		return New(src, res.Outcome, fetchWait), nil
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := path.Clean("/" + r.URL.Path)

	entry, err := h.stat(r.Context(), name)
	h.setHeaders(w)
	if err != nil {
		h.fail(w, name, err)
		return
	}

	if entry.Dir {
		if !strings.HasSuffix(r.URL.Path, "/") {
			redirect(w, r, path.Base(name)+"/")
			return
		}
		h.serveDir(w, r, entry)
		return
	}
	h.serveFile(w, r, entry)
}

// stat looks name up. While the archive has not synced yet and the access
// timed out, a miss waits for metadata once before it is final.
func (h *Handler) stat(ctx context.Context, name string) (archive.Entry, error) {
	entry, err := h.src.Stat(name)
	if err == nil || !errors.Is(err, gwerrors.ErrFileNotFound) {
		return entry, err
	}
	if h.outcome != cache.ReadyTimedOut || h.src.IsSynced() {
		return entry, err
	}
	timer := time.NewTimer(h.fetchWait)
	defer timer.Stop()
	select {
	case <-h.src.Synced():
		return h.src.Stat(name)
	case <-timer.C:
	case <-ctx.Done():
	}
	return entry, err
}

func (h *Handler) setHeaders(w http.ResponseWriter) {
	w.Header().Set(HeaderKey, h.src.Key())
	w.Header().Set(HeaderVersion, strconv.FormatInt(h.src.Version(), 10))
	w.Header().Set(HeaderSynced, strconv.FormatBool(h.src.IsSynced()))
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, entry archive.Entry) {
	f, err := h.src.Open(r.Context(), entry.Path)
	if err != nil {
		h.fail(w, entry.Path, err)
		return
	}
	defer f.Close()
	w.Header().Set("ETag", etag(h.src.Version(), entry))
	http.ServeContent(w, r, entry.Name(), entry.ModTime, f)
}

func (h *Handler) serveDir(w http.ResponseWriter, r *http.Request, dir archive.Entry) {
	index := path.Join(dir.Path, "index.html")
	if entry, err := h.src.Stat(index); err == nil && !entry.Dir {
		h.serveFile(w, r, entry)
		return
	}
	children, err := h.src.ReadDir(dir.Path)
	if err != nil {
		h.fail(w, dir.Path, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if err := listingTemplate.Execute(w, listing{Path: dir.Path, Entries: children}); err != nil {
		logger.Error("Failed to render directory listing", zap.String("path", dir.Path), zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, gwerrors.ErrFileNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, gwerrors.ErrArchiveClosed):
		http.Error(w, "Archive closed", http.StatusServiceUnavailable)
	default:
		logger.Warn("Failed to serve archive file",
			zap.String("key", h.src.Key()),
			zap.String("path", name),
			zap.Error(err))
		http.Error(w, "Bad gateway", http.StatusBadGateway)
	}
}

func etag(version int64, e archive.Entry) string {
	return `"` + strconv.FormatInt(version, 10) + "-" + strconv.FormatInt(e.Size, 16) + "-" +
		strconv.FormatInt(e.ModTime.Unix(), 16) + `"`
}

// redirect sends a relative redirect, the request path was rewritten by the gateway.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusMovedPermanently)
}

type listing struct {
	Path    string
	Entries []archive.Entry
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1>
<ul>
{{if ne .Path "/"}}<li><a href="../">../</a></li>
{{end}}{{range .Entries}}<li><a href="./{{.Name}}{{if .Dir}}/{{end}}">{{.Name}}{{if .Dir}}/{{end}}</a></li>
{{end}}</ul>
</body>
</html>
`))
