package router

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/logging"
	"docsync/internal/msg"
)

//go:embed offline.html
var offlinePage []byte

// Router serves the application surface with per-route fetch strategies:
// documents are cache-first across tenants, legal pages are network-first,
// navigations fall back to the cached entry point, assets are cache-first,
// and everything else is served stale while revalidating.
type Router struct {
	cache      *cache.Store
	client     *http.Client
	upstream   *url.URL
	entryPoint string
	logger     *slog.Logger
	cacheDoc   func(ctx context.Context, url string) error

	revalidations sync.WaitGroup
}

// Wait blocks until in-flight background revalidations finish. Call after the
// HTTP server stopped accepting requests.
func (rt *Router) Wait() {
	rt.revalidations.Wait()
}

// SetCommandHandler installs the callback behind the cache-doc command
// endpoint. Without a handler the endpoint answers 503.
func (rt *Router) SetCommandHandler(fn func(ctx context.Context, url string) error) {
	rt.cacheDoc = fn
}

// New builds a router from config.
func New(cfg *config.Config, cacheStore *cache.Store, logger *slog.Logger) (*Router, error) {
	upstream, err := url.Parse(cfg.App.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	timeout := time.Duration(cfg.Sync.FetchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	entry := cfg.App.EntryPoint
	if entry == "" {
		entry = "/index.html"
	}
	return &Router{
		cache:      cacheStore,
		client:     &http.Client{Timeout: timeout},
		upstream:   upstream,
		entryPoint: entry,
		logger:     logging.NewComponentLogger(logger, "router"),
	}, nil
}

var legalPaths = map[string]struct{}{
	"/impressum":        {},
	"/impressum.html":   {},
	"/datenschutz":      {},
	"/datenschutz.html": {},
	"/agb":              {},
	"/agb.html":         {},
}

var assetExtensions = map[string]struct{}{
	".js":          {},
	".css":         {},
	".png":         {},
	".jpg":         {},
	".svg":         {},
	".ico":         {},
	".woff2":       {},
	".webmanifest": {},
	".json":        {},
}

// Handler builds the chi mux with all route strategies attached.
func (rt *Router) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Post("/sync/command", rt.command)
	mux.Get("/*", rt.dispatch)
	mux.Head("/*", rt.dispatch)
	return mux
}

// command accepts the tagged cache-doc message from foreground clients that
// reach the daemon over HTTP instead of the unix socket.
func (rt *Router) command(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		http.Error(w, "read command", http.StatusBadRequest)
		return
	}
	cmd, err := msg.DecodeCommand(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cmd.Tenant != "" && cmd.Tenant != rt.cache.Tenant() {
		http.Error(w, fmt.Sprintf("tenant %q not served here", cmd.Tenant), http.StatusUnprocessableEntity)
		return
	}
	if rt.cacheDoc == nil {
		http.Error(w, "command handling unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := rt.cacheDoc(r.Context(), cmd.URL); err != nil {
		rt.logger.Warn("cache-doc command failed", logging.String(logging.FieldURL, cmd.URL), logging.Error(err))
		http.Error(w, "document fetch failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) dispatch(w http.ResponseWriter, r *http.Request) {
	requestPath := r.URL.Path

	if _, ok := legalPaths[strings.ToLower(requestPath)]; ok {
		rt.networkFirst(w, r)
		return
	}

	ext := strings.ToLower(path.Ext(requestPath))
	switch {
	case ext == ".pdf":
		rt.document(w, r)
	case isNavigation(requestPath, ext, r):
		rt.navigation(w, r)
	default:
		if _, ok := assetExtensions[ext]; ok {
			rt.assetCacheFirst(w, r)
			return
		}
		rt.staleWhileRevalidate(w, r)
	}
}

func isNavigation(requestPath, ext string, r *http.Request) bool {
	if ext != "" && ext != ".html" {
		return false
	}
	if requestPath == "/" || ext == ".html" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// document serves PDFs cache-first with a cross-tenant lookup. A cached
// document always wins; a miss streams from the origin without caching —
// documents enter the cache only through the cache-doc command and the sync
// paths.
func (rt *Router) document(w http.ResponseWriter, r *http.Request) {
	docURL := rt.upstreamURL(r)

	if body, meta, err := rt.cache.OpenAnyTenant(docURL); err == nil {
		rt.serveCached(w, body, meta)
		return
	}

	resp, err := rt.fetch(r.Context(), docURL)
	if err != nil {
		rt.logger.Warn("document fetch failed", logging.String(logging.FieldURL, docURL), logging.Error(err))
		rt.serveOffline(w)
		return
	}
	defer resp.Body.Close()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Docsync-Cache", "miss")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, resp.Body)
}

// networkFirst serves legal pages fresh whenever the origin answers and
// falls back to the last cached copy offline.
func (rt *Router) networkFirst(w http.ResponseWriter, r *http.Request) {
	pageURL := rt.upstreamURL(r)

	resp, err := rt.fetch(r.Context(), pageURL)
	if err == nil {
		defer resp.Body.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, resp.Body); err == nil {
			contentType := resp.Header.Get("Content-Type")
			if _, err := rt.cache.PutCore(pageURL, contentType, bytes.NewReader(buf.Bytes())); err != nil {
				rt.logger.Warn("legal page caching failed", logging.Error(err))
			}
			rt.writeBody(w, contentType, buf.Bytes())
			return
		}
	}

	if body, meta, err := rt.cache.OpenCore(pageURL); err == nil {
		rt.serveCached(w, body, meta)
		return
	}
	rt.serveOffline(w)
}

// navigation serves the cached entry point for app navigations, fetching it
// once when the cache is cold.
func (rt *Router) navigation(w http.ResponseWriter, r *http.Request) {
	entryURL := rt.upstream.JoinPath(rt.entryPoint).String()

	if body, meta, err := rt.cache.OpenCore(entryURL); err == nil {
		rt.serveCached(w, body, meta)
		return
	}

	resp, err := rt.fetch(r.Context(), entryURL)
	if err != nil {
		rt.serveOffline(w)
		return
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		rt.serveOffline(w)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if _, err := rt.cache.PutCore(entryURL, contentType, bytes.NewReader(buf.Bytes())); err != nil {
		rt.logger.Warn("entry point caching failed", logging.Error(err))
	}
	rt.writeBody(w, contentType, buf.Bytes())
}

// assetCacheFirst serves immutable build assets from the core partition.
func (rt *Router) assetCacheFirst(w http.ResponseWriter, r *http.Request) {
	assetURL := rt.upstreamURL(r)

	if body, meta, err := rt.cache.OpenCore(assetURL); err == nil {
		rt.serveCached(w, body, meta)
		return
	}

	resp, err := rt.fetch(r.Context(), assetURL)
	if err != nil {
		rt.serveOffline(w)
		return
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		rt.serveOffline(w)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if _, err := rt.cache.PutCore(assetURL, contentType, bytes.NewReader(buf.Bytes())); err != nil {
		rt.logger.Warn("asset caching failed", logging.Error(err))
	}
	rt.writeBody(w, contentType, buf.Bytes())
}

// staleWhileRevalidate answers from cache immediately and refreshes the
// entry in the background; cold entries block on the first fetch.
func (rt *Router) staleWhileRevalidate(w http.ResponseWriter, r *http.Request) {
	resourceURL := rt.upstreamURL(r)

	if body, meta, err := rt.cache.OpenCore(resourceURL); err == nil {
		rt.serveCached(w, body, meta)
		rt.revalidations.Add(1)
		go func() {
			defer rt.revalidations.Done()
			rt.revalidate(resourceURL)
		}()
		return
	}

	resp, err := rt.fetch(r.Context(), resourceURL)
	if err != nil {
		rt.serveOffline(w)
		return
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		rt.serveOffline(w)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if _, err := rt.cache.PutCore(resourceURL, contentType, bytes.NewReader(buf.Bytes())); err != nil {
		rt.logger.Warn("resource caching failed", logging.Error(err))
	}
	rt.writeBody(w, contentType, buf.Bytes())
}

func (rt *Router) revalidate(resourceURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), rt.client.Timeout)
	defer cancel()

	resp, err := rt.fetch(ctx, resourceURL)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if _, err := rt.cache.PutCore(resourceURL, resp.Header.Get("Content-Type"), resp.Body); err != nil {
		rt.logger.Warn("revalidation caching failed", logging.Error(err))
	}
}

func (rt *Router) upstreamURL(r *http.Request) string {
	target := rt.upstream.JoinPath(r.URL.Path)
	target.RawQuery = r.URL.RawQuery
	return target.String()
}

func (rt *Router) fetch(ctx context.Context, resourceURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := rt.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", resourceURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", resourceURL, resp.StatusCode)
	}
	return resp, nil
}

func (rt *Router) serveCached(w http.ResponseWriter, body io.ReadCloser, meta *cache.Meta) {
	defer body.Close()
	if meta != nil && meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	w.Header().Set("X-Docsync-Cache", "hit")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (rt *Router) writeBody(w http.ResponseWriter, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Docsync-Cache", "miss")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (rt *Router) serveOffline(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write(offlinePage)
}
