package cache_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/testsupport"
)

func newStore(t *testing.T, opts ...testsupport.ConfigOption) (*cache.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store, err := cache.NewStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, cfg
}

func TestPutFetchesAndStoresBody(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || len(r.Cookies()) > 0 {
			sawAuth = true
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 test"))
	}))
	defer server.Close()

	store, _ := newStore(t)
	url := server.URL + "/tags/42.pdf"

	meta, err := store.Put(context.Background(), url)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if sawAuth {
		t.Fatal("fetch must not forward credentials")
	}
	if meta.ContentType != "application/pdf" || meta.Size != int64(len("%PDF-1.4 test")) {
		t.Fatalf("unexpected meta: %#v", meta)
	}
	if !store.Has(url) {
		t.Fatal("expected entry present after Put")
	}

	body, gotMeta, err := store.Open(url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(raw) != "%PDF-1.4 test" {
		t.Fatalf("unexpected body %q", raw)
	}
	if gotMeta.URL != url {
		t.Fatalf("sidecar URL mismatch: %q", gotMeta.URL)
	}
}

func TestPutPropagatesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	store, _ := newStore(t)
	if _, err := store.Put(context.Background(), server.URL+"/missing.pdf"); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if store.Has(server.URL + "/missing.pdf") {
		t.Fatal("failed fetch must not leave an entry")
	}
}

func TestHasAnyTenantFindsOtherPartition(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenant("plant-a"))
	storeA, err := cache.NewStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	url := "https://docs.example.com/tags/7.pdf"
	if _, err := storeA.PutResponse(url, "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("PutResponse: %v", err)
	}

	cfg.App.Tenant = "plant-b"
	storeB, err := cache.NewStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if storeB.Has(url) {
		t.Fatal("plant-b partition should not contain the entry")
	}
	tenant, ok := storeB.HasAnyTenant(url)
	if !ok || tenant != "plant-a" {
		t.Fatalf("expected cross-tenant hit on plant-a, got %q ok=%v", tenant, ok)
	}

	body, _, err := storeB.OpenAnyTenant(url)
	if err != nil {
		t.Fatalf("OpenAnyTenant: %v", err)
	}
	defer body.Close()
	raw, _ := io.ReadAll(body)
	if string(raw) != "doc" {
		t.Fatalf("unexpected cross-tenant body %q", raw)
	}
}

func TestOpenMissingReturnsErrNotCached(t *testing.T) {
	store, _ := newStore(t)
	if _, _, err := store.Open("https://docs.example.com/absent.pdf"); !errors.Is(err, cache.ErrNotCached) {
		t.Fatalf("expected ErrNotCached, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	store, _ := newStore(t)
	url := "https://docs.example.com/tags/9.pdf"
	if _, err := store.PutResponse(url, "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("PutResponse: %v", err)
	}

	if err := store.Remove(url); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if store.Has(url) {
		t.Fatal("expected entry gone after Remove")
	}
	if err := store.Remove(url); err != nil {
		t.Fatalf("Remove of absent entry must be a no-op: %v", err)
	}

	if _, err := store.PutResponse(url, "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("PutResponse: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if store.Has(url) {
		t.Fatal("expected partition empty after Clear")
	}
}

func TestSweepStaleRemovesOldCorePartitionsOnly(t *testing.T) {
	store, cfg := newStore(t)

	url := "https://docs.example.com/tags/11.pdf"
	if _, err := store.PutResponse(url, "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("PutResponse: %v", err)
	}
	if _, err := store.PutCore(cfg.App.UpstreamURL+"/index.html", "text/html", strings.NewReader("<html></html>")); err != nil {
		t.Fatalf("PutCore: %v", err)
	}

	stale := filepath.Join(cfg.Paths.CacheDir, "core-v1")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir stale partition: %v", err)
	}

	removed, err := store.SweepStale()
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 partition removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("stale core partition should be gone")
	}
	if !store.Has(url) {
		t.Fatal("document partition must survive the sweep")
	}
	if _, _, err := store.OpenCore(cfg.App.UpstreamURL + "/index.html"); err != nil {
		t.Fatalf("current core partition must survive the sweep: %v", err)
	}
}

func TestStatsAllCountsEntries(t *testing.T) {
	store, _ := newStore(t)
	for _, url := range []string{
		"https://docs.example.com/tags/1.pdf",
		"https://docs.example.com/tags/2.pdf",
	} {
		if _, err := store.PutResponse(url, "application/pdf", strings.NewReader("body")); err != nil {
			t.Fatalf("PutResponse: %v", err)
		}
	}

	stats, err := store.StatsAll()
	if err != nil {
		t.Fatalf("StatsAll: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected single partition, got %#v", stats)
	}
	if stats[0].Entries != 2 || stats[0].Bytes != 8 {
		t.Fatalf("unexpected stats: %#v", stats[0])
	}
}
