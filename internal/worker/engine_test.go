package worker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/msg"
	"docsync/internal/queue"
	"docsync/internal/testsupport"
	"docsync/internal/worker"
)

type stubNotifier struct {
	mu       sync.Mutex
	ready    []string
	failed   []string
	summary  []int
	failures []int
}

func (n *stubNotifier) NotifyDocumentReady(_ context.Context, url, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, url)
	return nil
}

func (n *stubNotifier) NotifyDownloadFailed(_ context.Context, url string, retryCount int, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, url)
	n.failures = append(n.failures, retryCount)
	return nil
}

func (n *stubNotifier) NotifySyncSummary(_ context.Context, successCount, failedCount int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summary = append(n.summary, successCount, failedCount)
	return nil
}

func (n *stubNotifier) TestNotification(context.Context) error { return nil }

type fixture struct {
	cfg      *config.Config
	store    *queue.Store
	cache    *cache.Store
	hub      *msg.Hub
	notifier *stubNotifier
	engine   *worker.SyncEngine
}

func newFixture(t *testing.T, upstream string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithUpstream(upstream))
	store := testsupport.MustOpenStore(t, cfg)
	cacheStore, err := cache.NewStore(cfg, nil)
	if err != nil {
		t.Fatalf("cache.NewStore: %v", err)
	}
	hub := msg.NewHub()
	notifier := &stubNotifier{}
	engine := worker.NewSyncEngine(store, cacheStore, notifier, hub, cfg.App.Tenant, nil)
	return &fixture{cfg: cfg, store: store, cache: cacheStore, hub: hub, notifier: notifier, engine: engine}
}

func drainEvents(t *testing.T, hub *msg.Hub) []msg.Event {
	t.Helper()
	events, _, err := hub.Fetch(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("hub.Fetch: %v", err)
	}
	return events
}

func TestSyncPendingDrainsQueueAndBroadcasts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("doc " + r.URL.Path))
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	urls := []string{server.URL + "/tags/1.pdf", server.URL + "/tags/2.pdf"}
	for _, url := range urls {
		testsupport.Enqueue(t, f.store, url, f.cfg.App.Tenant)
	}

	if err := f.engine.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending: %v", err)
	}

	remaining, err := f.store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty queue after drain, got %#v", remaining)
	}
	for _, url := range urls {
		if !f.cache.Has(url) {
			t.Fatalf("expected %s cached", url)
		}
	}

	events := drainEvents(t, f.hub)
	if len(events) != 3 {
		t.Fatalf("expected 2 doc-synced + 1 sync-complete, got %#v", events)
	}
	for _, event := range events[:2] {
		if event.Type != msg.EventDocSynced || event.Source != queue.SourceBackgroundSync {
			t.Fatalf("unexpected event %#v", event)
		}
	}
	final := events[2]
	if final.Type != msg.EventSyncComplete || final.SuccessCount != 2 || final.FailedCount != 0 {
		t.Fatalf("unexpected sync-complete %#v", final)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.ready) != 2 || len(f.notifier.failed) != 0 {
		t.Fatalf("unexpected notifications: %#v", f.notifier)
	}
}

func TestSyncPendingEmptyQueueIsQuiet(t *testing.T) {
	f := newFixture(t, "https://docs.example.com")
	if err := f.engine.SyncPending(context.Background()); err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if events := drainEvents(t, f.hub); len(events) != 0 {
		t.Fatalf("empty pass must not broadcast, got %#v", events)
	}
}

func TestSyncPendingContinuesPastFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("fine"))
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	broken := server.URL + "/tags/broken.pdf"
	good := server.URL + "/tags/good.pdf"
	testsupport.Enqueue(t, f.store, broken, f.cfg.App.Tenant)
	testsupport.Enqueue(t, f.store, good, f.cfg.App.Tenant)

	if err := f.engine.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending: %v", err)
	}

	entry, err := f.store.Get(ctx, broken)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || entry.RetryCount != 1 || entry.LastError == "" {
		t.Fatalf("expected failure recorded, got %#v", entry)
	}
	if !f.cache.Has(good) {
		t.Fatal("good document should still be cached")
	}

	events := drainEvents(t, f.hub)
	last := events[len(events)-1]
	if last.Type != msg.EventSyncComplete || last.SuccessCount != 1 || last.FailedCount != 1 {
		t.Fatalf("unexpected sync-complete %#v", last)
	}
}

func TestTerminalFailureNotifiesExactlyOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	url := server.URL + "/tags/unlucky.pdf"
	testsupport.Enqueue(t, f.store, url, f.cfg.App.Tenant)

	// Each pass fails once; the entry leaves the retryable set at the
	// ceiling, so extra passes are no-ops.
	for i := 0; i < queue.MaxRetryCount+2; i++ {
		if err := f.engine.SyncPending(ctx); err != nil {
			t.Fatalf("SyncPending: %v", err)
		}
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.failed) != 1 {
		t.Fatalf("expected exactly one terminal notification, got %d", len(f.notifier.failed))
	}
	if f.notifier.failures[0] != queue.MaxRetryCount {
		t.Fatalf("terminal notification should carry the ceiling count, got %d", f.notifier.failures[0])
	}

	entry, err := f.store.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || !entry.Exhausted() {
		t.Fatalf("expected exhausted entry retained, got %#v", entry)
	}
}

func TestHandleFetchSuccessSettlesEntry(t *testing.T) {
	f := newFixture(t, "https://docs.example.com")
	ctx := context.Background()

	url := "https://docs.example.com/tags/5.pdf"
	testsupport.Enqueue(t, f.store, url, f.cfg.App.Tenant)

	if err := f.engine.HandleFetchSuccess(ctx, url, "application/pdf", strings.NewReader("body")); err != nil {
		t.Fatalf("HandleFetchSuccess: %v", err)
	}

	if !f.cache.Has(url) {
		t.Fatal("expected body cached")
	}
	entry, err := f.store.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected entry settled, got %#v", entry)
	}

	events := drainEvents(t, f.hub)
	if len(events) != 1 || events[0].Type != msg.EventDocSynced || events[0].Source != queue.SourceBackgroundFetch {
		t.Fatalf("unexpected events %#v", events)
	}
}

func TestHandleFetchFailureCountsAgainstSharedCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	url := server.URL + "/tags/6.pdf"
	testsupport.Enqueue(t, f.store, url, f.cfg.App.Tenant)

	// Two generic passes plus one managed failure share one counter.
	for i := 0; i < 2; i++ {
		if err := f.engine.SyncPending(ctx); err != nil {
			t.Fatalf("SyncPending: %v", err)
		}
	}
	f.engine.HandleFetchFailure(ctx, url, context.DeadlineExceeded)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.failed) != 1 {
		t.Fatalf("expected terminal notification after shared ceiling, got %d", len(f.notifier.failed))
	}
}

func TestCacheDocumentBroadcastsWithoutQueueEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page"))
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	url := server.URL + "/tags/7.pdf"
	if err := f.engine.CacheDocument(ctx, url); err != nil {
		t.Fatalf("CacheDocument: %v", err)
	}
	if !f.cache.Has(url) {
		t.Fatal("expected document cached")
	}

	entries, err := f.store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cache-doc must not create queue entries, got %#v", entries)
	}

	events := drainEvents(t, f.hub)
	if len(events) != 1 || events[0].Type != msg.EventDocCached || events[0].URL != url {
		t.Fatalf("unexpected events %#v", events)
	}
}

func TestFirstManagedDownloadFailureNotifies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	url := server.URL + "/tags/11.pdf"
	testsupport.Enqueue(t, f.store, url, f.cfg.App.Tenant)

	f.engine.HandleFetchFailure(ctx, url, context.DeadlineExceeded)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.failed) != 1 {
		t.Fatalf("expected a notification on the first managed download failure, got %d", len(f.notifier.failed))
	}
	if f.notifier.failures[0] != 1 {
		t.Fatalf("expected retry count 1 in the notification, got %d", f.notifier.failures[0])
	}
}

func TestConcurrentDrainsSettleSingleEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("pdf-bytes"))
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	url := server.URL + "/tags/12.pdf"
	testsupport.Enqueue(t, f.store, url, f.cfg.App.Tenant)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.engine.SyncPending(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SyncPending: %v", err)
		}
	}

	entries, err := f.store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected settled queue, got %d entries", len(entries))
	}

	synced := 0
	for _, event := range drainEvents(t, f.hub) {
		if event.Type == msg.EventDocSynced {
			synced++
		}
	}
	if synced < 1 || synced > 2 {
		t.Fatalf("expected one or two synced broadcasts, got %d", synced)
	}
}
