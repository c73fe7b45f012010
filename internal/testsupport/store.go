package testsupport

import (
	"context"
	"testing"

	"docsync/internal/config"
	"docsync/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a pending download for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, url, tenant string) *queue.Entry {
	t.Helper()

	entry, err := store.Enqueue(context.Background(), url, tenant)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return entry
}
