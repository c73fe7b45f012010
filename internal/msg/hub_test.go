package msg_test

import (
	"context"
	"testing"
	"time"

	"docsync/internal/msg"
	"docsync/internal/queue"
)

func TestPublishAssignsIncreasingSequence(t *testing.T) {
	hub := msg.NewHub()

	first := hub.Publish(msg.DocCached("https://docs.example.com/a.pdf", "default"))
	second := hub.Publish(msg.SyncComplete(2, 1))
	if second <= first {
		t.Fatalf("expected increasing sequence, got %d then %d", first, second)
	}

	events, next, err := hub.Fetch(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != msg.EventDocCached || events[1].Type != msg.EventSyncComplete {
		t.Fatalf("unexpected order: %#v", events)
	}
	if next != second {
		t.Fatalf("expected cursor %d, got %d", second, next)
	}
}

func TestFetchResumesFromCursor(t *testing.T) {
	hub := msg.NewHub()
	hub.Publish(msg.DocSynced("https://docs.example.com/a.pdf", "default", queue.SourceBackgroundSync))
	_, cursor, err := hub.Fetch(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	hub.Publish(msg.DocSynced("https://docs.example.com/b.pdf", "default", queue.SourceBackgroundFetch))
	events, _, err := hub.Fetch(context.Background(), cursor, 0, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].URL != "https://docs.example.com/b.pdf" {
		t.Fatalf("expected only the new event, got %#v", events)
	}
	if events[0].Source != queue.SourceBackgroundFetch {
		t.Fatalf("unexpected source: %q", events[0].Source)
	}
}

func TestFetchLongPollWakesOnPublish(t *testing.T) {
	hub := msg.NewHub()

	done := make(chan []msg.Event, 1)
	go func() {
		events, _, err := hub.Fetch(context.Background(), 0, 0, 5*time.Second)
		if err != nil {
			done <- nil
			return
		}
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(msg.SyncComplete(1, 0))

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Type != msg.EventSyncComplete {
			t.Fatalf("unexpected events: %#v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not wake on publish")
	}
}

func TestFetchTimesOutWithEmptyBatch(t *testing.T) {
	hub := msg.NewHub()

	start := time.Now()
	events, next, err := hub.Fetch(context.Background(), 0, 0, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 0 || next != 0 {
		t.Fatalf("expected empty batch, got %#v next=%d", events, next)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("expected fetch to wait out the poll window")
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	hub := msg.NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, _, err := hub.Fetch(ctx, 0, 0, 5*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not observe cancellation")
	}
}

func TestFetchRespectsMax(t *testing.T) {
	hub := msg.NewHub()
	for i := 0; i < 5; i++ {
		hub.Publish(msg.SyncComplete(i, 0))
	}

	events, next, err := hub.Fetch(context.Background(), 0, 2, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	rest, _, err := hub.Fetch(context.Background(), next, 0, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected remaining 3 events, got %d", len(rest))
	}
}
