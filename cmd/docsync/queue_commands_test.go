package main

import (
	"testing"

	"docsync/internal/ipc"
)

func TestTruncate(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
	long := "connection reset by peer while downloading the document body"
	got := truncate(long, 20)
	if len(got) != 20 {
		t.Fatalf("expected truncated length 20, got %d (%q)", len(got), got)
	}
	if got[len(got)-3:] != "..." {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
}

func TestQueueEntryState(t *testing.T) {
	pending := ipc.QueueEntry{Status: "pending"}
	if got := queueEntryState(pending); got != "pending" {
		t.Fatalf("queueEntryState(pending) = %q", got)
	}
	exhausted := ipc.QueueEntry{Status: "pending", Exhausted: true}
	if got := queueEntryState(exhausted); got != "exhausted" {
		t.Fatalf("queueEntryState(exhausted) = %q", got)
	}
}
