package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"docsync/internal/msg"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.size); got != tc.want {
			t.Fatalf("formatBytes(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	stamp := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)

	synced := formatEvent(msg.Event{
		Type:   msg.EventDocSynced,
		Time:   stamp,
		URL:    "https://docs.example.com/t/alpha",
		Tenant: "plant-a",
		Source: "online-event",
	})
	if !strings.Contains(synced, "synced") || !strings.Contains(synced, "plant-a") {
		t.Fatalf("unexpected synced event line %q", synced)
	}

	done := formatEvent(msg.Event{
		Type:         msg.EventSyncComplete,
		Time:         stamp,
		SuccessCount: 3,
		FailedCount:  1,
	})
	if !strings.Contains(done, "3 succeeded, 1 failed") {
		t.Fatalf("unexpected sync-complete line %q", done)
	}
}
