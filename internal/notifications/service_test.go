package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docsync/internal/config"
	"docsync/internal/notifications"
)

type recorded struct {
	title    string
	message  string
	tags     string
	priority string
	click    string
}

func newRecordingServer(t *testing.T, sink *[]recorded) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		*sink = append(*sink, recorded{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			click:    r.Header.Get("Click"),
		})
		w.WriteHeader(http.StatusOK)
	}))
}

func newNtfyConfig(endpoint string) *config.Config {
	cfg := config.Default()
	cfg.App.UpstreamURL = "https://docs.example.com"
	cfg.Notifications.NtfyTopic = endpoint
	cfg.Notifications.ClickURL = "https://docs.example.com/index.html"
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyDocumentReady(context.Background(), "https://docs.example.com/a.pdf", "background-sync"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestDocumentReadyIsQuietAndClickable(t *testing.T) {
	var sent []recorded
	server := newRecordingServer(t, &sent)
	defer server.Close()

	svc := notifications.NewService(newNtfyConfig(server.URL))
	if err := svc.NotifyDocumentReady(context.Background(), "https://docs.example.com/tags/42.pdf", "background-fetch"); err != nil {
		t.Fatalf("NotifyDocumentReady: %v", err)
	}

	if len(sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sent))
	}
	got := sent[0]
	if got.title != "Docsync - Document Ready" {
		t.Fatalf("unexpected title %q", got.title)
	}
	if !strings.Contains(got.message, "42.pdf") || !strings.Contains(got.message, "background-fetch") {
		t.Fatalf("unexpected message %q", got.message)
	}
	if got.priority != "min" {
		t.Fatalf("success notification must be quiet, got priority %q", got.priority)
	}
	if got.click != "https://docs.example.com/index.html" {
		t.Fatalf("unexpected click URL %q", got.click)
	}
}

func TestDocumentReadyDeduplicatesWithinWindow(t *testing.T) {
	var sent []recorded
	server := newRecordingServer(t, &sent)
	defer server.Close()

	cfg := newNtfyConfig(server.URL)
	cfg.Notifications.DedupWindowSeconds = 600
	svc := notifications.NewService(cfg)

	ctx := context.Background()
	url := "https://docs.example.com/tags/42.pdf"
	for i := 0; i < 3; i++ {
		if err := svc.NotifyDocumentReady(ctx, url, "background-sync"); err != nil {
			t.Fatalf("NotifyDocumentReady: %v", err)
		}
	}
	if err := svc.NotifyDocumentReady(ctx, "https://docs.example.com/tags/43.pdf", "background-sync"); err != nil {
		t.Fatalf("NotifyDocumentReady: %v", err)
	}

	if len(sent) != 2 {
		t.Fatalf("expected dedup to collapse repeats, got %d notifications", len(sent))
	}
}

func TestDownloadFailedIsLoudAndNeverDeduplicated(t *testing.T) {
	var sent []recorded
	server := newRecordingServer(t, &sent)
	defer server.Close()

	svc := notifications.NewService(newNtfyConfig(server.URL))
	ctx := context.Background()
	url := "https://docs.example.com/tags/42.pdf"

	for i := 0; i < 2; i++ {
		if err := svc.NotifyDownloadFailed(ctx, url, 3, "network unreachable"); err != nil {
			t.Fatalf("NotifyDownloadFailed: %v", err)
		}
	}

	if len(sent) != 2 {
		t.Fatalf("failure notifications must not dedup, got %d", len(sent))
	}
	got := sent[0]
	if got.priority != "high" {
		t.Fatalf("failure notification must be high priority, got %q", got.priority)
	}
	if !strings.Contains(got.message, "after 3 attempts") || !strings.Contains(got.message, "network unreachable") {
		t.Fatalf("unexpected message %q", got.message)
	}
}

func TestSyncSummaryMentionsFailures(t *testing.T) {
	var sent []recorded
	server := newRecordingServer(t, &sent)
	defer server.Close()

	svc := notifications.NewService(newNtfyConfig(server.URL))
	ctx := context.Background()

	if err := svc.NotifySyncSummary(ctx, 3, 0); err != nil {
		t.Fatalf("NotifySyncSummary: %v", err)
	}
	if err := svc.NotifySyncSummary(ctx, 2, 1); err != nil {
		t.Fatalf("NotifySyncSummary: %v", err)
	}

	if len(sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(sent))
	}
	if strings.Contains(sent[0].title, "errors") {
		t.Fatalf("clean summary should not mention errors: %q", sent[0].title)
	}
	if !strings.Contains(sent[1].title, "errors") || !strings.Contains(sent[1].message, "1 failed") {
		t.Fatalf("unexpected failure summary: %#v", sent[1])
	}
}

func TestSendReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	svc := notifications.NewService(newNtfyConfig(server.URL))
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx ntfy response")
	}
}
