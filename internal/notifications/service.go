package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"docsync/internal/config"
)

const userAgent = "Docsync-Go/0.1.0"

// Service defines the notification surface exposed to the sync engine.
type Service interface {
	// NotifyDocumentReady announces a completed document download. It is a
	// silent, deduplicated notification: repeat announcements for the same
	// URL inside the dedup window are dropped.
	NotifyDocumentReady(ctx context.Context, docURL, source string) error
	// NotifyDownloadFailed announces a download that hit the retry ceiling.
	// It is high priority and not deduplicated; it fires exactly once per
	// ceiling crossing, which the caller guarantees.
	NotifyDownloadFailed(ctx context.Context, docURL string, retryCount int, cause string) error
	NotifySyncSummary(ctx context.Context, successCount, failedCount int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dedupWindow := time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second
	if dedupWindow <= 0 {
		dedupWindow = 10 * time.Minute
	}

	clickURL := strings.TrimSpace(cfg.Notifications.ClickURL)
	if clickURL == "" {
		clickURL = strings.TrimSpace(cfg.App.UpstreamURL)
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:    topic,
		client:      client,
		clickURL:    clickURL,
		dedupWindow: dedupWindow,
		lastSent:    make(map[string]time.Time),
		now:         time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	clickURL string

	dedupWindow time.Duration
	mu          sync.Mutex
	lastSent    map[string]time.Time
	now         func() time.Time
}

func (n *ntfyService) NotifyDocumentReady(ctx context.Context, docURL, source string) error {
	docURL = strings.TrimSpace(docURL)
	if !n.shouldSend(docURL) {
		return nil
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "sync"
	}
	data := payload{
		title:    "Docsync - Document Ready",
		message:  fmt.Sprintf("Document available offline: %s (%s)", displayName(docURL), source),
		tags:     []string{"docsync", "document", "ready"},
		priority: "min",
		click:    n.clickURL,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDownloadFailed(ctx context.Context, docURL string, retryCount int, cause string) error {
	docURL = strings.TrimSpace(docURL)
	message := fmt.Sprintf("Download failed after %d attempts: %s", retryCount, displayName(docURL))
	if cause = strings.TrimSpace(cause); cause != "" {
		message = fmt.Sprintf("%s\n%s", message, cause)
	}
	data := payload{
		title:    "Docsync - Download Failed",
		message:  message,
		tags:     []string{"docsync", "download", "failed"},
		priority: "high",
		click:    n.clickURL,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncSummary(ctx context.Context, successCount, failedCount int) error {
	var title, message string
	if failedCount == 0 {
		title = "Docsync - Sync Complete"
		message = fmt.Sprintf("Sync complete: %d documents downloaded", successCount)
	} else {
		title = "Docsync - Sync Complete (with errors)"
		message = fmt.Sprintf("Sync complete: %d succeeded, %d failed", successCount, failedCount)
	}
	data := payload{
		title:    title,
		message:  message,
		tags:     []string{"docsync", "sync", "completed"},
		priority: "min",
		click:    n.clickURL,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Docsync - Test",
		message:  "Notification system test",
		tags:     []string{"docsync", "test"},
		priority: "low",
		click:    n.clickURL,
	}
	return n.send(ctx, data)
}

// shouldSend implements the success-notification dedup window and records
// the send time for URLs that pass.
func (n *ntfyService) shouldSend(docURL string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastSent[docURL]; ok && now.Sub(last) < n.dedupWindow {
		return false
	}
	n.lastSent[docURL] = now

	// Drop expired entries so the map does not grow with queue churn.
	for url, last := range n.lastSent {
		if now.Sub(last) >= n.dedupWindow {
			delete(n.lastSent, url)
		}
	}
	return true
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func displayName(docURL string) string {
	parsed, err := url.Parse(docURL)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return docURL
	}
	base := path.Base(parsed.Path)
	if base == "" || base == "." {
		return docURL
	}
	return base
}

type noopService struct{}

func (noopService) NotifyDocumentReady(context.Context, string, string) error        { return nil }
func (noopService) NotifyDownloadFailed(context.Context, string, int, string) error  { return nil }
func (noopService) NotifySyncSummary(context.Context, int, int) error                { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
