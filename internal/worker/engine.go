package worker

import (
	"context"
	"io"
	"log/slog"

	"docsync/internal/cache"
	"docsync/internal/logging"
	"docsync/internal/msg"
	"docsync/internal/notifications"
	"docsync/internal/queue"
)

// SyncEngine drains the pending-downloads queue and handles managed download
// outcomes. It owns the retry accounting: the queue rows carry the counters,
// the engine decides what a success or failure means.
type SyncEngine struct {
	store    *queue.Store
	cache    *cache.Store
	notifier notifications.Service
	hub      *msg.Hub
	tenant   string
	logger   *slog.Logger
}

// NewSyncEngine wires the engine to its collaborators.
func NewSyncEngine(
	store *queue.Store,
	cacheStore *cache.Store,
	notifier notifications.Service,
	hub *msg.Hub,
	tenant string,
	logger *slog.Logger,
) *SyncEngine {
	return &SyncEngine{
		store:    store,
		cache:    cacheStore,
		notifier: notifier,
		hub:      hub,
		tenant:   tenant,
		logger:   logging.NewComponentLogger(logger, "worker"),
	}
}

// SyncPending performs one full drain pass over the retryable queue entries.
// Entries are processed sequentially in insertion order; one failure never
// aborts the pass. The pass ends with a sync-complete broadcast carrying the
// outcome counts.
func (e *SyncEngine) SyncPending(ctx context.Context) error {
	if e.store == nil {
		e.logger.Warn("queue store unavailable, skipping sync pass")
		return nil
	}

	entries, err := e.store.ListRetryable(ctx)
	if err != nil {
		e.logger.Error("list retryable entries", logging.Error(err))
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	e.logger.Info("sync pass started", logging.Int("pending", len(entries)))

	successCount := 0
	failedCount := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
			if err := e.syncOne(ctx, entry); err != nil {
			failedCount++
			continue
		}
		successCount++
	}

	if e.hub != nil {
		e.hub.Publish(msg.SyncComplete(successCount, failedCount))
	}
	if e.notifier != nil {
		if err := e.notifier.NotifySyncSummary(ctx, successCount, failedCount); err != nil {
			e.logger.Warn("sync summary notification", logging.Error(err))
		}
	}

	e.logger.Info("sync pass finished",
		logging.Int("succeeded", successCount),
		logging.Int("failed", failedCount))
	return nil
}

func (e *SyncEngine) syncOne(ctx context.Context, entry *queue.Entry) error {
	if _, err := e.cache.Put(ctx, entry.URL); err != nil {
		e.recordFailure(ctx, entry.URL, err, false)
		return err
	}
	e.recordSuccess(ctx, entry.URL, queue.SourceBackgroundSync)
	return nil
}

// CacheDocument fetches and caches a URL outside the queue lifecycle. It
// backs the foreground's fire-and-forget caching command; completion is
// announced with a doc-cached broadcast.
func (e *SyncEngine) CacheDocument(ctx context.Context, url string) error {
	if _, err := e.cache.Put(ctx, url); err != nil {
		e.logger.Warn("cache document", logging.String(logging.FieldURL, url), logging.Error(err))
		return err
	}
	if e.hub != nil {
		e.hub.Publish(msg.DocCached(url, e.tenant))
	}
	return nil
}

// HandleFetchSuccess stores a managed download result and settles its queue
// entry. Implements the background-fetch callback surface.
func (e *SyncEngine) HandleFetchSuccess(ctx context.Context, url, contentType string, body io.Reader) error {
	if _, err := e.cache.PutResponse(url, contentType, body); err != nil {
		return err
	}
	e.recordSuccess(ctx, url, queue.SourceBackgroundFetch)
	return nil
}

// HandleFetchFailure settles a failed managed download against the queue.
// Managed downloads have their own per-transfer lifecycle, so every failure
// notifies the user, not just the one that exhausts the retries.
func (e *SyncEngine) HandleFetchFailure(ctx context.Context, url string, cause error) {
	e.recordFailure(ctx, url, cause, true)
}

// recordSuccess settles the queue entry and announces the document. The
// queue entry may already be gone (for example a document cached through the
// foreground path); the announcement still goes out because the document did
// arrive.
func (e *SyncEngine) recordSuccess(ctx context.Context, url string, source queue.Source) {
	if e.store != nil {
		if _, err := e.store.RecordSuccess(ctx, url, source); err != nil {
			e.logger.Error("record success", logging.String(logging.FieldURL, url), logging.Error(err))
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyDocumentReady(ctx, url, string(source)); err != nil {
			e.logger.Warn("document ready notification", logging.Error(err))
		}
	}
	if e.hub != nil {
		e.hub.Publish(msg.DocSynced(url, e.tenant, source))
	}
	e.logger.Info("document synced",
		logging.String(logging.FieldURL, url),
		logging.String(logging.FieldSource, string(source)))
}

// recordFailure bumps the retry counter. Sync-pass failures notify only when
// the counter crosses the ceiling; managed-download callers pass notifyEach
// to surface every failed transfer.
func (e *SyncEngine) recordFailure(ctx context.Context, url string, cause error, notifyEach bool) {
	if e.store == nil {
		return
	}
	updated, err := e.store.RecordFailure(ctx, url, cause)
	if err != nil {
		e.logger.Error("record failure", logging.String(logging.FieldURL, url), logging.Error(err))
		return
	}
	if updated == nil {
		return
	}

	e.logger.Warn("document sync failed",
		logging.String(logging.FieldURL, url),
		logging.Int("retry_count", updated.RetryCount),
		logging.Error(cause))

	if e.notifier != nil && (notifyEach || updated.RetryCount == queue.MaxRetryCount) {
		if err := e.notifier.NotifyDownloadFailed(ctx, url, updated.RetryCount, updated.LastError); err != nil {
			e.logger.Warn("download failed notification", logging.Error(err))
		}
	}
}
