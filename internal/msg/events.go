package msg

import (
	"time"

	"docsync/internal/queue"
)

// EventType discriminates the broadcast variants. The set is closed; the
// consumers switch on it and ignore unknown values from newer daemons.
type EventType string

const (
	// EventDocSynced fires when the sync engine finished downloading and
	// caching one queued document.
	EventDocSynced EventType = "doc-synced"
	// EventSyncComplete fires after a full sync pass with its outcome counts.
	EventSyncComplete EventType = "sync-complete"
	// EventDocCached fires when a foreground-requested caching command
	// finished, outside any queue entry.
	EventDocCached EventType = "doc-cached"
)

// Event is one journal record broadcast to foreground listeners. Seq is
// assigned by the hub and strictly increases; consumers use it as a resume
// cursor.
type Event struct {
	Seq  int64     `json:"seq"`
	Time time.Time `json:"time"`
	Type EventType `json:"type"`

	// DocSynced / DocCached fields.
	URL    string       `json:"url,omitempty"`
	Tenant string       `json:"tenant,omitempty"`
	Source queue.Source `json:"source,omitempty"`

	// SyncComplete fields.
	SuccessCount int `json:"success_count,omitempty"`
	FailedCount  int `json:"failed_count,omitempty"`
}

// DocSynced builds a doc-synced event.
func DocSynced(url, tenant string, source queue.Source) Event {
	return Event{Type: EventDocSynced, URL: url, Tenant: tenant, Source: source}
}

// SyncComplete builds a sync-complete event.
func SyncComplete(successCount, failedCount int) Event {
	return Event{Type: EventSyncComplete, SuccessCount: successCount, FailedCount: failedCount}
}

// DocCached builds a doc-cached event.
func DocCached(url, tenant string) Event {
	return Event{Type: EventDocCached, URL: url, Tenant: tenant}
}
