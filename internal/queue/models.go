package queue

import (
	"strings"
	"time"
)

// MaxRetryCount is the retry ceiling for a pending download. Entries at or
// past the ceiling are excluded from sync passes but stay in the table so
// operators can inspect or clear them.
const MaxRetryCount = 3

// Status represents the lifecycle of a pending download.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Source identifies which trigger path fetched a document.
type Source string

const (
	SourceBackgroundSync  Source = "background-sync"
	SourceBackgroundFetch Source = "background-fetch"
	SourceOnlineEvent     Source = "online-event"
	SourceAppStart        Source = "app-start"
)

var sourceSet = map[Source]struct{}{
	SourceBackgroundSync:  {},
	SourceBackgroundFetch: {},
	SourceOnlineEvent:     {},
	SourceAppStart:        {},
}

// ParseSource converts a string into a known Source.
func ParseSource(value string) (Source, bool) {
	normalized := Source(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := sourceSet[normalized]
	return normalized, ok
}

// RetryMeta carries the retry bookkeeping for a queued URL. Retryability is a
// pure function of this record so callers never encode the ceiling themselves.
type RetryMeta struct {
	Status      Status
	RetryCount  int
	LastError   string
	LastRetryAt *time.Time
}

// Retryable reports whether the entry is still eligible for a sync pass.
func (m RetryMeta) Retryable() bool {
	return m.Status == StatusPending && m.RetryCount < MaxRetryCount
}

// Exhausted reports whether the entry has hit the retry ceiling.
func (m RetryMeta) Exhausted() bool {
	return m.Status == StatusPending && m.RetryCount >= MaxRetryCount
}

// Entry is a pending download persisted in SQLite, keyed by URL.
type Entry struct {
	URL          string
	Tenant       string
	AddedAt      time.Time
	UpdatedAt    time.Time
	DownloadedAt *time.Time
	Source       Source
	RetryMeta
}

// HealthSummary describes aggregated queue counts.
type HealthSummary struct {
	Total     int
	Retryable int
	Exhausted int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalEntries     int
	Error            string
}
