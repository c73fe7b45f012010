package ipc

import (
	"time"

	"docsync/internal/msg"
	"docsync/internal/queue"
)

// QueueEntry mirrors a pending download for IPC callers.
type QueueEntry struct {
	URL          string     `json:"url"`
	Tenant       string     `json:"tenant"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	LastError    string     `json:"last_error,omitempty"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	AddedAt      time.Time  `json:"added_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	Source       string     `json:"source,omitempty"`
	Retryable    bool       `json:"retryable"`
	Exhausted    bool       `json:"exhausted"`
}

// FromQueueEntry converts a store entry into its IPC shape.
func FromQueueEntry(entry *queue.Entry) QueueEntry {
	if entry == nil {
		return QueueEntry{}
	}
	return QueueEntry{
		URL:          entry.URL,
		Tenant:       entry.Tenant,
		Status:       string(entry.Status),
		RetryCount:   entry.RetryCount,
		LastError:    entry.LastError,
		LastRetryAt:  entry.LastRetryAt,
		AddedAt:      entry.AddedAt,
		UpdatedAt:    entry.UpdatedAt,
		DownloadedAt: entry.DownloadedAt,
		Source:       string(entry.Source),
		Retryable:    entry.Retryable(),
		Exhausted:    entry.Exhausted(),
	}
}

// BackgroundJob mirrors a managed download job for IPC callers.
type BackgroundJob struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Tenant     string     `json:"tenant"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CachePartition mirrors cache usage for one partition.
type CachePartition struct {
	Partition string `json:"partition"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon status information.
type StatusResponse struct {
	Running         bool             `json:"running"`
	PID             int              `json:"pid"`
	Online          bool             `json:"online"`
	Tenant          string           `json:"tenant"`
	QueueDBPath     string           `json:"queue_db_path"`
	LockPath        string           `json:"lock_path"`
	SocketPath      string           `json:"socket_path"`
	HTTPBind        string           `json:"http_bind"`
	QueueTotal      int              `json:"queue_total"`
	QueueRetryable  int              `json:"queue_retryable"`
	QueueExhausted  int              `json:"queue_exhausted"`
	BackgroundSync  bool             `json:"background_sync"`
	BackgroundFetch bool             `json:"background_fetch"`
	RegisteredTags  []string         `json:"registered_tags"`
	ActiveJobs      int              `json:"active_jobs"`
	CachePartitions []CachePartition `json:"cache_partitions"`
}

// CacheDocRequest fetches and caches one document immediately.
type CacheDocRequest struct {
	URL string `json:"url"`
}

// CacheDocResponse reports the caching outcome.
type CacheDocResponse struct {
	Cached  bool   `json:"cached"`
	Message string `json:"message"`
}

// SyncNowRequest runs one drain pass over retryable queue entries.
type SyncNowRequest struct{}

// SyncNowResponse reports that the pass ran.
type SyncNowResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// RegisterSyncRequest parks a sync-tag registration with the daemon.
type RegisterSyncRequest struct {
	Tag string `json:"tag"`
}

// RegisterSyncResponse reports registration outcome.
type RegisterSyncResponse struct {
	Registered bool   `json:"registered"`
	Message    string `json:"message"`
}

// BackgroundFetchRequest starts a managed download for one URL.
type BackgroundFetchRequest struct {
	URL string `json:"url"`
}

// BackgroundFetchResponse returns the job identifier.
type BackgroundFetchResponse struct {
	JobID string `json:"job_id"`
}

// JobListRequest lists managed download jobs.
type JobListRequest struct{}

// JobListResponse contains job snapshots.
type JobListResponse struct {
	Jobs []BackgroundJob `json:"jobs"`
}

// EventsRequest long-polls the broadcast journal from a cursor.
type EventsRequest struct {
	Since      int64 `json:"since"`
	Max        int   `json:"max"`
	WaitMillis int   `json:"wait_millis"`
}

// EventsResponse returns journal records and the next cursor.
type EventsResponse struct {
	Events []msg.Event `json:"events"`
	Next   int64       `json:"next"`
}

// QueueListRequest lists all queue entries.
type QueueListRequest struct{}

// QueueListResponse contains queue entries in insertion order.
type QueueListResponse struct {
	Entries []QueueEntry `json:"entries"`
}

// QueueRemoveRequest removes one entry by URL.
type QueueRemoveRequest struct {
	URL string `json:"url"`
}

// QueueRemoveResponse reports whether the entry existed.
type QueueRemoveResponse struct {
	Removed bool `json:"removed"`
}

// QueueClearRequest removes all entries.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearExhaustedRequest removes entries past the retry ceiling.
type QueueClearExhaustedRequest struct{}

// QueueClearExhaustedResponse reports number of removed entries.
type QueueClearExhaustedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total     int `json:"total"`
	Retryable int `json:"retryable"`
	Exhausted int `json:"exhausted"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalEntries     int      `json:"total_entries"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
