// Package queue persists pending document downloads in SQLite.
//
// The Store manages the pending_downloads table, keyed by document URL. Both
// the CLI and the daemon open the same database file; the row is the shared
// contract between the foreground enqueue path and the background sync
// engine. Schema changes ship as embedded migrations; upgrades preserve
// existing rows, with new columns reading as zero values.
//
// Retryability lives on the record: an entry is eligible for a sync pass
// while it is pending and below MaxRetryCount. Exhausted entries stay in the
// table for inspection until an operator clears them.
package queue
