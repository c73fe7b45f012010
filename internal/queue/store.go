package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"docsync/internal/config"
)

// Store manages pending download persistence backed by SQLite. Both the CLI
// and the daemon open the same database; WAL mode and a busy timeout keep the
// concurrent access workable.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath())
}

// OpenPath connects to the queue database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Enqueue records a URL as a pending download. The operation is idempotent:
// re-enqueueing an existing URL overwrites the row and resets its retry
// state, matching the contract that a fresh user request restores full retry
// budget.
func (s *Store) Enqueue(ctx context.Context, rawURL, tenant string) (*Entry, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(tenant) == "" {
		tenant = "default"
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pending_downloads (
            url, tenant, status, added_at, updated_at,
            retry_count, last_error, last_retry_at, downloaded_at, source
        ) VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, NULL, NULL)
        ON CONFLICT(url) DO UPDATE SET
            tenant = excluded.tenant,
            status = excluded.status,
            added_at = excluded.added_at,
            updated_at = excluded.updated_at,
            retry_count = 0,
            last_error = NULL,
            last_retry_at = NULL,
            downloaded_at = NULL,
            source = NULL`,
		strings.TrimSpace(rawURL),
		tenant,
		StatusPending,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue download: %w", err)
	}
	return s.Get(ctx, rawURL)
}

// Get fetches a queue entry by URL. Returns nil when the URL is not queued.
func (s *Store) Get(ctx context.Context, rawURL string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM pending_downloads WHERE url = ?`, strings.TrimSpace(rawURL))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// ListRetryable returns pending entries below the retry ceiling in insertion
// order. Exhausted entries are excluded but never deleted here.
func (s *Store) ListRetryable(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM pending_downloads
         WHERE status = ? AND retry_count < ?
         ORDER BY added_at, url`,
		StatusPending,
		MaxRetryCount,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// List returns all queue entries in insertion order.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM pending_downloads ORDER BY added_at, url`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Remove deletes an entry by URL. Removing an absent URL is a no-op.
func (s *Store) Remove(ctx context.Context, rawURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_downloads WHERE url = ?`, strings.TrimSpace(rawURL))
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecordFailure increments the retry counter and stores the failure detail.
// If the entry vanished between listing and recording, nothing happens and
// nil is returned. The returned entry reflects the post-increment state so
// callers can detect the exact ceiling crossing.
func (s *Store) RecordFailure(ctx context.Context, rawURL string, cause error) (*Entry, error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE pending_downloads
         SET retry_count = retry_count + 1, last_error = ?, last_retry_at = ?, updated_at = ?
         WHERE url = ?`,
		nullableString(message),
		now,
		now,
		strings.TrimSpace(rawURL),
	)
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.Get(ctx, rawURL)
}

// RecordSuccess marks an entry completed with its download source, then
// removes it. The completed snapshot is written before the delete so a crash
// between the two phases leaves an inspectable completed row rather than a
// phantom pending one.
func (s *Store) RecordSuccess(ctx context.Context, rawURL string, source Source) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin success tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`UPDATE pending_downloads
         SET status = ?, source = ?, downloaded_at = ?, updated_at = ?
         WHERE url = ?`,
		StatusCompleted,
		string(source),
		now,
		now,
		strings.TrimSpace(rawURL),
	)
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM pending_downloads WHERE url = ?`, strings.TrimSpace(rawURL))
	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("read completed entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_downloads WHERE url = ?`, strings.TrimSpace(rawURL)); err != nil {
		return nil, fmt.Errorf("delete completed entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit success tx: %w", err)
	}
	return entry, nil
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM pending_downloads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT
            COUNT(1),
            COALESCE(SUM(CASE WHEN status = ? AND retry_count < ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = ? AND retry_count >= ? THEN 1 ELSE 0 END), 0)
         FROM pending_downloads`,
		StatusPending, MaxRetryCount,
		StatusPending, MaxRetryCount,
	)
	var health HealthSummary
	if err := row.Scan(&health.Total, &health.Retryable, &health.Exhausted); err != nil {
		return HealthSummary{}, fmt.Errorf("queue health: %w", err)
	}
	return health, nil
}

// Clear removes all entries from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_downloads`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// ClearExhausted removes entries that hit the retry ceiling.
func (s *Store) ClearExhausted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM pending_downloads WHERE status = ? AND retry_count >= ?`,
		StatusPending,
		MaxRetryCount,
	)
	if err != nil {
		return 0, fmt.Errorf("clear exhausted: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: "migrations",
	}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	var version string
	row := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1")
	if err := row.Scan(&version); err == nil {
		health.SchemaVersion = version
	}

	var tableName string
	row = s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'pending_downloads'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		colsRows, err := s.db.QueryContext(connCtx, "PRAGMA table_info(pending_downloads)")
		if err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("table info: %w", err)
		}
		defer colsRows.Close()

		var columns []string
		for colsRows.Next() {
			var (
				cid     int
				name    string
				typeStr string
				notNull int
				dflt    any
				pk      int
			)
			if err := colsRows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
				health.Error = err.Error()
				return health, fmt.Errorf("scan table info: %w", err)
			}
			columns = append(columns, name)
		}
		if err := colsRows.Err(); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("iterate table info: %w", err)
		}
		health.ColumnsPresent = append(health.ColumnsPresent, columns...)

		expected := []string{"url", "tenant", "status", "added_at", "updated_at", "retry_count", "last_error", "last_retry_at", "downloaded_at", "source"}
		missingMap := make(map[string]struct{}, len(expected))
		for _, col := range expected {
			missingMap[col] = struct{}{}
		}
		for _, col := range columns {
			delete(missingMap, col)
		}
		for col := range missingMap {
			health.MissingColumns = append(health.MissingColumns, col)
		}

		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM pending_downloads")
		if err := row.Scan(&health.TotalEntries); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count entries: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

const entryColumns = "url, tenant, status, added_at, updated_at, retry_count, last_error, last_retry_at, downloaded_at, source"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		rawURL       string
		tenant       sql.NullString
		statusStr    string
		addedRaw     sql.NullString
		updatedRaw   sql.NullString
		retryCount   sql.NullInt64
		lastError    sql.NullString
		lastRetryRaw sql.NullString
		downloadedAt sql.NullString
		sourceStr    sql.NullString
	)

	if err := scanner.Scan(
		&rawURL,
		&tenant,
		&statusStr,
		&addedRaw,
		&updatedRaw,
		&retryCount,
		&lastError,
		&lastRetryRaw,
		&downloadedAt,
		&sourceStr,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		URL:    rawURL,
		Tenant: tenant.String,
		Source: Source(sourceStr.String),
	}
	entry.Status = Status(statusStr)
	entry.RetryCount = int(retryCount.Int64)
	entry.LastError = lastError.String

	if added, err := parseTimeString(addedRaw.String); err == nil {
		entry.AddedAt = added
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	if lastRetryRaw.Valid {
		if retried, err := parseTimeString(lastRetryRaw.String); err == nil {
			entry.LastRetryAt = &retried
		}
	}
	if downloadedAt.Valid {
		if downloaded, err := parseTimeString(downloadedAt.String); err == nil {
			entry.DownloadedAt = &downloaded
		}
	}
	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
