package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"docsync/internal/config"
	"docsync/internal/logging"
)

const (
	docPartitionPrefix  = "docs"
	corePartitionPrefix = "core"
)

// CoreVersion names the current core-asset partition generation. Bumping it
// makes SweepStale drop the previous generation on the next daemon start;
// document partitions are never swept.
const CoreVersion = "v2"

// ErrNotCached indicates the requested URL has no entry in the partition.
var ErrNotCached = errors.New("cache: entry not present")

// Meta is the JSON sidecar stored next to each entry body.
type Meta struct {
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Stats summarizes one partition.
type Stats struct {
	Partition string
	Entries   int
	Bytes     int64
}

// Store is a disk-backed, URL-keyed binary cache partitioned per tenant.
// Entry bodies are keyed by the xxhash64 of the URL; the sidecar keeps the
// original URL so partitions can be scanned and matched.
type Store struct {
	root   string
	tenant string
	client *http.Client
	logger *slog.Logger
}

// NewStore builds a cache store rooted at the configured cache directory for
// the configured tenant.
func NewStore(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("cache: config is nil")
	}
	if err := os.MkdirAll(cfg.Paths.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache root: %w", err)
	}
	timeout := time.Duration(cfg.Sync.FetchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Store{
		root:   cfg.Paths.CacheDir,
		tenant: cfg.App.Tenant,
		client: &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "cache"),
	}, nil
}

// Tenant returns the active tenant partition name component.
func (s *Store) Tenant() string {
	return s.tenant
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

func docPartition(tenant string) string {
	if strings.TrimSpace(tenant) == "" {
		tenant = "default"
	}
	return docPartitionPrefix + "-" + tenant
}

// CorePartition returns the versioned core-asset partition name.
func CorePartition() string {
	return corePartitionPrefix + "-" + CoreVersion
}

func entryKey(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.TrimSpace(url)))
}

func (s *Store) partitionDir(partition string) string {
	return filepath.Join(s.root, partition)
}

func (s *Store) bodyPath(partition, url string) string {
	return filepath.Join(s.partitionDir(partition), entryKey(url)+".bin")
}

func (s *Store) metaPath(partition, url string) string {
	return filepath.Join(s.partitionDir(partition), entryKey(url)+".json")
}

// Has reports whether the URL is cached in the active tenant partition.
func (s *Store) Has(url string) bool {
	return s.hasIn(docPartition(s.tenant), url)
}

func (s *Store) hasIn(partition, url string) bool {
	info, err := os.Stat(s.bodyPath(partition, url))
	return err == nil && !info.IsDir()
}

// HasAnyTenant scans every document partition for the URL. A document cached
// under one tenant still serves users opening it under another; the tenant
// that owns the hit is returned.
func (s *Store) HasAnyTenant(url string) (string, bool) {
	for _, partition := range s.docPartitions() {
		if s.hasIn(partition, url) {
			return strings.TrimPrefix(partition, docPartitionPrefix+"-"), true
		}
	}
	return "", false
}

func (s *Store) docPartitions() []string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	var partitions []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), docPartitionPrefix+"-") {
			partitions = append(partitions, entry.Name())
		}
	}
	// Active tenant first so Has-style lookups prefer it.
	sort.SliceStable(partitions, func(i, j int) bool {
		active := docPartition(s.tenant)
		if partitions[i] == active {
			return partitions[j] != active
		}
		return false
	})
	return partitions
}

// Put fetches the URL and stores the body in the active tenant partition.
// The request carries no credentials or client auth state; documents are
// fetched as the anonymous origin sees them. Non-2xx responses are errors.
func (s *Store) Put(ctx context.Context, url string) (*Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	return s.PutResponse(url, resp.Header.Get("Content-Type"), resp.Body)
}

// PutResponse stores an already-fetched body in the active tenant partition.
// The body is written to a temp file first so a torn write never leaves a
// half-entry behind a valid sidecar.
func (s *Store) PutResponse(url, contentType string, body io.Reader) (*Meta, error) {
	partition := docPartition(s.tenant)
	return s.putIn(partition, url, contentType, body)
}

// PutCore stores a body in the versioned core-asset partition.
func (s *Store) PutCore(url, contentType string, body io.Reader) (*Meta, error) {
	return s.putIn(CorePartition(), url, contentType, body)
}

func (s *Store) putIn(partition, url, contentType string, body io.Reader) (*Meta, error) {
	dir := s.partitionDir(partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure partition %s: %w", partition, err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return nil, fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()
	size, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("write entry body: %w", err)
	}

	meta := &Meta{
		URL:         strings.TrimSpace(url),
		ContentType: contentType,
		Size:        size,
		FetchedAt:   time.Now().UTC(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("marshal sidecar: %w", err)
	}

	if err := os.Rename(tmpName, s.bodyPath(partition, url)); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("commit entry body: %w", err)
	}
	if err := os.WriteFile(s.metaPath(partition, url), metaJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write sidecar: %w", err)
	}

	s.logger.Debug("cached entry",
		logging.String(logging.FieldURL, meta.URL),
		logging.String("partition", partition),
		logging.Int64("bytes", size))
	return meta, nil
}

// Open reads an entry from the active tenant partition.
func (s *Store) Open(url string) (io.ReadCloser, *Meta, error) {
	return s.openIn(docPartition(s.tenant), url)
}

// OpenAnyTenant reads an entry from whichever document partition holds it,
// preferring the active tenant.
func (s *Store) OpenAnyTenant(url string) (io.ReadCloser, *Meta, error) {
	for _, partition := range s.docPartitions() {
		body, meta, err := s.openIn(partition, url)
		if err == nil {
			return body, meta, nil
		}
		if !errors.Is(err, ErrNotCached) {
			return nil, nil, err
		}
	}
	return nil, nil, ErrNotCached
}

// OpenCore reads an entry from the current core-asset partition.
func (s *Store) OpenCore(url string) (io.ReadCloser, *Meta, error) {
	return s.openIn(CorePartition(), url)
}

func (s *Store) openIn(partition, url string) (io.ReadCloser, *Meta, error) {
	body, err := os.Open(s.bodyPath(partition, url))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotCached
		}
		return nil, nil, fmt.Errorf("open entry: %w", err)
	}

	meta := &Meta{URL: url}
	if raw, err := os.ReadFile(s.metaPath(partition, url)); err == nil {
		_ = json.Unmarshal(raw, meta)
	}
	return body, meta, nil
}

// Remove deletes an entry from the active tenant partition. Removing an
// absent entry is a no-op.
func (s *Store) Remove(url string) error {
	partition := docPartition(s.tenant)
	for _, path := range []string{s.bodyPath(partition, url), s.metaPath(partition, url)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove entry: %w", err)
		}
	}
	return nil
}

// Clear removes the active tenant partition entirely.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.partitionDir(docPartition(s.tenant))); err != nil {
		return fmt.Errorf("clear partition: %w", err)
	}
	return nil
}

// StatsAll summarizes every partition under the cache root.
func (s *Store) StatsAll() ([]Stats, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read cache root: %w", err)
	}

	var all []Stats
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stat := Stats{Partition: entry.Name()}
		files, err := os.ReadDir(filepath.Join(s.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read partition %s: %w", entry.Name(), err)
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".bin") {
				continue
			}
			stat.Entries++
			if info, err := file.Info(); err == nil {
				stat.Bytes += info.Size()
			}
		}
		all = append(all, stat)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Partition < all[j].Partition })
	return all, nil
}
