package bgfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsync/internal/config"
	"docsync/internal/logging"
	"docsync/internal/wakeup"
)

// State is the lifecycle of a managed download job.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is a supervised per-URL transfer. It lives in the daemon, so it
// survives the foreground process that requested it.
type Job struct {
	ID         string
	URL        string
	Tenant     string
	State      State
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Callbacks receives transfer outcomes. The sync engine implements this; the
// manager itself knows nothing about queues or caches.
type Callbacks interface {
	HandleFetchSuccess(ctx context.Context, url, contentType string, body io.Reader) error
	HandleFetchFailure(ctx context.Context, url string, cause error)
}

// Manager runs managed background downloads identified by UUID.
type Manager struct {
	supported bool
	client    *http.Client
	logger    *slog.Logger

	mu        sync.Mutex
	jobs      map[string]*Job
	callbacks Callbacks
	wg        sync.WaitGroup
}

// NewManager builds a manager from config. When the capability is disabled,
// Start answers with wakeup.ErrUnsupported and callers fall back to sync-tag
// registration.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	timeout := time.Duration(cfg.Sync.FetchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Manager{
		supported: cfg.Sync.BackgroundFetch,
		client:    &http.Client{Timeout: timeout},
		logger:    logging.NewComponentLogger(logger, "bgfetch"),
		jobs:      make(map[string]*Job),
	}
}

// SetCallbacks wires the outcome receiver. Must be called before Start.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

// Supported reports whether managed downloads are available.
func (m *Manager) Supported() bool {
	return m.supported
}

// Start registers and launches a managed download. The returned ID
// identifies the job in Jobs listings.
func (m *Manager) Start(ctx context.Context, url, tenant string) (string, error) {
	if !m.supported {
		return "", fmt.Errorf("background fetch: %w", wakeup.ErrUnsupported)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return "", errors.New("background fetch: empty url")
	}

	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()
	if callbacks == nil {
		return "", errors.New("background fetch: callbacks not wired")
	}

	job := &Job{
		ID:        uuid.NewString(),
		URL:       url,
		Tenant:    tenant,
		State:     StateRunning,
		StartedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("background download started",
		logging.String("job_id", job.ID),
		logging.String(logging.FieldURL, url))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, job, callbacks)
	}()
	return job.ID, nil
}

func (m *Manager) run(ctx context.Context, job *Job, callbacks Callbacks) {
	err := m.transfer(ctx, job.URL, callbacks)
	now := time.Now().UTC()

	m.mu.Lock()
	job.FinishedAt = &now
	if err != nil {
		job.State = StateFailed
		job.Error = err.Error()
	} else {
		job.State = StateCompleted
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("background download failed",
			logging.String("job_id", job.ID),
			logging.String(logging.FieldURL, job.URL),
			logging.Error(err))
		callbacks.HandleFetchFailure(ctx, job.URL, err)
		return
	}

	m.logger.Info("background download completed",
		logging.String("job_id", job.ID),
		logging.String(logging.FieldURL, job.URL))
}

func (m *Manager) transfer(ctx context.Context, url string, callbacks Callbacks) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := callbacks.HandleFetchSuccess(ctx, url, resp.Header.Get("Content-Type"), resp.Body); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns snapshots of all jobs ordered by start time.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Wait blocks until all in-flight jobs finish. Used during shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}
