package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"docsync/internal/bgfetch"
	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/connectivity"
	"docsync/internal/logging"
	"docsync/internal/msg"
	"docsync/internal/notifications"
	"docsync/internal/queue"
	"docsync/internal/router"
	"docsync/internal/wakeup"
	"docsync/internal/worker"
)

// Daemon coordinates the background sync services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	cache    *cache.Store
	notifier notifications.Service
	hub      *msg.Hub
	engine   *worker.SyncEngine
	registry *wakeup.Registrar
	monitor  *connectivity.Monitor
	fetches  *bgfetch.Manager
	router   *router.Router

	httpServer *http.Server
	logPath    string
	lockPath   string
	lock       *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	Online          bool
	Tenant          string
	QueueDBPath     string
	LockFilePath    string
	SocketPath      string
	HTTPBind        string
	Queue           queue.HealthSummary
	BackgroundSync  bool
	BackgroundFetch bool
	RegisteredTags  []string
	ActiveJobs      int
	CachePartitions []cache.Stats
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and queue store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	cacheStore, err := cache.NewStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache store: %w", err)
	}

	notifier := notifications.NewService(cfg)
	hub := msg.NewHub()
	engine := worker.NewSyncEngine(store, cacheStore, notifier, hub, cfg.App.Tenant, logger)
	fetches := bgfetch.NewManager(cfg, logger)
	fetches.SetCallbacks(engine)

	rt, err := router.New(cfg, cacheStore, logger)
	if err != nil {
		return nil, fmt.Errorf("init router: %w", err)
	}
	rt.SetCommandHandler(engine.CacheDocument)

	lockPath := filepath.Join(cfg.Paths.DataDir, "docsyncd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		cache:    cacheStore,
		notifier: notifier,
		hub:      hub,
		engine:   engine,
		registry: wakeup.NewRegistrar(cfg.Sync.BackgroundSync),
		monitor:  connectivity.NewMonitor(cfg, logger),
		fetches:  fetches,
		router:   rt,
		httpServer: &http.Server{
			Addr:    cfg.Paths.HTTPBind,
			Handler: rt.Handler(),
		},
		logPath:  filepath.Join(cfg.Paths.LogDir, "docsync.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docsync daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if removed, err := d.cache.SweepStale(); err != nil {
		d.logger.Warn("stale cache sweep failed", logging.Error(err))
	} else if removed > 0 {
		d.logger.Info("stale cache partitions removed", logging.Int("partitions", removed))
	}

	d.monitor.Subscribe(func(online bool) {
		if online {
			d.onConnectivityRestored()
		}
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(d.ctx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.periodicSync()
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("http server stopped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "http_server_failed"))
		}
	}()

	d.running.Store(true)
	d.logger.Info("docsync daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.HTTPBind))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http server shutdown", logging.Error(err))
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.fetches.Wait()
	d.router.Wait()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("docsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// onConnectivityRestored fires parked sync-tag registrations. Tags are
// one-shot; a drain that leaves work behind re-registers on the foreground's
// next startup pass.
func (d *Daemon) onConnectivityRestored() {
	tags := d.registry.Consume()
	if len(tags) == 0 {
		return
	}
	d.logger.Info("firing sync registrations", logging.Int("tags", len(tags)))
	for _, tag := range tags {
		if tag != wakeup.TagSyncPending {
			d.logger.Warn("unknown sync tag ignored", logging.String("tag", tag))
			continue
		}
		if err := d.engine.SyncPending(d.ctx); err != nil {
			d.logger.Warn("triggered sync pass failed", logging.Error(err))
		}
	}
}

// periodicSync runs drains on the configured interval as a safety net for
// entries whose registration was lost.
func (d *Daemon) periodicSync() {
	interval := time.Duration(d.cfg.Sync.SyncInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if !d.monitor.Online() {
				continue
			}
			if err := d.engine.SyncPending(d.ctx); err != nil {
				d.logger.Warn("periodic sync pass failed", logging.Error(err))
			}
		}
	}
}

// CacheDocument fetches and caches a document outside the queue lifecycle.
func (d *Daemon) CacheDocument(ctx context.Context, url string) error {
	if err := queue.ValidateURL(url); err != nil {
		return err
	}
	return d.engine.CacheDocument(ctx, url)
}

// SyncNow runs one drain pass immediately.
func (d *Daemon) SyncNow(ctx context.Context) error {
	return d.engine.SyncPending(ctx)
}

// RegisterSyncTag parks a sync-tag registration. When the daemon is already
// online the tag fires immediately on a background goroutine.
func (d *Daemon) RegisterSyncTag(tag string) error {
	if err := d.registry.Register(tag); err != nil {
		return err
	}
	if d.running.Load() && d.monitor.Online() {
		go d.onConnectivityRestored()
	}
	return nil
}

// StartBackgroundFetch launches a managed download for a queued URL.
func (d *Daemon) StartBackgroundFetch(url string) (string, error) {
	if err := queue.ValidateURL(url); err != nil {
		return "", err
	}
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return d.fetches.Start(ctx, url, d.cfg.App.Tenant)
}

// Events long-polls the broadcast journal.
func (d *Daemon) Events(ctx context.Context, since int64, max int, wait time.Duration) ([]msg.Event, int64, error) {
	return d.hub.Fetch(ctx, since, max, wait)
}

// ListQueue returns all queue entries.
func (d *Daemon) ListQueue(ctx context.Context) ([]*queue.Entry, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.List(ctx)
}

// RemoveQueueEntry removes one entry by URL.
func (d *Daemon) RemoveQueueEntry(ctx context.Context, url string) (bool, error) {
	if d.store == nil {
		return false, errors.New("queue store unavailable")
	}
	return d.store.Remove(ctx, url)
}

// ClearQueue removes all queue entries.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearExhausted removes entries past the retry ceiling.
func (d *Daemon) ClearExhausted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearExhausted(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	if d.store == nil {
		return queue.HealthSummary{}, errors.New("queue store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	if d.store == nil {
		return queue.DatabaseHealth{}, errors.New("queue store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Jobs returns snapshots of managed download jobs.
func (d *Daemon) Jobs() []bgfetch.Job {
	return d.fetches.Jobs()
}

// Online reports the last observed connectivity state.
func (d *Daemon) Online() bool {
	return d.monitor.Online()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		Online:          d.monitor.Online(),
		Tenant:          d.cfg.App.Tenant,
		QueueDBPath:     d.cfg.QueueDBPath(),
		LockFilePath:    d.lockPath,
		SocketPath:      d.cfg.SocketPath(),
		HTTPBind:        d.cfg.Paths.HTTPBind,
		BackgroundSync:  d.cfg.Sync.BackgroundSync,
		BackgroundFetch: d.cfg.Sync.BackgroundFetch,
		RegisteredTags:  d.registry.Tags(),
		ActiveJobs:      len(d.fetches.Jobs()),
	}
	if health, err := d.QueueHealth(ctx); err == nil {
		status.Queue = health
	}
	if stats, err := d.cache.StatsAll(); err == nil {
		status.CachePartitions = stats
	}
	return status
}
