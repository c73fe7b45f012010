package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/connectivity"
	"docsync/internal/ipc"
	"docsync/internal/logging"
	"docsync/internal/queue"
	"docsync/internal/wakeup"
)

// Method names how an offline document request was scheduled for retrieval.
type Method string

const (
	// MethodBackgroundFetch means the daemon accepted a managed download job.
	MethodBackgroundFetch Method = "background-fetch"
	// MethodSyncRegistered means a sync tag was parked; the daemon drains the
	// queue when connectivity returns.
	MethodSyncRegistered Method = "sync-registered"
	// MethodQueuedOnly means the entry sits in the queue with no active
	// trigger; start/online drains will pick it up.
	MethodQueuedOnly Method = "queued-only"
)

// Outcome reports what happened to one document request.
type Outcome struct {
	URL       string
	Opened    bool
	FromCache bool
	Tenant    string
	Queued    bool
	Method    Method
	JobID     string
}

// DrainSummary reports the result of one foreground drain pass.
type DrainSummary struct {
	Attempted int
	Confirmed int
	Remaining int
}

// DaemonClient is the slice of the IPC surface the orchestrator uses.
type DaemonClient interface {
	CacheDoc(url string) (*ipc.CacheDocResponse, error)
	RegisterSync(tag string) (*ipc.RegisterSyncResponse, error)
	BackgroundFetch(url string) (*ipc.BackgroundFetchResponse, error)
	Close() error
}

// Orchestrator drives the foreground document flow: open what is reachable,
// queue what is not, and hand retrieval to the daemon through the strongest
// available trigger. Every daemon interaction is best-effort; a missing
// daemon degrades to direct fetching, never to a blocked caller.
type Orchestrator struct {
	cfg    *config.Config
	store  *queue.Store
	cache  *cache.Store
	logger *slog.Logger

	dial  func() (DaemonClient, error)
	probe func(ctx context.Context) bool
}

// Option customizes orchestrator construction.
type Option func(*Orchestrator)

// WithDialer overrides how the orchestrator reaches the daemon.
func WithDialer(dial func() (DaemonClient, error)) Option {
	return func(o *Orchestrator) {
		o.dial = dial
	}
}

// WithProbe overrides the connectivity check.
func WithProbe(probe func(ctx context.Context) bool) Option {
	return func(o *Orchestrator) {
		o.probe = probe
	}
}

// New builds an orchestrator. The queue store may be nil; queueing then
// degrades to direct-fetch-or-drop, matching a storage failure at startup.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("orchestrator requires config")
	}
	cacheStore, err := cache.NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	monitor := connectivity.NewMonitor(cfg, logger)
	o := &Orchestrator{
		cfg:    cfg,
		store:  store,
		cache:  cacheStore,
		logger: logging.NewComponentLogger(logger, "orchestrator"),
		dial: func() (DaemonClient, error) {
			return ipc.Dial(cfg.SocketPath())
		},
		probe: monitor.Probe,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// OpenDocument resolves one document request. Cached documents open
// immediately from any tenant partition. Online misses open from the network
// and are cached for next time. Offline misses are queued and scheduled for
// background retrieval.
func (o *Orchestrator) OpenDocument(ctx context.Context, url string) (Outcome, error) {
	if err := queue.ValidateURL(url); err != nil {
		return Outcome{}, err
	}

	if tenant, ok := o.cache.HasAnyTenant(url); ok {
		return Outcome{URL: url, Opened: true, FromCache: true, Tenant: tenant}, nil
	}

	if o.probe(ctx) {
		o.ensureCached(ctx, url)
		return Outcome{URL: url, Opened: true, Tenant: o.cfg.App.Tenant}, nil
	}

	if o.store != nil {
		if _, err := o.store.Enqueue(ctx, url, o.cfg.App.Tenant); err != nil {
			o.logger.Warn("failed to queue document",
				logging.String(logging.FieldURL, url),
				logging.Error(err))
		}
	}

	method, jobID := o.scheduleRetrieval(url)
	return Outcome{URL: url, Queued: true, Method: method, JobID: jobID}, nil
}

// ensureCached asks the daemon to cache the document; when the daemon is
// unreachable it fetches directly. Failures are logged, not returned: the
// caller already has the document open from the network.
func (o *Orchestrator) ensureCached(ctx context.Context, url string) {
	client, err := o.dial()
	if err == nil {
		defer client.Close()
		resp, err := client.CacheDoc(url)
		if err == nil && resp.Cached {
			return
		}
		if err != nil {
			o.logger.Warn("daemon caching request failed",
				logging.String(logging.FieldURL, url),
				logging.Error(err))
		}
		return
	}

	if _, err := o.cache.Put(ctx, url); err != nil {
		o.logger.Warn("direct caching failed",
			logging.String(logging.FieldURL, url),
			logging.Error(err))
	}
}

// scheduleRetrieval arranges for a queued URL to be fetched later, preferring
// a managed download over a parked sync tag. Either may be unsupported; the
// entry stays queued for start/online drains regardless.
func (o *Orchestrator) scheduleRetrieval(url string) (Method, string) {
	client, err := o.dial()
	if err != nil {
		o.logger.Warn("daemon unreachable, entry stays queued",
			logging.String(logging.FieldURL, url),
			logging.Error(err))
		return MethodQueuedOnly, ""
	}
	defer client.Close()

	if resp, err := client.BackgroundFetch(url); err == nil && resp.JobID != "" {
		return MethodBackgroundFetch, resp.JobID
	}

	if resp, err := client.RegisterSync(wakeup.TagSyncPending); err == nil && resp.Registered {
		return MethodSyncRegistered, ""
	}

	return MethodQueuedOnly, ""
}

// Drain walks every retryable queue entry, caches what it can, and removes
// confirmed entries. It runs on app start and when the foreground observes
// connectivity returning; the grace period bounds the whole pass so a slow
// origin never stalls startup.
func (o *Orchestrator) Drain(ctx context.Context, source queue.Source) (DrainSummary, error) {
	var summary DrainSummary
	if o.store == nil {
		return summary, nil
	}

	entries, err := o.store.ListRetryable(ctx)
	if err != nil {
		o.logger.Warn("listing queue for drain failed", logging.Error(err))
		return summary, nil
	}
	if len(entries) == 0 {
		return summary, nil
	}

	grace := time.Duration(o.cfg.Sync.DrainGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 30 * time.Second
	}
	drainCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	client, dialErr := o.dial()
	if dialErr == nil {
		defer client.Close()
		// Re-arm the daemon-side trigger so anything this pass leaves
		// behind still gets drained when connectivity next returns.
		if _, err := client.RegisterSync(wakeup.TagSyncPending); err != nil {
			o.logger.Debug("sync re-registration failed", logging.Error(err))
		}
	}

	for _, entry := range entries {
		if drainCtx.Err() != nil {
			break
		}
		summary.Attempted++

		if _, ok := o.cache.HasAnyTenant(entry.URL); !ok {
			if dialErr == nil {
				if resp, err := client.CacheDoc(entry.URL); err != nil || !resp.Cached {
					continue
				}
			} else if _, err := o.cache.Put(drainCtx, entry.URL); err != nil {
				continue
			}
		}

		if _, ok := o.cache.HasAnyTenant(entry.URL); !ok {
			continue
		}
		if _, err := o.store.Remove(drainCtx, entry.URL); err != nil {
			o.logger.Warn("failed to remove drained entry",
				logging.String(logging.FieldURL, entry.URL),
				logging.Error(err))
			continue
		}
		summary.Confirmed++
		o.logger.Info("queued document recovered",
			logging.String(logging.FieldURL, entry.URL),
			logging.String(logging.FieldSource, string(source)))
	}

	summary.Remaining = len(entries) - summary.Confirmed
	return summary, nil
}
