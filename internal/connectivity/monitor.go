package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"docsync/internal/config"
	"docsync/internal/logging"
)

// Monitor probes the upstream origin on an interval and tracks the current
// online state. Transitions are delivered to subscribers; the offline-to-
// online edge is what drives queued-download drains.
type Monitor struct {
	probeURL string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu          sync.Mutex
	online      bool
	initialized bool
	subscribers []func(online bool)
}

// NewMonitor builds a connectivity monitor from config.
func NewMonitor(cfg *config.Config, logger *slog.Logger) *Monitor {
	interval := time.Duration(cfg.Sync.ProbeInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := time.Duration(cfg.Sync.ProbeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		probeURL: cfg.Sync.ProbeURL,
		interval: interval,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "connectivity"),
	}
}

// Subscribe registers a transition callback. Callbacks run on the monitor
// goroutine; subscribers must not block. Subscribe before Run.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Online returns the last observed state. Before the first probe completes
// the monitor reports offline.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Probe performs one connectivity check without recording a transition.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Any response means the origin is reachable; even a 5xx implies
	// working connectivity.
	return true
}

// Check probes immediately and records the result, firing subscriber
// callbacks on a transition. The daemon uses it for on-demand re-checks
// before drains.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.Probe(ctx)
	m.observe(online)
	return online
}

// Run probes until the context is done. The first probe happens immediately
// so the daemon knows its state before the first interval elapses.
func (m *Monitor) Run(ctx context.Context) {
	m.observe(m.Probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(m.Probe(ctx))
		}
	}
}

func (m *Monitor) observe(online bool) {
	m.mu.Lock()
	changed := !m.initialized || online != m.online
	m.initialized = true
	m.online = online
	subscribers := make([]func(bool), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("connectivity restored")
	} else {
		m.logger.Warn("connectivity lost")
	}
	for _, fn := range subscribers {
		fn(online)
	}
}
