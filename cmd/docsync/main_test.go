package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docsync/internal/config"
	"docsync/internal/daemon"
	"docsync/internal/ipc"
	"docsync/internal/logging"
	"docsync/internal/queue"
	"docsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithTenant("plant-a"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	socketPath := filepath.Join(cfg.Paths.DataDir, "cli.sock")
	cfg.Paths.SocketPath = socketPath
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}

	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI socket test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		store.Close()
	})

	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
cache_dir = %q
socket_path = %q
http_bind = %q

[app]
tenant = %q
upstream_url = %q

[sync]
probe_url = %q
probe_timeout = 1
`,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.CacheDir,
		cfg.Paths.SocketPath,
		cfg.Paths.HTTPBind,
		cfg.App.Tenant,
		cfg.App.UpstreamURL,
		cfg.Sync.ProbeURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestCLIQueueListAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.Enqueue(ctx, "https://docs.example.com/t/alpha", "plant-a"); err != nil {
		t.Fatalf("Enqueue alpha: %v", err)
	}
	if _, err := env.store.Enqueue(ctx, "https://docs.example.com/t/beta", "plant-a"); err != nil {
		t.Fatalf("Enqueue beta: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "alpha")
	requireContains(t, out, "beta")
	requireContains(t, out, "0/3")

	out, _, err = runCLI(t, []string{"queue", "remove", "https://docs.example.com/t/alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed")

	out, _, err = runCLI(t, []string{"queue", "remove", "https://docs.example.com/t/alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove repeat: %v", err)
	}
	requireContains(t, out, "No queue entry for that URL")

	out, _, err = runCLI(t, []string{"--json", "queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var entries []ipc.QueueEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode queue list JSON: %v\n%s", err, out)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after removal, got %d", len(entries))
	}
	if entries[0].URL != "https://docs.example.com/t/beta" {
		t.Fatalf("unexpected surviving entry %q", entries[0].URL)
	}
}

func TestCLIQueueListFallsBackWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenant("plant-a"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Paths.SocketPath = filepath.Join(cfg.Paths.DataDir, "missing.sock")
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	if _, err := store.Enqueue(context.Background(), "https://docs.example.com/t/gamma", "plant-a"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	store.Close()

	out, _, err := runCLI(t, []string{"queue", "list"}, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("queue list without daemon: %v", err)
	}
	requireContains(t, out, "gamma")
	requireContains(t, out, "pending")
}

func TestCLIQueueHealth(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "pending_downloads table present: yes")
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Total entries: 0")
	requireContains(t, out, "Missing columns: none")
}

func TestCLIStatusFallsBackWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenant("plant-a"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Paths.SocketPath = filepath.Join(cfg.Paths.DataDir, "missing.sock")
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	if _, err := store.Enqueue(context.Background(), "https://docs.example.com/t/delta", "plant-a"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	store.Close()

	out, _, err := runCLI(t, []string{"status"}, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("status without daemon: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "plant-a")
	requireContains(t, out, "Queue Status")
	requireContains(t, out, "total")
}

func TestCLISyncRegister(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"sync", "--register"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync --register: %v", err)
	}
	requireContains(t, out, "Sync registered")
}

func TestCLIOpenQueuesWhileOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenant("plant-a"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	// Point the probe at a closed local port so the connectivity check fails
	// fast, and leave the daemon socket missing.
	cfg.Sync.ProbeURL = "http://127.0.0.1:9/"
	cfg.Paths.SocketPath = filepath.Join(cfg.Paths.DataDir, "missing.sock")
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"open", "https://docs.example.com/t/epsilon"}, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("open while offline: %v", err)
	}
	requireContains(t, out, "queued")

	out, _, err = runCLI(t, []string{"queue", "list"}, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("queue list after open: %v", err)
	}
	requireContains(t, out, "epsilon")
}

func TestCLIDialErrorMentionsDaemonStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenant("plant-a"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	missing := filepath.Join(cfg.Paths.DataDir, "missing.sock")
	_, _, err := runCLI(t, []string{"jobs"}, missing, configPath)
	if err == nil {
		t.Fatal("expected dial error for missing socket")
	}
	if !strings.Contains(err.Error(), "docsync daemon start") {
		t.Fatalf("expected hint to start the daemon, got %v", err)
	}
}
