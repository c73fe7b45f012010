package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"docsync/internal/daemon"
	"docsync/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Docsync", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun docsync daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Online = status.Online
	resp.Tenant = status.Tenant
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.SocketPath = status.SocketPath
	resp.HTTPBind = status.HTTPBind
	resp.QueueTotal = status.Queue.Total
	resp.QueueRetryable = status.Queue.Retryable
	resp.QueueExhausted = status.Queue.Exhausted
	resp.BackgroundSync = status.BackgroundSync
	resp.BackgroundFetch = status.BackgroundFetch
	resp.RegisteredTags = append(resp.RegisteredTags, status.RegisteredTags...)
	resp.ActiveJobs = status.ActiveJobs
	for _, stats := range status.CachePartitions {
		resp.CachePartitions = append(resp.CachePartitions, CachePartition{
			Partition: stats.Partition,
			Entries:   stats.Entries,
			Bytes:     stats.Bytes,
		})
	}
	return nil
}

func (s *service) CacheDoc(req CacheDocRequest, resp *CacheDocResponse) error {
	s.log().Debug("document caching requested", logging.String(logging.FieldURL, req.URL))
	if err := s.daemon.CacheDocument(s.ctx, req.URL); err != nil {
		resp.Cached = false
		resp.Message = err.Error()
		return nil
	}
	resp.Cached = true
	resp.Message = "document cached"
	return nil
}

func (s *service) SyncNow(_ SyncNowRequest, resp *SyncNowResponse) error {
	s.log().Debug("immediate sync requested")
	if err := s.daemon.SyncNow(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "sync pass completed"
	return nil
}

func (s *service) RegisterSync(req RegisterSyncRequest, resp *RegisterSyncResponse) error {
	s.log().Debug("sync registration requested", logging.String("tag", req.Tag))
	if err := s.daemon.RegisterSyncTag(req.Tag); err != nil {
		resp.Registered = false
		resp.Message = err.Error()
		return nil
	}
	resp.Registered = true
	resp.Message = "sync registered"
	s.log().Info("sync tag registered via IPC",
		logging.String(logging.FieldEventType, "sync_registered"),
		logging.String("tag", req.Tag))
	return nil
}

func (s *service) BackgroundFetch(req BackgroundFetchRequest, resp *BackgroundFetchResponse) error {
	s.log().Debug("background fetch requested", logging.String(logging.FieldURL, req.URL))
	jobID, err := s.daemon.StartBackgroundFetch(req.URL)
	if err != nil {
		return err
	}
	resp.JobID = jobID
	return nil
}

func (s *service) JobList(_ JobListRequest, resp *JobListResponse) error {
	for _, job := range s.daemon.Jobs() {
		resp.Jobs = append(resp.Jobs, BackgroundJob{
			ID:         job.ID,
			URL:        job.URL,
			Tenant:     job.Tenant,
			State:      string(job.State),
			Error:      job.Error,
			StartedAt:  job.StartedAt,
			FinishedAt: job.FinishedAt,
		})
	}
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	ctx := s.ctx
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	events, next, err := s.daemon.Events(ctx, req.Since, req.Max, wait)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Next = req.Since
			return nil
		}
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	entries, err := s.daemon.ListQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		resp.Entries = append(resp.Entries, FromQueueEntry(entry))
	}
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	s.log().Debug("queue remove requested", logging.String(logging.FieldURL, req.URL))
	removed, err := s.daemon.RemoveQueueEntry(s.ctx, req.URL)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	s.log().Debug("queue clear requested")
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClearExhausted(_ QueueClearExhaustedRequest, resp *QueueClearExhaustedResponse) error {
	s.log().Debug("queue clear exhausted requested")
	removed, err := s.daemon.ClearExhausted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue exhausted entries cleared",
		logging.String(logging.FieldEventType, "queue_clear_exhausted"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Retryable = health.Retryable
	resp.Exhausted = health.Exhausted
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalEntries = health.TotalEntries
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
