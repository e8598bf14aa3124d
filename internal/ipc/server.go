package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"songify/internal/config"
	"songify/internal/daemon"
	"songify/internal/logging"
	"songify/internal/song"
	"songify/internal/tabs"
	"songify/internal/textutil"
)

const serviceName = "Songify"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
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
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
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
	s.wg.Go(func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Go(func() {
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
			})
		}
	})
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	req := status.Request
	resp.Running = status.Running
	resp.PID = os.Getpid()
	resp.Request = RequestInfo{
		ID:          req.ID,
		State:       string(req.State),
		Style:       string(req.Style),
		Title:       req.Title,
		OriginTabID: int(req.OriginTabID),
		AudioURL:    req.AudioURL,
		Lyrics:      req.Lyrics,
		LastError:   req.LastError,
		StartedAt:   req.StartedAt,
		UpdatedAt:   req.UpdatedAt,
	}
	resp.StatusText = status.Display.Text
	resp.Badge = status.Display.Badge
	resp.BridgeConnected = status.BridgeConnected
	resp.BridgeAddress = status.BridgeAddress
	resp.Extracting = status.Extracting
	resp.PersistenceMode = status.PersistenceMode
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	if job := status.PendingDownload; job != nil {
		resp.PendingDownload = &PendingDownload{URL: job.URL, Filename: job.Filename, FireAt: job.FireAt}
	}
	return nil
}

func (s *service) Trigger(req TriggerRequest, resp *TriggerResponse) error {
	style, err := song.ParseStyle(req.Style)
	if err != nil {
		return err
	}
	if req.TabID < 0 {
		return fmt.Errorf("invalid tab id %d", req.TabID)
	}
	tab := tabs.Tab{ID: song.TabID(req.TabID), Title: strings.TrimSpace(req.TabTitle)}
	id, err := s.daemon.Trigger(s.ctx, tab, style, req.Text)
	if err != nil {
		return err
	}
	resp.RequestID = id
	s.logger.Info("song requested via IPC",
		logging.String(logging.FieldEventType, "ipc_trigger"),
		logging.String(logging.FieldRequestID, id),
		logging.Int(logging.FieldTabID, req.TabID),
		logging.String("style", string(style)),
		logging.Bool("text_supplied", req.Text != ""),
	)
	return nil
}

func (s *service) SettingsGet(_ SettingsGetRequest, resp *SettingsGetResponse) error {
	creds, err := s.daemon.Credentials(s.ctx)
	if err != nil {
		return err
	}
	resp.OpenAIAPIKey = textutil.MaskSecret(creds.OpenAIAPIKey)
	resp.PiAPIKey = textutil.MaskSecret(creds.PiAPIKey)
	return nil
}

func (s *service) SettingsSet(req SettingsSetRequest, resp *SettingsSetResponse) error {
	creds := config.Credentials{
		OpenAIAPIKey: strings.TrimSpace(req.OpenAIAPIKey),
		PiAPIKey:     strings.TrimSpace(req.PiAPIKey),
	}
	if creds.OpenAIAPIKey == "" && creds.PiAPIKey == "" {
		return errors.New("no settings provided")
	}
	if err := s.daemon.SetCredentials(s.ctx, creds); err != nil {
		return err
	}
	resp.Updated = true
	resp.RestartRequired = true
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	if err != nil {
		resp.Message = fmt.Sprintf("%s: %v", message, err)
	}
	return nil
}
