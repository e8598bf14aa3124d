package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"songify/internal/logging"
	"songify/internal/orchestrator"
	"songify/internal/song"
	"songify/internal/tabs"
)

// ErrNotConnected is returned when no extension is attached. It wraps
// tabs.ErrUnreachable.
var ErrNotConnected = fmt.Errorf("browser extension not connected: %w", tabs.ErrUnreachable)

// ErrDisconnected is returned when the extension goes away after a request
// was written. The browser may already have acted on it.
var ErrDisconnected = errors.New("browser extension disconnected before replying")

const (
	defaultCallTimeout = 10 * time.Second
	writeTimeout       = 5 * time.Second
	maxMessageBytes    = 8 << 20
)

// TriggerHandler starts a request for a tab.
type TriggerHandler func(ctx context.Context, tab tabs.Tab, style song.Style) error

// Options configures the bridge listener.
type Options struct {
	Bind        string
	Token       string
	CallTimeout time.Duration
}

// Server accepts one extension connection at a time. A newer connection
// replaces the older one.
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	listener net.Listener
	server   *http.Server

	mu         sync.Mutex
	baseCtx    context.Context
	peer       *peer
	lastStatus *orchestrator.Status
	onTrigger  TriggerHandler
}

// New builds a bridge server. Call Start to listen or mount Handler yourself.
func New(opts Options, logger *slog.Logger) *Server {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	s := &Server{
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "hostbridge"),
		baseCtx: context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     allowExtensionOrigin,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", authMiddleware(opts.Token, s.handleBridge))
	mux.HandleFunc("/healthz", s.handleHealth)
	s.mux = mux
	return s
}

// Handler exposes the bridge routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// SetTriggerHandler registers the callback for extension trigger actions.
func (s *Server) SetTriggerHandler(fn TriggerHandler) {
	s.mu.Lock()
	s.onTrigger = fn
	s.mu.Unlock()
}

// Start listens on the configured bind address until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("bridge bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("bridge listen: %w", err)
	}
	s.mu.Lock()
	s.baseCtx = ctx
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.logger.Info("bridge listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes the listener and the active connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	server := s.server
	current := s.peer
	s.server = nil
	s.listener = nil
	s.peer = nil
	s.mu.Unlock()

	if current != nil {
		current.close()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

// Connected reports whether an extension is attached.
func (s *Server) Connected() bool {
	return s.current() != nil
}

// SendMessage delivers msg to the content script in tabID.
func (s *Server) SendMessage(ctx context.Context, tabID song.TabID, msg tabs.Message) (json.RawMessage, error) {
	reply, err := s.call(ctx, Envelope{Type: TypeTabMessage, TabID: tabID, Payload: mustPayload(msg)})
	if err != nil {
		return nil, err
	}
	switch reply.Error {
	case "":
		return reply.Payload, nil
	case ErrorNoEndpoint:
		return nil, tabs.ErrNoEndpoint
	default:
		return nil, fmt.Errorf("tab %d: %s", tabID, reply.Error)
	}
}

// Render pushes the toolbar status. The latest status is replayed to
// extensions that connect later.
func (s *Server) Render(ctx context.Context, status orchestrator.Status) error {
	s.mu.Lock()
	s.lastStatus = &status
	p := s.peer
	s.mu.Unlock()
	if p == nil {
		return ErrNotConnected
	}
	return p.write(Envelope{Type: TypeRender, Payload: mustPayload(status)})
}

// Download asks the browser to save url under filename.
func (s *Server) Download(ctx context.Context, url, filename string) error {
	reply, err := s.call(ctx, Envelope{Type: TypeDownload, Payload: mustPayload(DownloadPayload{URL: url, Filename: filename})})
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("browser download: %s", reply.Error)
	}
	return nil
}

func (s *Server) call(ctx context.Context, env Envelope) (Envelope, error) {
	p := s.current()
	if p == nil {
		return Envelope{}, ErrNotConnected
	}
	env.ID = uuid.NewString()
	replies := p.expect(env.ID)
	defer p.forget(env.ID)

	if err := p.write(env); err != nil {
		return Envelope{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	select {
	case reply := <-replies:
		return reply, nil
	case <-p.closed:
		return Envelope{}, fmt.Errorf("%s call: %w", env.Type, ErrDisconnected)
	case <-ctx.Done():
		return Envelope{}, fmt.Errorf("%s call: %w", env.Type, ctx.Err())
	}
}

func (s *Server) current() *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"connected": s.Connected()})
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("bridge upgrade failed", logging.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	p := newPeer(conn)

	s.mu.Lock()
	previous := s.peer
	s.peer = p
	status := s.lastStatus
	s.mu.Unlock()
	if previous != nil {
		s.logger.Info("bridge connection replaced")
		previous.close()
	}
	s.logger.Info("browser extension connected", logging.String("remote", r.RemoteAddr))

	if err := p.write(Envelope{Type: TypeMenu, Payload: mustPayload(menuItems())}); err != nil {
		s.logger.Debug("menu not sent", logging.Error(err))
	}
	if status != nil {
		if err := p.write(Envelope{Type: TypeRender, Payload: mustPayload(*status)}); err != nil {
			s.logger.Debug("status replay failed", logging.Error(err))
		}
	}

	err = s.readLoop(p)
	s.mu.Lock()
	if s.peer == p {
		s.peer = nil
	}
	s.mu.Unlock()
	p.close()
	if err != nil {
		logging.WarnWithContext(s.logger, "browser extension disconnected", "bridge_disconnected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reload the extension if it does not reconnect"),
		)
		return
	}
	s.logger.Info("browser extension disconnected")
}

func (s *Server) readLoop(p *peer) error {
	for {
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			select {
			case <-p.closed:
				return nil
			default:
			}
			return err
		}
		switch env.Type {
		case TypeResponse:
			p.deliver(env)
		case TypeHello:
			var hello HelloPayload
			if err := json.Unmarshal(env.Payload, &hello); err != nil {
				s.logger.Debug("undecodable hello payload", logging.Error(err))
			}
			s.logger.Info("extension hello", logging.String("version", hello.Version))
		case TypeTrigger:
			s.handleTrigger(env)
		default:
			s.logger.Debug("unexpected bridge message", logging.String("type", env.Type))
		}
	}
}

func (s *Server) handleTrigger(env Envelope) {
	var payload TriggerPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Warn("invalid trigger payload", logging.Error(err))
		return
	}
	style, err := song.ParseStyle(payload.Style)
	if err != nil {
		s.logger.Warn("invalid trigger style", logging.String("style", payload.Style))
		return
	}
	if payload.Tab.ID == 0 && env.TabID != 0 {
		payload.Tab.ID = env.TabID
	}
	s.mu.Lock()
	handler := s.onTrigger
	ctx := s.baseCtx
	s.mu.Unlock()
	if handler == nil {
		s.logger.Debug("trigger ignored; no handler")
		return
	}
	go func() {
		if err := handler(ctx, payload.Tab, style); err != nil {
			s.logger.Warn("trigger rejected", logging.Error(err), logging.Int(logging.FieldTabID, int(payload.Tab.ID)))
		}
	}()
}

// allowExtensionOrigin admits extension pages and local tools. Web pages
// cannot reach the bridge.
func allowExtensionOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"moz-extension://", "chrome-extension://", "http://127.0.0.1", "http://localhost"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

type peer struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn:    conn,
		pending: make(map[string]chan Envelope),
		closed:  make(chan struct{}),
	}
}

func (p *peer) write(env Envelope) error {
	select {
	case <-p.closed:
		return ErrNotConnected
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := p.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

func (p *peer) expect(id string) <-chan Envelope {
	ch := make(chan Envelope, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *peer) forget(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *peer) deliver(env Envelope) {
	p.mu.Lock()
	ch, ok := p.pending[env.ID]
	delete(p.pending, env.ID)
	p.mu.Unlock()
	if ok {
		ch <- env
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.writeMu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		_ = p.conn.Close()
	})
}
