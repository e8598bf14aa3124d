package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"songify/internal/config"
	"songify/internal/handshake"
	"songify/internal/hostbridge"
	"songify/internal/lifecycle"
	"songify/internal/logging"
	"songify/internal/notifications"
	"songify/internal/orchestrator"
	"songify/internal/persist"
	"songify/internal/song"
	"songify/internal/songservice"
	"songify/internal/store"
	"songify/internal/tabs"
)

// ErrAlreadyRunning is returned when the lock is held by another process or
// Start is called twice.
var ErrAlreadyRunning = errors.New("songify daemon already running")

// ErrNotStarted is returned by request operations before Start.
var ErrNotStarted = errors.New("songify daemon not started")

// ServiceConn is a running song service connection.
type ServiceConn interface {
	songservice.Sender
	Events() <-chan songservice.Event
	Close() error
}

// ServiceFactory launches the song service with the resolved credentials.
type ServiceFactory func(ctx context.Context, creds config.Credentials) (ServiceConn, error)

// Option customizes daemon construction.
type Option func(*Daemon)

// WithServiceFactory replaces the native host launcher.
func WithServiceFactory(factory ServiceFactory) Option {
	return func(d *Daemon) { d.serviceFactory = factory }
}

// WithClock injects the clock used for ticking, retries, and persistence.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Daemon) { d.clock = clock }
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) { d.notifier = n }
}

// Daemon owns the running request pipeline and enforces single-instance execution.
type Daemon struct {
	cfg            *config.Config
	logger         *slog.Logger
	store          *store.Store
	notifier       notifications.Service
	clock          clockwork.Clock
	serviceFactory ServiceFactory

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	service ServiceConn
	bridge  *hostbridge.Server
	sched   *persist.Scheduler
	orch    *orchestrator.Orchestrator
	done    chan struct{}
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool                `json:"running"`
	Request         song.Request        `json:"request"`
	Display         orchestrator.Status `json:"display"`
	BridgeConnected bool                `json:"bridge_connected"`
	BridgeAddress   string              `json:"bridge_address,omitempty"`
	PendingDownload *persist.Job        `json:"pending_download,omitempty"`
	Extracting      int                 `json:"extracting"`
	PersistenceMode string              `json:"persistence_mode"`
	DatabasePath    string              `json:"database_path"`
	LockFilePath    string              `json:"lock_file_path"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		clock:    clockwork.NewRealClock(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.serviceFactory = d.startNativeService
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the request pipeline.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return ErrAlreadyRunning
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: lock %s is held", ErrAlreadyRunning, d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.startPipeline(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("songify daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bridge", d.bridge.Addr()),
		logging.String("persistence", d.cfg.Persistence.Mode),
	)
	return nil
}

func (d *Daemon) startPipeline(ctx context.Context) error {
	creds, err := d.credentials(ctx)
	if err != nil {
		return err
	}
	service, err := d.serviceFactory(ctx, creds)
	if err != nil {
		return fmt.Errorf("start song service: %w", err)
	}

	bridge := hostbridge.New(hostbridge.Options{
		Bind:        d.cfg.Bridge.Bind,
		Token:       d.cfg.Bridge.Token,
		CallTimeout: d.cfg.BridgeCallTimeout(),
	}, d.logger)

	var downloader persist.Downloader = bridge
	if d.cfg.Persistence.Mode == config.PersistenceLocal {
		downloader = persist.NewHTTPDownloader(d.cfg.Paths.DownloadDir)
	}
	sched := persist.NewScheduler(ctx, d.clock, downloader, d.reportDownload, d.logger)

	orch := orchestrator.New(orchestrator.Deps{
		Service:       service,
		ServiceEvents: service.Events(),
		Tabs:          bridge,
		Renderer:      bridge,
		Persister:     sched,
		Notifier:      d.notifier,
		Snapshots:     d.store,
		Clock:         d.clock,
		Logger:        d.logger,
	}, orchestrator.Options{
		Lifecycle: lifecycle.Options{
			PersistenceGrace:              d.cfg.PersistenceGrace(),
			CancelPersistenceOnNewRequest: d.cfg.Persistence.CancelOnNewRequest,
		},
		Handshake: handshake.Policy{
			MaxAttempts:  d.cfg.Timing.HandshakeMaxAttempts,
			Delay:        d.cfg.HandshakeRetryDelay(),
			ProbeTimeout: d.cfg.ProbeTimeout(),
		},
		TickInterval: d.cfg.TickInterval(),
	})
	bridge.SetTriggerHandler(func(ctx context.Context, tab tabs.Tab, style song.Style) error {
		_, err := orch.Trigger(ctx, tab, style)
		return err
	})

	if err := bridge.Start(ctx); err != nil {
		_ = service.Close()
		return err
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.service = service
	d.bridge = bridge
	d.sched = sched
	d.orch = orch
	d.done = done
	d.runErr = nil
	d.mu.Unlock()

	go func() {
		defer close(done)
		err := orch.Run(ctx)
		if errors.Is(err, orchestrator.ErrServiceClosed) {
			logging.ErrorWithContext(d.logger, "song service exited; daemon cannot continue", "daemon_fatal",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the native host command and its credentials"),
				logging.String(logging.FieldImpact, "no further songs until songify restarts"),
			)
			d.mu.Lock()
			d.runErr = err
			d.mu.Unlock()
		}
	}()
	return nil
}

// Done is closed when the pipeline stops, including on a fatal service exit.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		ch := make(chan struct{})
		return ch
	}
	return d.done
}

// Err reports why the pipeline stopped on its own.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop stops the pipeline and releases the daemon lock. A pending download is
// dropped.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	done := d.done
	service, bridge, sched := d.service, d.bridge, d.sched
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if sched != nil {
		if job, ok := sched.Pending(); ok {
			logging.WarnWithContext(d.logger, "pending download dropped at shutdown", "persistence_dropped",
				logging.String("audio_url", job.URL),
				logging.String("filename", job.Filename),
				logging.String(logging.FieldImpact, "song was played but will not be saved"),
			)
		}
		sched.Stop()
		sched.Wait()
	}
	if bridge != nil {
		bridge.Shutdown()
	}
	if service != nil {
		if err := service.Close(); err != nil {
			d.logger.Warn("song service exit", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("songify daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status. When stopped, the last stored
// request is reported.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:         d.running.Load(),
		PersistenceMode: d.cfg.Persistence.Mode,
		DatabasePath:    d.store.Path(),
		LockFilePath:    d.lockPath,
	}
	d.mu.Lock()
	orch, bridge, sched := d.orch, d.bridge, d.sched
	d.mu.Unlock()

	if !status.Running || orch == nil {
		req, _, err := d.store.LastRequest(ctx)
		if err != nil {
			d.logger.Debug("last request unavailable", logging.Error(err))
			req = song.Idle()
		}
		status.Request = req
		status.Display = orchestrator.Status{Text: lifecycle.StatusFor(req, d.clock.Now())}
		return status
	}
	status.Request, status.Display = orch.Snapshot()
	status.Extracting = orch.Extracting()
	status.BridgeConnected = bridge.Connected()
	status.BridgeAddress = bridge.Addr()
	if job, ok := sched.Pending(); ok {
		status.PendingDownload = &job
	}
	return status
}

// Trigger starts a song request for a tab. When text is non-empty extraction
// is skipped.
func (d *Daemon) Trigger(ctx context.Context, tab tabs.Tab, style song.Style, text string) (string, error) {
	d.mu.Lock()
	orch := d.orch
	d.mu.Unlock()
	if !d.running.Load() || orch == nil {
		return "", ErrNotStarted
	}
	if !style.Valid() {
		return "", fmt.Errorf("unknown song style %q", style)
	}
	if strings.TrimSpace(text) != "" {
		return orch.TriggerText(tab, style, text)
	}
	return orch.Trigger(ctx, tab, style)
}

// Credentials returns the effective API keys: stored values override config.
func (d *Daemon) Credentials(ctx context.Context) (config.Credentials, error) {
	return d.credentials(ctx)
}

// SetCredentials stores API keys. The native host reads them at launch, so
// changes apply after a restart.
func (d *Daemon) SetCredentials(ctx context.Context, creds config.Credentials) error {
	if err := d.store.SetCredentials(ctx, creds); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	d.logger.Info("credentials updated",
		logging.Bool("openai_api_key", creds.OpenAIAPIKey != ""),
		logging.Bool("piapi_key", creds.PiAPIKey != ""),
	)
	return nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) credentials(ctx context.Context) (config.Credentials, error) {
	stored, err := d.store.Credentials(ctx)
	if err != nil {
		return config.Credentials{}, fmt.Errorf("load stored credentials: %w", err)
	}
	return store.ResolveCredentials(d.cfg.Credentials, stored), nil
}

func (d *Daemon) startNativeService(ctx context.Context, creds config.Credentials) (ServiceConn, error) {
	var env []string
	if creds.OpenAIAPIKey != "" {
		env = append(env, "OPENAI_API_KEY="+creds.OpenAIAPIKey)
	}
	if creds.PiAPIKey != "" {
		env = append(env, "PIAPI_KEY="+creds.PiAPIKey)
	}
	if len(env) < 2 {
		logging.WarnWithContext(d.logger, "song service credentials incomplete", "credentials_missing",
			logging.String(logging.FieldErrorHint, "run 'songify settings set' with both API keys"),
			logging.String(logging.FieldImpact, "the native host may reject song requests"),
		)
	}
	return songservice.Start(ctx, songservice.Options{
		Command: d.cfg.Native.Command,
		Args:    d.cfg.Native.Args,
		Env:     env,
	}, d.logger)
}

func (d *Daemon) reportDownload(job persist.Job, err error) {
	if err == nil {
		return
	}
	if nerr := d.notifier.NotifySongFailed(context.Background(), strings.TrimSuffix(job.Filename, ".mp3"), "download failed: "+err.Error()); nerr != nil {
		d.logger.Debug("notification failed", logging.Error(nerr))
	}
}
