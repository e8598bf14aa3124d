// Package orchestrator runs the song request lifecycle. A single goroutine
// owns the lifecycle machine; I/O happens in helper goroutines that post
// their results back as events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"songify/internal/handshake"
	"songify/internal/lifecycle"
	"songify/internal/logging"
	"songify/internal/persist"
	"songify/internal/song"
	"songify/internal/songservice"
	"songify/internal/tabs"
)

// ErrServiceClosed is returned by Run when the song host channel ends.
var ErrServiceClosed = errors.New("song service channel closed")

// ErrNotRunning is returned by triggers once Run has exited.
var ErrNotRunning = errors.New("orchestrator not running")

// Status is the user-visible projection of the request.
type Status struct {
	Text  string `json:"status"`
	Badge string `json:"badge"`
}

// Renderer displays status updates.
type Renderer interface {
	Render(ctx context.Context, status Status) error
}

// Notifier sends push notifications.
type Notifier interface {
	NotifySongReady(ctx context.Context, title, url string) error
	NotifySongFailed(ctx context.Context, title, detail string) error
}

// SnapshotStore persists the latest request.
type SnapshotStore interface {
	SaveLastRequest(ctx context.Context, req song.Request) error
}

// Persister schedules deferred downloads.
type Persister interface {
	Arm(job persist.Job) bool
	Cancel(url string) bool
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Service       songservice.Sender
	ServiceEvents <-chan songservice.Event
	Tabs          tabs.Messenger
	Renderer      Renderer
	Persister     Persister
	Notifier      Notifier
	Snapshots     SnapshotStore
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

// Options holds timing configuration.
type Options struct {
	Lifecycle     lifecycle.Options
	Handshake     handshake.Policy
	TickInterval  time.Duration
	RenderTimeout time.Duration
}

// Orchestrator wires the lifecycle machine to its collaborators.
type Orchestrator struct {
	deps    Deps
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	machine *lifecycle.Machine
	runner  *handshake.Runner

	events chan lifecycle.Event
	done   chan struct{}
	ticker clockwork.Ticker
	wg     sync.WaitGroup

	mu         sync.RWMutex
	snapshot   song.Request
	lastStatus Status
	extracting int
}

// New builds an orchestrator. Call Run to start processing.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = 5 * time.Second
	}
	logger := logging.NewComponentLogger(deps.Logger, "orchestrator")
	machine := lifecycle.New(opts.Lifecycle)
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		clock:    deps.Clock,
		logger:   logger,
		machine:  machine,
		runner:   handshake.NewRunner(deps.Tabs, deps.Clock, opts.Handshake, deps.Logger),
		events:   make(chan lifecycle.Event, 32),
		done:     make(chan struct{}),
		snapshot: machine.Request(),
	}
}

// Run processes events until ctx ends or the song host goes away.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.wg.Wait()
	defer close(o.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.stopTicker()

	o.logger.Info("orchestrator started", logging.Duration("tick_interval", o.opts.TickInterval))
	serviceEvents := o.deps.ServiceEvents
	for {
		var tickC <-chan time.Time
		if o.ticker != nil {
			tickC = o.ticker.Chan()
		}
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping")
			return ctx.Err()
		case evt := <-o.events:
			o.dispatch(ctx, evt)
		case msg, ok := <-serviceEvents:
			if !ok {
				logging.ErrorWithContext(o.logger, "song service channel closed", "song_service_closed",
					logging.String(logging.FieldErrorHint, "restart songify; check the native host logs"),
				)
				return ErrServiceClosed
			}
			o.dispatch(ctx, lifecycle.ServiceMessage{Message: msg, At: o.clock.Now()})
		case at := <-tickC:
			o.dispatch(ctx, lifecycle.Tick{At: at})
		}
	}
}

// Trigger starts a request for tab: its text is extracted asynchronously and
// the request begins once extraction succeeds. The request ID is returned
// immediately.
func (o *Orchestrator) Trigger(ctx context.Context, tab tabs.Tab, style song.Style) (string, error) {
	if err := o.checkRunning(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	o.mu.Lock()
	o.extracting++
	o.mu.Unlock()
	o.wg.Go(func() {
		defer func() {
			o.mu.Lock()
			o.extracting--
			o.mu.Unlock()
		}()
		text, err := tabs.ExtractText(ctx, o.deps.Tabs, tab.ID)
		if err != nil {
			o.post(lifecycle.ExtractionFailed{TabID: tab.ID, Err: err, At: o.clock.Now()})
			return
		}
		o.post(o.triggered(id, tab, style, text))
	})
	return id, nil
}

// TriggerText starts a request with already extracted text.
func (o *Orchestrator) TriggerText(tab tabs.Tab, style song.Style, text string) (string, error) {
	if err := o.checkRunning(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if !o.post(o.triggered(id, tab, style, text)) {
		return "", ErrNotRunning
	}
	return id, nil
}

// Snapshot returns the current request and its last rendered status.
func (o *Orchestrator) Snapshot() (song.Request, Status) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot, o.lastStatus
}

// Extracting reports how many triggers are still reading page text.
func (o *Orchestrator) Extracting() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.extracting
}

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) triggered(id string, tab tabs.Tab, style song.Style, text string) lifecycle.Triggered {
	return lifecycle.Triggered{
		RequestID: id,
		TabID:     tab.ID,
		TabTitle:  tab.Title,
		Style:     style,
		Text:      text,
		At:        o.clock.Now(),
	}
}

func (o *Orchestrator) checkRunning() error {
	select {
	case <-o.done:
		return ErrNotRunning
	default:
		return nil
	}
}

func (o *Orchestrator) post(evt lifecycle.Event) bool {
	select {
	case o.events <- evt:
		return true
	case <-o.done:
		return false
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, evt lifecycle.Event) {
	name := lifecycle.EventName(evt)
	out := o.machine.Handle(evt)
	req := o.machine.Request()
	logger := logging.WithContext(logging.WithRequestID(ctx, req.ID), o.logger)

	switch e := evt.(type) {
	case lifecycle.ExtractionFailed:
		logging.WarnWithContext(logger, "page text extraction failed", "extraction_failed",
			logging.Int(logging.FieldTabID, int(e.TabID)),
			logging.Error(e.Err),
			logging.String(logging.FieldErrorHint, "reload the page so the extractor loads, then trigger again"),
			logging.String(logging.FieldImpact, "no song request started"),
		)
	case lifecycle.Tick:
	default:
		logger.Debug("event handled", logging.String("event", name), logging.Int("commands", len(out.Commands)))
	}
	if out.Transitioned() {
		logger.Info("request transitioned",
			logging.String("from", string(out.From)),
			logging.String(logging.FieldState, string(out.To)),
			logging.String("event", name),
		)
	}
	if out.Reason != "" {
		logger.Debug("lifecycle decision", logging.Args(logging.DecisionAttrs(name, "skipped", out.Reason)...)...)
	}

	for _, cmd := range out.Commands {
		o.execute(ctx, logger, cmd)
	}

	o.mu.Lock()
	o.snapshot = req
	o.mu.Unlock()
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, cmd lifecycle.Command) {
	logger.Debug("executing command", logging.String("command", lifecycle.CommandName(cmd)))
	switch c := cmd.(type) {
	case lifecycle.SendRequest:
		o.wg.Go(func() {
			if err := o.deps.Service.Send(ctx, c.Request); err != nil {
				o.post(lifecycle.SendFailed{RequestID: c.RequestID, Err: err, At: o.clock.Now()})
			}
		})
	case lifecycle.Render:
		o.render(ctx, logger, Status{Text: c.Status, Badge: c.Badge})
	case lifecycle.StartTicker:
		o.stopTicker()
		o.ticker = o.clock.NewTicker(o.opts.TickInterval)
	case lifecycle.StopTicker:
		o.stopTicker()
	case lifecycle.BeginHandshake:
		o.wg.Go(func() { o.handshake(ctx, c.Target) })
	case lifecycle.ArmPersistence:
		if o.deps.Persister != nil {
			o.deps.Persister.Arm(c.Job)
		}
	case lifecycle.CancelPersistence:
		if o.deps.Persister != nil {
			o.deps.Persister.Cancel(c.URL)
		}
	case lifecycle.SaveSnapshot:
		if o.deps.Snapshots != nil {
			if err := o.deps.Snapshots.SaveLastRequest(ctx, c.Request); err != nil {
				logging.WarnWithContext(logger, "request snapshot not saved", "snapshot_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "status after restart may be stale"),
				)
			}
		}
	case lifecycle.Notify:
		if o.deps.Notifier != nil {
			o.wg.Go(func() { o.notify(ctx, logger, c) })
		}
	default:
		logger.Warn("unknown lifecycle command", logging.String("command", fmt.Sprintf("%T", cmd)))
	}
}

func (o *Orchestrator) render(ctx context.Context, logger *slog.Logger, status Status) {
	o.mu.Lock()
	o.lastStatus = status
	o.mu.Unlock()
	if o.deps.Renderer == nil {
		return
	}
	renderCtx, cancel := context.WithTimeout(ctx, o.opts.RenderTimeout)
	defer cancel()
	if err := o.deps.Renderer.Render(renderCtx, status); err != nil {
		logger.Debug("render skipped", logging.Error(err))
	}
}

func (o *Orchestrator) handshake(ctx context.Context, target handshake.Target) {
	outcome := o.runner.Run(ctx, target)
	switch outcome.Result {
	case handshake.Delivered:
		o.post(lifecycle.PlaybackDelivered{Target: target, At: outcome.At})
	case handshake.Abandoned:
		o.post(lifecycle.HandshakeAbandoned{Target: target, Err: outcome.Err, At: outcome.At})
	}
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, n lifecycle.Notify) {
	var err error
	switch n.Kind {
	case lifecycle.NotifyReady:
		err = o.deps.Notifier.NotifySongReady(ctx, n.Title, n.Detail)
	case lifecycle.NotifyFailed:
		err = o.deps.Notifier.NotifySongFailed(ctx, n.Title, n.Detail)
	}
	if err != nil {
		logger.Debug("notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) stopTicker() {
	if o.ticker != nil {
		o.ticker.Stop()
		o.ticker = nil
	}
}
