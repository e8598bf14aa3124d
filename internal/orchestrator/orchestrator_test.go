package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"songify/internal/handshake"
	"songify/internal/logging"
	"songify/internal/orchestrator"
	"songify/internal/persist"
	"songify/internal/song"
	"songify/internal/songservice"
	"songify/internal/tabs"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []songservice.Request
}

func (f *fakeSender) Send(_ context.Context, req songservice.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeSender) Sent() []songservice.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]songservice.Request(nil), f.sent...)
}

type recordingRenderer struct {
	mu      sync.Mutex
	renders []orchestrator.Status
}

func (r *recordingRenderer) Render(_ context.Context, status orchestrator.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, status)
	return nil
}

func (r *recordingRenderer) All() []orchestrator.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orchestrator.Status(nil), r.renders...)
}

type nopDownloader struct{}

func (nopDownloader) Download(context.Context, string, string) error { return nil }

type harness struct {
	orch      *orchestrator.Orchestrator
	clock     *clockwork.FakeClock
	sender    *fakeSender
	renderer  *recordingRenderer
	tabs      *tabs.Fake
	scheduler *persist.Scheduler
	service   chan songservice.Event
	cancel    context.CancelFunc
	runErr    chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	h := &harness{
		clock:    clock,
		sender:   &fakeSender{},
		renderer: &recordingRenderer{},
		tabs:     tabs.NewFake(),
		service:  make(chan songservice.Event),
		cancel:   cancel,
		runErr:   make(chan error, 1),
	}
	h.scheduler = persist.NewScheduler(ctx, clock, nopDownloader{}, nil, logging.NewNop())
	h.orch = orchestrator.New(orchestrator.Deps{
		Service:       h.sender,
		ServiceEvents: h.service,
		Tabs:          h.tabs,
		Renderer:      h.renderer,
		Persister:     h.scheduler,
		Clock:         clock,
		Logger:        logging.NewNop(),
	}, orchestrator.Options{
		Handshake:    handshake.DefaultPolicy(),
		TickInterval: time.Second,
	})
	go func() { h.runErr <- h.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.orch.Done()
		h.scheduler.Stop()
	})
	return h
}

func (h *harness) handleTab(action, reply string) {
	h.tabs.Handle(action, func(song.TabID, tabs.Message) (json.RawMessage, error) {
		return json.RawMessage(reply), nil
	})
}

func (h *harness) emit(t *testing.T, evt songservice.Event) {
	t.Helper()
	select {
	case h.service <- evt:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not accept service event")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) state() song.State {
	req, _ := h.orch.Snapshot()
	return req.State
}

func TestEndToEndCatSong(t *testing.T) {
	h := newHarness(t)
	h.handleTab(tabs.ActionGetText, `{"text":"Cats purr."}`)
	h.handleTab(tabs.ActionPing, `{"status":"ready"}`)
	h.handleTab(tabs.ActionPlayAudio, `{"status":"Audio playing"}`)

	if _, err := h.orch.Trigger(context.Background(), tabs.Tab{ID: 7, Title: "Cat Facts"}, song.StyleMeme); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, "outbound request", func() bool { return len(h.sender.Sent()) == 1 })
	sent := h.sender.Sent()[0]
	if sent.Action != "process_text" || sent.SongType != song.StyleMeme || sent.Text != `"Cats purr."` {
		t.Fatalf("unexpected outbound %+v", sent)
	}
	if h.state() != song.StateWriting {
		t.Fatalf("state = %s", h.state())
	}

	h.emit(t, songservice.Event{SongInfo: &songservice.SongInfo{Title: songservice.Ptr("Cat Song"), Style: songservice.Ptr("meme")}})
	waitFor(t, "status with title", func() bool {
		_, status := h.orch.Snapshot()
		return strings.Contains(status.Text, "Cat Song")
	})

	h.emit(t, songservice.Event{AudioURL: songservice.Ptr("https://x/1.mp3")})
	waitFor(t, "playing", func() bool { return h.state() == song.StatePlaying })

	plays := h.tabs.Calls(tabs.ActionPlayAudio)
	if len(plays) != 1 || plays[0].TabID != 7 || plays[0].Message.URL != "https://x/1.mp3" {
		t.Fatalf("unexpected playback commands %+v", plays)
	}
	job, ok := h.scheduler.Pending()
	if !ok {
		t.Fatal("expected armed persistence job")
	}
	if want := h.clock.Now().Add(240 * time.Second); !job.FireAt.Equal(want) {
		t.Fatalf("fire at %v, want %v", job.FireAt, want)
	}
	if job.Filename != "Cat Song.mp3" || job.URL != "https://x/1.mp3" {
		t.Fatalf("unexpected job %+v", job)
	}

	h.emit(t, songservice.Event{AudioURL: songservice.Ptr("https://x/1.mp3")})
	time.Sleep(20 * time.Millisecond)
	if n := len(h.tabs.Calls(tabs.ActionPlayAudio)); n != 1 {
		t.Fatalf("duplicate result re-delivered playback (%d calls)", n)
	}
}

func TestTickerStopsDeterministically(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := newHarness(t)
	h.handleTab(tabs.ActionPing, `{"status":"ready"}`)
	h.handleTab(tabs.ActionPlayAudio, `{"status":"Audio playing"}`)

	if _, err := h.orch.TriggerText(tabs.Tab{ID: 7, Title: "Cat Facts"}, song.StyleCute, "text"); err != nil {
		t.Fatalf("TriggerText: %v", err)
	}
	waitFor(t, "initial badge", func() bool {
		renders := h.renderer.All()
		return len(renders) == 1 && renders[0].Badge == "0:00"
	})

	for i, want := range []string{"0:01", "0:02"} {
		if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("ticker not armed: %v", err)
		}
		h.clock.Advance(time.Second)
		waitFor(t, "badge "+want, func() bool {
			renders := h.renderer.All()
			return len(renders) == i+2 && renders[i+1].Badge == want
		})
	}

	h.emit(t, songservice.Event{AudioURL: songservice.Ptr("https://x/1.mp3")})
	waitFor(t, "playing", func() bool { return h.state() == song.StatePlaying })
	renders := h.renderer.All()
	last := renders[len(renders)-1]
	if last.Badge != "" {
		t.Fatalf("badge must reset on stop, got %q", last.Badge)
	}

	h.clock.Advance(5 * time.Second)
	time.Sleep(30 * time.Millisecond)
	if got := len(h.renderer.All()); got != len(renders) {
		t.Fatalf("renders after ticker stop: %d -> %d", len(renders), got)
	}
}

func TestFailedProbeRetriesUntilReady(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := newHarness(t)
	ready := make(chan struct{})
	h.tabs.Handle(tabs.ActionPing, func(song.TabID, tabs.Message) (json.RawMessage, error) {
		select {
		case <-ready:
			return json.RawMessage(`{"status":"ready"}`), nil
		default:
			return nil, tabs.ErrNoEndpoint
		}
	})
	h.handleTab(tabs.ActionPlayAudio, `{"status":"Audio playing"}`)

	if _, err := h.orch.TriggerText(tabs.Tab{ID: 7, Title: "Cat Facts"}, song.StyleMusical, "text"); err != nil {
		t.Fatalf("TriggerText: %v", err)
	}
	waitFor(t, "writing", func() bool { return h.state() == song.StateWriting })
	h.emit(t, songservice.Event{AudioURL: songservice.Ptr("https://x/1.mp3")})

	// Ticker plus one pending retry.
	if err := h.clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("retry not scheduled: %v", err)
	}
	if n := len(h.tabs.Calls(tabs.ActionPing)); n != 1 {
		t.Fatalf("expected one probe before the delay, got %d", n)
	}
	if h.state() != song.StateWriting {
		t.Fatal("failed probe must not transition to playing")
	}

	h.clock.Advance(time.Second)
	if err := h.clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("second retry not scheduled: %v", err)
	}
	waitFor(t, "second probe", func() bool { return len(h.tabs.Calls(tabs.ActionPing)) == 2 })

	close(ready)
	h.clock.Advance(time.Second)
	waitFor(t, "playing", func() bool { return h.state() == song.StatePlaying })
	if n := len(h.tabs.Calls(tabs.ActionPlayAudio)); n != 1 {
		t.Fatalf("expected exactly one delivery, got %d", n)
	}
}

func TestExtractionFailureDoesNotStartRequest(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.Trigger(context.Background(), tabs.Tab{ID: 3, Title: "Blank"}, song.StyleSpoken); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, "extraction finished", func() bool {
		return len(h.tabs.Calls(tabs.ActionGetText)) == 1 && h.orch.Extracting() == 0
	})
	time.Sleep(10 * time.Millisecond)
	if h.state() != song.StateIdle || len(h.sender.Sent()) != 0 {
		t.Fatalf("extraction failure started a request: state=%s sent=%d", h.state(), len(h.sender.Sent()))
	}
}

func TestRunReturnsWhenServiceCloses(t *testing.T) {
	h := newHarness(t)
	close(h.service)
	select {
	case err := <-h.runErr:
		if !errors.Is(err, orchestrator.ErrServiceClosed) {
			t.Fatalf("Run = %v, want ErrServiceClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if _, err := h.orch.TriggerText(tabs.Tab{ID: 1}, song.StyleMeme, "x"); !errors.Is(err, orchestrator.ErrNotRunning) {
		t.Fatalf("TriggerText after exit = %v", err)
	}
}
