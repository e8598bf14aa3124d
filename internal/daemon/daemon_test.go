package daemon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"songify/internal/config"
	"songify/internal/daemon"
	"songify/internal/logging"
	"songify/internal/song"
	"songify/internal/songservice"
	"songify/internal/store"
	"songify/internal/tabs"
	"songify/internal/testsupport"
)

type fakeService struct {
	mu     sync.Mutex
	sent   []songservice.Request
	events chan songservice.Event
	creds  config.Credentials
	closed bool
}

func (f *fakeService) Send(_ context.Context, req songservice.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeService) Events() <-chan songservice.Event { return f.events }

func (f *fakeService) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeService) Sent() []songservice.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]songservice.Request(nil), f.sent...)
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *fakeService, *store.Store) {
	t.Helper()
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	svc := &fakeService{events: make(chan songservice.Event)}
	d, err := daemon.New(cfg, st, logging.NewNop(), daemon.WithServiceFactory(
		func(_ context.Context, creds config.Credentials) (daemon.ServiceConn, error) {
			svc.creds = creds
			return svc, nil
		},
	))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, svc, st
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

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, svc, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.BridgeAddress == "" {
		t.Fatal("expected bridge address")
	}
	if status.Request.State != song.StateIdle {
		t.Fatalf("state = %s, want idle", status.Request.State)
	}

	if err := d.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	svc.mu.Lock()
	closed := svc.closed
	svc.mu.Unlock()
	if !closed {
		t.Fatal("song service not closed on stop")
	}
}

func TestSecondInstanceBlockedByLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _, _ := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	otherCfg := *cfg
	otherCfg.Bridge.Bind = "127.0.0.1:0"
	st, err := store.Open(&otherCfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	second, err := daemon.New(&otherCfg, st, logging.NewNop(), daemon.WithServiceFactory(
		func(context.Context, config.Credentials) (daemon.ServiceConn, error) {
			t.Fatal("service must not start without the lock")
			return nil, nil
		},
	))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestTriggerWithTextSendsRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, svc, st := newDaemon(t, cfg)
	ctx := context.Background()

	if _, err := d.Trigger(ctx, tabs.Tab{ID: 4}, song.StyleMeme, "x"); !errors.Is(err, daemon.ErrNotStarted) {
		t.Fatalf("Trigger before start = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := d.Trigger(ctx, tabs.Tab{ID: 4}, song.Style("opera"), "x"); err == nil {
		t.Fatal("expected invalid style to be rejected")
	}

	id, err := d.Trigger(ctx, tabs.Tab{ID: 4, Title: "Cat Facts"}, song.StyleCute, "Cats purr.")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, "request sent", func() bool { return len(svc.Sent()) == 1 })
	if sent := svc.Sent()[0]; sent.SongType != song.StyleCute || sent.Text != `"Cats purr."` {
		t.Fatalf("unexpected request %+v", sent)
	}

	status := d.Status(ctx)
	if status.Request.ID != id || status.Request.State != song.StateWriting {
		t.Fatalf("unexpected status %+v", status.Request)
	}
	waitFor(t, "snapshot stored", func() bool {
		req, ok, _ := st.LastRequest(ctx)
		return ok && req.ID == id
	})

	d.Stop()
	stopped := d.Status(ctx)
	if stopped.Running || stopped.Request.ID != id {
		t.Fatalf("stopped status should report the stored request, got %+v", stopped)
	}
}

func TestServiceExitStopsPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, svc, _ := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(svc.events)

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after service exit")
	}
	if err := d.Err(); err == nil {
		t.Fatal("expected fatal error after service exit")
	}
}

func TestCredentialsStoredOverrideConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCredentials("cfg-openai", "cfg-pi"))
	d, svc, _ := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.SetCredentials(ctx, config.Credentials{PiAPIKey: "stored-pi"}); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	creds, err := d.Credentials(ctx)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.OpenAIAPIKey != "cfg-openai" || creds.PiAPIKey != "stored-pi" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.creds.PiAPIKey != "stored-pi" {
		t.Fatalf("service launched with %+v", svc.creds)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _, _ := newDaemon(t, cfg)
	sent, message, err := d.TestNotification(context.Background())
	if err != nil || sent || message != "ntfy topic not configured" {
		t.Fatalf("TestNotification = %v %q %v", sent, message, err)
	}
}
