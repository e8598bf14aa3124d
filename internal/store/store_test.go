package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"songify/internal/config"
	"songify/internal/song"
	"songify/internal/store"
	"songify/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if st.Path() != cfg.DatabasePath() {
		t.Fatalf("path = %q, want %q", st.Path(), cfg.DatabasePath())
	}

	req, ok, err := st.LastRequest(context.Background())
	if err != nil {
		t.Fatalf("LastRequest: %v", err)
	}
	if ok || req.State != song.StateIdle {
		t.Fatalf("fresh store returned %+v (ok=%v)", req, ok)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.SetSetting(ctx, store.KeyPiAPIKey, "pi-1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	_ = st.Close()

	st = testsupport.MustOpenStore(t, cfg)
	value, ok, err := st.Setting(ctx, store.KeyPiAPIKey)
	if err != nil || !ok || value != "pi-1" {
		t.Fatalf("Setting = %q ok=%v err=%v", value, ok, err)
	}
}

func TestSchemaMismatchRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.Close()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := store.Open(cfg); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("Open = %v, want ErrSchemaMismatch", err)
	}
}

func TestSettingsUpsertAndDelete(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := st.SetSetting(ctx, store.KeyOpenAIAPIKey, "sk-1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := st.SetSetting(ctx, store.KeyOpenAIAPIKey, "sk-2"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	if v, _, _ := st.Setting(ctx, store.KeyOpenAIAPIKey); v != "sk-2" {
		t.Fatalf("value = %q, want sk-2", v)
	}
	if err := st.SetSetting(ctx, store.KeyOpenAIAPIKey, ""); err != nil {
		t.Fatalf("SetSetting delete: %v", err)
	}
	if _, ok, _ := st.Setting(ctx, store.KeyOpenAIAPIKey); ok {
		t.Fatal("empty value should delete the key")
	}
	if err := st.SetSetting(ctx, "  ", "x"); err == nil {
		t.Fatal("expected error for blank key")
	}
}

func TestCredentialsPartialUpdate(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := st.SetCredentials(ctx, config.Credentials{OpenAIAPIKey: "sk-1", PiAPIKey: "pi-1"}); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if err := st.SetCredentials(ctx, config.Credentials{PiAPIKey: "pi-2"}); err != nil {
		t.Fatalf("SetCredentials partial: %v", err)
	}
	creds, err := st.Credentials(ctx)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.OpenAIAPIKey != "sk-1" || creds.PiAPIKey != "pi-2" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestResolveCredentialsPrefersStored(t *testing.T) {
	got := store.ResolveCredentials(
		config.Credentials{OpenAIAPIKey: "cfg-openai", PiAPIKey: "cfg-pi"},
		config.Credentials{PiAPIKey: "stored-pi"},
	)
	if got.OpenAIAPIKey != "cfg-openai" || got.PiAPIKey != "stored-pi" {
		t.Fatalf("unexpected merge %+v", got)
	}
}

func TestLastRequestRoundTrip(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := song.Request{
		ID:          "req-1",
		OriginTabID: 7,
		Style:       song.StyleMeme,
		Title:       "Cat Facts",
		State:       song.StateWriting,
		StartedAt:   started,
		UpdatedAt:   started,
	}
	if err := st.SaveLastRequest(ctx, first); err != nil {
		t.Fatalf("SaveLastRequest: %v", err)
	}

	second := first
	second.ID = "req-2"
	second.Title = "Cat Song"
	second.State = song.StatePlaying
	second.OriginTabID = song.TabNone
	second.AudioURL = "https://x/1.mp3"
	second.StartedAt = time.Time{}
	second.UpdatedAt = started.Add(90 * time.Second)
	if err := st.SaveLastRequest(ctx, second); err != nil {
		t.Fatalf("SaveLastRequest replace: %v", err)
	}

	got, ok, err := st.LastRequest(ctx)
	if err != nil || !ok {
		t.Fatalf("LastRequest ok=%v err=%v", ok, err)
	}
	if got.ID != "req-2" || got.Title != "Cat Song" || got.State != song.StatePlaying {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if got.OriginTabID != song.TabNone || got.AudioURL != "https://x/1.mp3" {
		t.Fatalf("unexpected snapshot fields %+v", got)
	}
	if !got.StartedAt.IsZero() || !got.UpdatedAt.Equal(second.UpdatedAt) {
		t.Fatalf("unexpected times started=%v updated=%v", got.StartedAt, got.UpdatedAt)
	}
}

func TestSaveIdleRequestIsNoop(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := st.SaveLastRequest(context.Background(), song.Idle()); err != nil {
		t.Fatalf("SaveLastRequest: %v", err)
	}
	if _, ok, _ := st.LastRequest(context.Background()); ok {
		t.Fatal("idle request should not be stored")
	}
}
