package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"songify/internal/song"
	"songify/internal/testsupport"
)

func TestStylesCommandListsEveryStyle(t *testing.T) {
	out, _, err := runCLI(t, []string{"styles"}, "", "")
	if err != nil {
		t.Fatalf("styles: %v", err)
	}
	for _, style := range song.AllStyles {
		requireContains(t, out, string(style))
	}
}

func TestTriggerWithTextReachesService(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "trigger", "--tab", "7", "--title", "Cat Facts", "--style", "meme", "--text", "Cats purr.")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	requireContains(t, out, "Song requested (id ")

	waitFor(t, 2*time.Second, func() bool { return len(env.service.Sent()) == 1 })
	sent := env.service.Sent()[0]
	if sent.SongType != song.StyleMeme || sent.Text != `"Cats purr."` {
		t.Fatalf("unexpected request %+v", sent)
	}

	status, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, status, "== Current Song ==")
	requireContains(t, status, "Writing song")
	requireContains(t, status, "Running (pid")
}

func TestTriggerRejectsUnknownStyle(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "trigger", "--tab", "1", "--style", "opera", "--text", "x")
	if err == nil {
		t.Fatal("expected unknown style to fail")
	}
	if len(env.service.Sent()) != 0 {
		t.Fatal("rejected trigger reached the service")
	}
}

func TestTriggerReadsTextFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(t.TempDir(), "page.txt")
	if err := os.WriteFile(path, []byte("  Dogs bark.\n"), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if _, err := env.run(t, "trigger", "--tab", "2", "--text-file", path); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(env.service.Sent()) == 1 })
	if got := env.service.Sent()[0]; got.Text != `"Dogs bark."` || got.SongType != song.StyleMusical {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSettingsSetAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "settings", "set", "--openai-api-key", "sk-test-0001")
	if err != nil {
		t.Fatalf("settings set: %v", err)
	}
	requireContains(t, out, "Settings saved")
	requireContains(t, out, "Restart the daemon")

	out, err = env.run(t, "settings", "show")
	if err != nil {
		t.Fatalf("settings show: %v", err)
	}
	requireContains(t, out, "••••0001")
	requireContains(t, out, "(not set)")
	if strings.Contains(out, "sk-test-0001") {
		t.Fatalf("settings show leaked the key: %q", out)
	}
}

func TestSettingsSetRequiresAValue(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "settings", "set"); err == nil {
		t.Fatal("expected error without flags")
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestStatusWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"status"}, filepath.Join(t.TempDir(), "missing.sock"), configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "== Preflight ==")
}

func TestTriggerWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	_, _, err := runCLI(t, []string{"trigger", "--text", "x"}, filepath.Join(t.TempDir(), "missing.sock"), configPath)
	if err == nil || !strings.Contains(err.Error(), "songify run") {
		t.Fatalf("expected daemon unavailable hint, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+configPath)
	requireContains(t, out, "Configuration valid")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "songify", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected second init to fail without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}
}

func TestLogsShowsTrailingLines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if err := os.WriteFile(cfg.LogPath(), []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, "", configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "first") {
		t.Fatalf("expected only the last two lines, got %q", out)
	}
	requireContains(t, out, "second\nthird\n")
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"stop"}, filepath.Join(t.TempDir(), "missing.sock"), configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
