package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	DownloadDir string `toml:"download_dir"`
}

// Native describes how the song-generation host process is launched.
type Native struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Bridge contains the browser host bridge listener settings.
type Bridge struct {
	Bind               string `toml:"bind"`
	Token              string `toml:"token"`
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
}

// Timing contains the request lifecycle timer settings.
type Timing struct {
	TickIntervalMillis      int `toml:"tick_interval_ms"`
	HandshakeRetryMillis    int `toml:"handshake_retry_ms"`
	HandshakeMaxAttempts    int `toml:"handshake_max_attempts"`
	ProbeTimeoutMillis      int `toml:"probe_timeout_ms"`
	PersistenceGraceSeconds int `toml:"persistence_grace_seconds"`
}

// Persistence controls how finished songs are saved.
type Persistence struct {
	// Mode is "browser" (ask the extension to download) or "local" (fetch into download_dir).
	Mode               string `toml:"mode"`
	CancelOnNewRequest bool   `toml:"cancel_on_new_request"`
}

// Credentials holds the API keys forwarded to the song-generation host.
type Credentials struct {
	OpenAIAPIKey string `toml:"openai_api_key"`
	PiAPIKey     string `toml:"piapi_key"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SongReady      bool   `toml:"song_ready"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Songify.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and download directories
//   - Native: song-generation host command line
//   - Bridge: websocket listener the browser extension connects to
//   - Timing: ticker period, handshake retry policy, persistence grace period
//   - Persistence: download mode and cancellation policy
//   - Credentials: API keys forwarded to the song host
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Native        Native        `toml:"native"`
	Bridge        Bridge        `toml:"bridge"`
	Timing        Timing        `toml:"timing"`
	Persistence   Persistence   `toml:"persistence"`
	Credentials   Credentials   `toml:"credentials"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// A .env beside the config file may carry credentials; existing env vars win.
	envPath := filepath.Join(filepath.Dir(resolvedPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load %s: %w", envPath, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("songify.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	if c.Persistence.Mode == PersistenceLocal {
		dirs = append(dirs, c.Paths.DownloadDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "songify.sock")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "songify.log")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "songify.pid")
}

// DatabasePath returns the SQLite settings store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "songify.db")
}

// LockPath returns the single-instance daemon lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "songifyd.lock")
}

// TickInterval is the elapsed-time ticker period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timing.TickIntervalMillis) * time.Millisecond
}

// HandshakeRetryDelay is the fixed delay between readiness probes.
func (c *Config) HandshakeRetryDelay() time.Duration {
	return time.Duration(c.Timing.HandshakeRetryMillis) * time.Millisecond
}

// ProbeTimeout bounds a single readiness probe or playback delivery.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Timing.ProbeTimeoutMillis) * time.Millisecond
}

// PersistenceGrace is the delay between playback delivery and download.
func (c *Config) PersistenceGrace() time.Duration {
	return time.Duration(c.Timing.PersistenceGraceSeconds) * time.Second
}

// BridgeCallTimeout bounds a single round trip to the extension.
func (c *Config) BridgeCallTimeout() time.Duration {
	return time.Duration(c.Bridge.CallTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
