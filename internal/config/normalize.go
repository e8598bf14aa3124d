package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNative()
	c.normalizeBridge()
	c.normalizeTiming()
	c.normalizePersistence()
	c.normalizeCredentials()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNative() {
	c.Native.Command = strings.TrimSpace(c.Native.Command)
	if c.Native.Command == "" {
		c.Native.Command = defaultNativeCommand
	}
	if strings.HasPrefix(c.Native.Command, "~") {
		if expanded, err := expandPath(c.Native.Command); err == nil {
			c.Native.Command = expanded
		}
	}
}

func (c *Config) normalizeBridge() {
	c.Bridge.Bind = strings.TrimSpace(c.Bridge.Bind)
	if c.Bridge.Bind == "" {
		c.Bridge.Bind = defaultBridgeBind
	}
	c.Bridge.Token = strings.TrimSpace(c.Bridge.Token)
	if c.Bridge.Token == "" {
		if value, ok := os.LookupEnv("SONGIFY_BRIDGE_TOKEN"); ok {
			c.Bridge.Token = strings.TrimSpace(value)
		}
	}
	if c.Bridge.CallTimeoutSeconds <= 0 {
		c.Bridge.CallTimeoutSeconds = defaultBridgeCallTimeout
	}
}

func (c *Config) normalizeTiming() {
	if c.Timing.TickIntervalMillis <= 0 {
		c.Timing.TickIntervalMillis = defaultTickIntervalMillis
	}
	if c.Timing.HandshakeRetryMillis <= 0 {
		c.Timing.HandshakeRetryMillis = defaultHandshakeRetryMillis
	}
	if c.Timing.ProbeTimeoutMillis <= 0 {
		c.Timing.ProbeTimeoutMillis = defaultProbeTimeoutMillis
	}
	if c.Timing.PersistenceGraceSeconds <= 0 {
		c.Timing.PersistenceGraceSeconds = defaultPersistenceGraceSeconds
	}
}

func (c *Config) normalizePersistence() {
	c.Persistence.Mode = strings.ToLower(strings.TrimSpace(c.Persistence.Mode))
	if c.Persistence.Mode == "" {
		c.Persistence.Mode = PersistenceBrowser
	}
}

func (c *Config) normalizeCredentials() {
	c.Credentials.OpenAIAPIKey = strings.TrimSpace(c.Credentials.OpenAIAPIKey)
	if c.Credentials.OpenAIAPIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Credentials.OpenAIAPIKey = strings.TrimSpace(value)
		}
	}
	c.Credentials.PiAPIKey = strings.TrimSpace(c.Credentials.PiAPIKey)
	if c.Credentials.PiAPIKey == "" {
		if value, ok := os.LookupEnv("PIAPI_KEY"); ok {
			c.Credentials.PiAPIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
