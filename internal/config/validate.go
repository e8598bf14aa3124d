package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBridge(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validatePersistence(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBridge() error {
	if _, _, err := net.SplitHostPort(c.Bridge.Bind); err != nil {
		return fmt.Errorf("bridge.bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateTiming() error {
	if c.Timing.HandshakeMaxAttempts < 0 {
		return errors.New("timing.handshake_max_attempts must be >= 0 (0 retries forever)")
	}
	if c.Timing.TickIntervalMillis < 100 {
		return errors.New("timing.tick_interval_ms must be at least 100")
	}
	return nil
}

func (c *Config) validatePersistence() error {
	switch c.Persistence.Mode {
	case PersistenceBrowser, PersistenceLocal:
	default:
		return fmt.Errorf("persistence.mode: unsupported value %q (want %q or %q)", c.Persistence.Mode, PersistenceBrowser, PersistenceLocal)
	}
	if c.Persistence.Mode == PersistenceLocal && strings.TrimSpace(c.Paths.DownloadDir) == "" {
		return errors.New("paths.download_dir is required when persistence.mode is local")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
