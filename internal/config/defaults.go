package config

const (
	defaultConfigPath              = "~/.config/songify/config.toml"
	defaultStateDir                = "~/.local/share/songify"
	defaultLogDir                  = "~/.local/share/songify/logs"
	defaultDownloadDir             = "~/Music/songify"
	defaultNativeCommand           = "article_singer"
	defaultBridgeBind              = "127.0.0.1:7591"
	defaultBridgeCallTimeout       = 10
	defaultTickIntervalMillis      = 1000
	defaultHandshakeRetryMillis    = 1000
	defaultProbeTimeoutMillis      = 5000
	defaultPersistenceGraceSeconds = 240
	defaultNotifyRequestTimeout    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Persistence modes.
const (
	PersistenceBrowser = "browser"
	PersistenceLocal   = "local"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			DownloadDir: defaultDownloadDir,
		},
		Native: Native{
			Command: defaultNativeCommand,
		},
		Bridge: Bridge{
			Bind:               defaultBridgeBind,
			CallTimeoutSeconds: defaultBridgeCallTimeout,
		},
		Timing: Timing{
			TickIntervalMillis:      defaultTickIntervalMillis,
			HandshakeRetryMillis:    defaultHandshakeRetryMillis,
			HandshakeMaxAttempts:    0,
			ProbeTimeoutMillis:      defaultProbeTimeoutMillis,
			PersistenceGraceSeconds: defaultPersistenceGraceSeconds,
		},
		Persistence: Persistence{
			Mode: PersistenceBrowser,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			SongReady:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
