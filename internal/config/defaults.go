package config

const (
	defaultDataDir  = "~/.local/share/docsync"
	defaultLogDir   = "~/.local/share/docsync/logs"
	defaultCacheDir = "~/.local/share/docsync/cache"
	defaultHTTPBind = "127.0.0.1:8487"

	defaultTenant     = "default"
	defaultEntryPoint = "/index.html"

	defaultSyncInterval      = 900
	defaultProbeInterval     = 30
	defaultProbeTimeout      = 5
	defaultDrainGraceSeconds = 10
	defaultFetchTimeout      = 120

	defaultNotifyRequestTimeout     = 10
	defaultNotifyDedupWindowSeconds = 600

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir,
			HTTPBind: defaultHTTPBind,
		},
		App: App{
			Tenant:     defaultTenant,
			EntryPoint: defaultEntryPoint,
		},
		Sync: Sync{
			BackgroundSync:    true,
			BackgroundFetch:   true,
			SyncInterval:      defaultSyncInterval,
			ProbeInterval:     defaultProbeInterval,
			ProbeTimeout:      defaultProbeTimeout,
			DrainGraceSeconds: defaultDrainGraceSeconds,
			FetchTimeout:      defaultFetchTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
