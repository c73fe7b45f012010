package config

import (
	"strings"
)

// normalize expands path fields and fills derived defaults so the rest of the
// codebase never has to deal with tildes or empty intervals.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Paths.SocketPath) != "" {
		if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
			return err
		}
	}

	c.App.Tenant = strings.TrimSpace(c.App.Tenant)
	if c.App.Tenant == "" {
		c.App.Tenant = defaultTenant
	}
	c.App.UpstreamURL = strings.TrimRight(strings.TrimSpace(c.App.UpstreamURL), "/")
	c.App.EntryPoint = strings.TrimSpace(c.App.EntryPoint)
	if c.App.EntryPoint == "" {
		c.App.EntryPoint = defaultEntryPoint
	}
	if !strings.HasPrefix(c.App.EntryPoint, "/") {
		c.App.EntryPoint = "/" + c.App.EntryPoint
	}

	if c.Sync.SyncInterval <= 0 {
		c.Sync.SyncInterval = defaultSyncInterval
	}
	if c.Sync.ProbeInterval <= 0 {
		c.Sync.ProbeInterval = defaultProbeInterval
	}
	if c.Sync.ProbeTimeout <= 0 {
		c.Sync.ProbeTimeout = defaultProbeTimeout
	}
	if c.Sync.DrainGraceSeconds <= 0 {
		c.Sync.DrainGraceSeconds = defaultDrainGraceSeconds
	}
	if c.Sync.FetchTimeout <= 0 {
		c.Sync.FetchTimeout = defaultFetchTimeout
	}
	c.Sync.ProbeURL = strings.TrimSpace(c.Sync.ProbeURL)
	if c.Sync.ProbeURL == "" && c.App.UpstreamURL != "" {
		c.Sync.ProbeURL = c.App.UpstreamURL + "/"
	}

	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}

	return nil
}
