package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateApp(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if strings.TrimSpace(c.Paths.HTTPBind) == "" {
		return errors.New("paths.http_bind must be set")
	}
	return nil
}

func (c *Config) validateApp() error {
	if c.App.UpstreamURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/docsync/config.toml"
		}
		return fmt.Errorf("app.upstream_url is required. Edit %s (create with 'docsync config init')", defaultPath)
	}
	parsed, err := url.Parse(c.App.UpstreamURL)
	if err != nil {
		return fmt.Errorf("app.upstream_url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("app.upstream_url must be http or https, got %q", parsed.Scheme)
	}
	if strings.ContainsAny(c.App.Tenant, "/\\") {
		return fmt.Errorf("app.tenant %q must not contain path separators", c.App.Tenant)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.ProbeURL != "" {
		parsed, err := url.Parse(c.Sync.ProbeURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("sync.probe_url %q must be an absolute http/https URL", c.Sync.ProbeURL)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
