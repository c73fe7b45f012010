// Package config loads, validates, and normalizes the TOML configuration
// shared by the docsync CLI and the docsyncd daemon.
//
// Load resolves the config path (explicit flag, ~/.config/docsync/config.toml,
// or ./docsync.toml), decodes it over Default(), expands tilde paths, fills
// derived defaults, and validates. Both processes must agree on paths.data_dir
// since the queue database and IPC socket live there.
package config
