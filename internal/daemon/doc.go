// Package daemon wires the sync engine, connectivity monitor, wake-up
// registrations, managed downloads, and the local HTTP surface into one
// long-running process guarded by a file lock.
package daemon
