// Package worker implements the daemon-side sync engine. It drains the
// pending-downloads queue when a wake-up trigger fires and settles managed
// background downloads against the same retry accounting.
package worker
