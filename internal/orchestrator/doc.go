// Package orchestrator implements the foreground side of document sync:
// cache-aware opens, offline queueing, trigger escalation, and the drain
// passes run on startup and reconnect.
package orchestrator
