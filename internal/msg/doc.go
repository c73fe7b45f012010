// Package msg defines the events the daemon broadcasts to foreground
// processes and the journal hub that carries them over a long-poll IPC
// surface.
package msg
