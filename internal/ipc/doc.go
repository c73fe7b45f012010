// Package ipc carries the control protocol between the docsync CLI and the
// daemon: JSON-RPC over a Unix domain socket.
package ipc
