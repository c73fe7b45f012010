// Package connectivity watches upstream reachability with periodic HEAD
// probes and announces online/offline transitions to the rest of the daemon.
package connectivity
