// Package bgfetch supervises managed per-URL background downloads. Jobs are
// identified by UUID, run inside the daemon, and report outcomes through a
// callback surface so the transfer mechanics stay separate from queue and
// cache bookkeeping.
package bgfetch
