// Package wakeup models one-shot sync-tag registrations. A tag parks until
// connectivity returns, fires once, and must be re-registered if work
// remains. Deployments without the capability answer every registration with
// ErrUnsupported so callers can fall through their trigger priority order.
package wakeup
