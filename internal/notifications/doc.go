// Package notifications delivers push notifications through ntfy. Without a
// configured topic the service degrades to a noop so the sync engine never
// has to check whether notifications are wired up. Success notifications are
// quiet and deduplicated per URL; terminal failure notifications are loud and
// always delivered.
package notifications
