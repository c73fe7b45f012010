// Package logging builds the slog loggers used by both binaries and provides
// shared attribute helpers plus standardized field keys. The console handler
// renders a compact single-line format with the component attribute promoted
// into the message prefix; the JSON handler is meant for log shippers.
package logging
