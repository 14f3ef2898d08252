// Package idgen wraps the UUID generator used for boot session and event
// identifiers so that it can be stubbed in tests. Callers should treat the
// identifiers as opaque strings.
package idgen
