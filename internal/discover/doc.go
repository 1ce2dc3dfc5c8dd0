// Package discover resolves the backend's symbolic mDNS service name to a
// network address with bounded retries and a static fallback. Resolution runs
// once at startup; the result is cached for the process lifetime.
package discover
