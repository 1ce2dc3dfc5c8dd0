// Package protocol defines the byte-level contract between the client and the
// backend: raw little-endian 16-bit PCM frames with no length prefix, a fixed
// 4-byte end-of-audio marker sent exactly once per session, and a single
// acknowledgment byte read back after the marker.
package protocol
