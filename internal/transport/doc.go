// Package transport owns the single TCP session bound to one utterance. It
// streams encoded audio frames in acquisition order, sends the end marker
// exactly once, and performs the bounded acknowledgment wait without ever
// blocking the control loop for longer than the configured poll timeout.
package transport
