// Package input provides the push-to-talk button: a GPIO character-device
// line and a temporal-hysteresis debouncer that turns its noisy raw level
// into a stable logical press/release signal.
package input
