// Package indicator maps machine state to a best-effort visual signal, backed
// by a GPIO status LED or by the log when no LED is configured.
package indicator
