package indicator

import "log/slog"

// Signal is the visual state reflected to the operator
type Signal int

const (
	// SignalOff clears the indicator (machine idle)
	SignalOff Signal = iota
	// SignalRecording shows that audio is being captured and streamed
	SignalRecording
	// SignalWaitBlinkOn and SignalWaitBlinkOff alternate during the
	// post-release grace period
	SignalWaitBlinkOn
	SignalWaitBlinkOff
	// SignalProcessing shows that the backend is working on the utterance
	SignalProcessing
	// SignalError flags a failed utterance until the next press
	SignalError
)

// String returns a human-readable representation of the signal
func (s Signal) String() string {
	switch s {
	case SignalOff:
		return "off"
	case SignalRecording:
		return "recording"
	case SignalWaitBlinkOn:
		return "wait-blink-on"
	case SignalWaitBlinkOff:
		return "wait-blink-off"
	case SignalProcessing:
		return "processing"
	case SignalError:
		return "error"
	default:
		return "unknown"
	}
}

// Indicator reflects machine state visually. It is best-effort and
// non-functional: implementations swallow hardware errors after logging, and
// callers never branch on the outcome.
type Indicator interface {
	Set(s Signal)
}

// Log is an Indicator that only writes state changes to the log. Used when no
// LED is configured and as the fallback when LED setup fails.
type Log struct {
	logger *slog.Logger
	last   Signal
}

// NewLog creates a log-only indicator
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger, last: -1}
}

// Set logs the signal when it changes
func (l *Log) Set(s Signal) {
	if s == l.last {
		return
	}
	l.last = s
	l.logger.Debug("Indicator state", slog.String("signal", s.String()))
}
