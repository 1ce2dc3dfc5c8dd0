package indicator

import (
	"fmt"
	"log/slog"

	"github.com/warthog618/go-gpiocdev"
)

// LED drives a single status LED on a GPIO line. The mapping is coarse on
// purpose: solid during recording and processing, alternating during the
// grace period, solid on error, dark when idle. Color and richer patterns are
// cosmetic and out of scope.
type LED struct {
	line   *gpiocdev.Line
	logger *slog.Logger
	last   Signal
}

// NewLED requests the LED line from the given gpiochip
func NewLED(chip string, offset int, logger *slog.Logger) (*LED, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("failed to request LED line %s:%d: %w", chip, offset, err)
	}

	return &LED{line: line, logger: logger, last: -1}, nil
}

// Set drives the LED for the given signal. Hardware errors are logged and
// otherwise ignored; the indicator never fails an utterance.
func (l *LED) Set(s Signal) {
	if s == l.last {
		return
	}
	l.last = s

	value := 0
	switch s {
	case SignalRecording, SignalWaitBlinkOn, SignalProcessing, SignalError:
		value = 1
	}

	if err := l.line.SetValue(value); err != nil {
		l.logger.Warn("Failed to drive LED",
			slog.String("signal", s.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Close darkens the LED and releases the GPIO line
func (l *LED) Close() error {
	if err := l.line.SetValue(0); err != nil {
		l.logger.Warn("Failed to clear LED on close", slog.String("error", err.Error()))
	}
	return l.line.Close()
}
