package input

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Button is a GPIO-backed raw input line. Level returns true while the
// push-to-talk button is held, with active-low polarity handled by the
// character device.
type Button struct {
	line *gpiocdev.Line
}

// NewButton requests the button line from the given gpiochip
func NewButton(chip string, offset int, activeLow bool) (*Button, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to request button line %s:%d: %w", chip, offset, err)
	}

	return &Button{line: line}, nil
}

// Level samples the raw button level
func (b *Button) Level() (bool, error) {
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read button line: %w", err)
	}
	return v != 0, nil
}

// Close releases the GPIO line
func (b *Button) Close() error {
	return b.line.Close()
}
