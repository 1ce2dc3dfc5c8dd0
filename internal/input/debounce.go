package input

import "time"

// Line is a raw digital input level. Implementations may bounce arbitrarily
// around mechanical transitions; the Debouncer filters that out.
type Line interface {
	Level() (bool, error)
}

// Debouncer converts a noisy digital input into a stable logical level using
// temporal hysteresis: a raw change is only promoted to the stable level once
// the new level has persisted continuously for the debounce interval. Any
// reversion before the interval elapses cancels the pending change, so an
// arbitrary number of bounces inside the window never emits a spurious
// transition.
type Debouncer struct {
	line     Line
	interval time.Duration

	stable       bool
	pendingLevel bool
	pendingSince time.Time // zero means no pending change
}

// NewDebouncer creates a debouncer over the raw line. The initial stable
// level is the given resting level.
func NewDebouncer(line Line, interval time.Duration, resting bool) *Debouncer {
	return &Debouncer{
		line:     line,
		interval: interval,
		stable:   resting,
	}
}

// Poll samples the raw line once and returns the stable level as of now.
// A read error leaves the stable level and any pending change untouched.
func (d *Debouncer) Poll(now time.Time) (bool, error) {
	raw, err := d.line.Level()
	if err != nil {
		return d.stable, err
	}

	if raw == d.stable {
		// Reversion to the accepted level cancels any pending change.
		d.pendingSince = time.Time{}
		return d.stable, nil
	}

	if d.pendingSince.IsZero() || raw != d.pendingLevel {
		d.pendingLevel = raw
		d.pendingSince = now
		return d.stable, nil
	}

	if now.Sub(d.pendingSince) >= d.interval {
		d.stable = raw
		d.pendingSince = time.Time{}
	}

	return d.stable, nil
}

// Stable returns the last accepted stable level without sampling the line
func (d *Debouncer) Stable() bool {
	return d.stable
}
