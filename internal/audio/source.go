package audio

import (
	"fmt"
	"log/slog"
)

// Reader is a single hardware capture read. It fills dst with up to len(dst)
// raw samples and returns how many were written; a call may return fewer
// samples than requested.
type Reader interface {
	ReadSamples(dst []int32) (int, error)
}

// Source assembles fixed-length audio frames from an underlying hardware
// reader and converts them to 16-bit PCM. It owns a preallocated raw frame
// arena reused on every read; nothing is allocated on the hot path.
type Source struct {
	reader       Reader
	logger       *slog.Logger
	warmupFrames int

	raw RawFrame
}

// NewSource creates a frame source over the given hardware reader
func NewSource(reader Reader, warmupFrames int, logger *slog.Logger) *Source {
	return &Source{
		reader:       reader,
		logger:       logger,
		warmupFrames: warmupFrames,
	}
}

// Warmup reads and unconditionally discards the configured number of frames.
// The microphone emits invalid output for a fixed number of clock cycles
// after power-up (datasheet requirement), so this must run before the first
// real frame is used.
func (s *Source) Warmup() error {
	for i := 0; i < s.warmupFrames; i++ {
		if err := s.fillRaw(); err != nil {
			return fmt.Errorf("warmup frame %d: %w", i, err)
		}
	}

	if s.warmupFrames > 0 {
		s.logger.Debug("Capture warmup complete",
			slog.Int("frames_discarded", s.warmupFrames),
		)
	}

	return nil
}

// ReadFrame blocks until exactly FrameSamples raw samples have been assembled,
// then converts them into dst. A hardware read error is returned to the
// caller, which logs and retries on its next scheduling quantum; no frame is
// delivered on error.
func (s *Source) ReadFrame(dst *Frame) error {
	if err := s.fillRaw(); err != nil {
		return err
	}

	Convert(dst, &s.raw)
	return nil
}

// fillRaw issues however many hardware reads are necessary to assemble one
// complete raw frame
func (s *Source) fillRaw() error {
	filled := 0
	for filled < FrameSamples {
		n, err := s.reader.ReadSamples(s.raw[filled:])
		if err != nil {
			return fmt.Errorf("hardware read at sample %d: %w", filled, err)
		}

		if n == 0 {
			return fmt.Errorf("hardware read returned no samples at %d", filled)
		}

		filled += n
	}

	return nil
}
