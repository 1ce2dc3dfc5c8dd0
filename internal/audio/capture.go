package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Capture is a PortAudio-backed hardware reader producing raw 32-bit mono
// samples from the default (or named) input device.
type Capture struct {
	stream *portaudio.Stream

	// DMA-style staging buffer; PortAudio fills it whole, ReadSamples
	// drains it in however many pieces the caller asks for.
	buf []int32
	off int
	n   int
}

// NewCapture initializes PortAudio and opens a mono input stream at the given
// sample rate. Close must be called to release the device.
func NewCapture(sampleRate int, device string) (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c := &Capture{
		buf: make([]int32, FrameSamples),
	}

	stream, err := openInputStream(sampleRate, device, c.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	c.stream = stream

	if err := c.stream.Start(); err != nil {
		c.stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start capture stream: %w", err)
	}

	return c, nil
}

func openInputStream(sampleRate int, device string, buf []int32) (*portaudio.Stream, error) {
	if device == "" {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
		if err != nil {
			return nil, fmt.Errorf("failed to open default input stream: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}

	for _, d := range devices {
		if d.Name != device || d.MaxInputChannels < 1 {
			continue
		}

		params := portaudio.LowLatencyParameters(d, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(sampleRate)
		params.FramesPerBuffer = len(buf)

		stream, err := portaudio.OpenStream(params, buf)
		if err != nil {
			return nil, fmt.Errorf("failed to open input stream on %s: %w", device, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("input device %q not found", device)
}

// ReadSamples fills dst from the staging buffer, blocking on the device when
// the buffer is drained. It may return fewer samples than requested.
func (c *Capture) ReadSamples(dst []int32) (int, error) {
	if c.off >= c.n {
		if err := c.stream.Read(); err != nil {
			return 0, fmt.Errorf("capture read failed: %w", err)
		}
		c.off = 0
		c.n = len(c.buf)
	}

	n := copy(dst, c.buf[c.off:c.n])
	c.off += n
	return n, nil
}

// Close stops the stream and releases PortAudio
func (c *Capture) Close() error {
	var firstErr error

	if err := c.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop capture stream: %w", err)
	}

	if err := c.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close capture stream: %w", err)
	}

	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to terminate portaudio: %w", err)
	}

	return firstErr
}
