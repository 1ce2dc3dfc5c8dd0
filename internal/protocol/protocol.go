package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants from the backend wire contract
const (
	// Audio format, agreed out-of-band with the backend. There is no
	// negotiation on the wire.
	SampleRate = 16000
	BitDepth   = 16
	Channels   = 1

	// FrameSamples is the number of samples per audio frame
	FrameSamples = 256

	// FrameBytes is the encoded size of one audio frame (256 LE int16 samples)
	FrameBytes = FrameSamples * 2

	// EndMarkerSize is the size of the end-of-audio marker
	EndMarkerSize = 4

	// Acknowledgment byte values
	AckSuccess = 0x01
)

// EndMarker is the fixed byte sequence signaling end-of-audio to the backend.
// It is sent exactly once per session, after the last audio frame.
var EndMarker = [EndMarkerSize]byte{0xDE, 0xAD, 0xBE, 0xEF}

// AckResult classifies the backend's completion acknowledgment
type AckResult int

const (
	// AckPending indicates no acknowledgment byte has arrived yet
	AckPending AckResult = iota
	// AckOK indicates the backend acknowledged success (0x01)
	AckOK
	// AckAnomaly indicates a non-success byte, a peer close before
	// acknowledgment, or a read error
	AckAnomaly
)

// String returns a human-readable representation of the ack result
func (r AckResult) String() string {
	switch r {
	case AckPending:
		return "pending"
	case AckOK:
		return "ok"
	case AckAnomaly:
		return "anomaly"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// EncodeFrame serializes 256 signed 16-bit samples into dst as little-endian
// bytes. dst must be at least FrameBytes long; the written prefix is returned.
// Frame boundaries are implicit in the stream, so there is no length prefix.
func EncodeFrame(dst []byte, samples []int16) ([]byte, error) {
	if len(samples) != FrameSamples {
		return nil, fmt.Errorf("expected %d samples, got %d", FrameSamples, len(samples))
	}

	if len(dst) < FrameBytes {
		return nil, fmt.Errorf("destination too short: expected %d bytes, got %d", FrameBytes, len(dst))
	}

	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}

	return dst[:FrameBytes], nil
}

// DecodeFrame parses FrameBytes of little-endian signed 16-bit samples into
// dst. Used by test tooling; the client itself only encodes.
func DecodeFrame(dst []int16, data []byte) error {
	if len(data) != FrameBytes {
		return fmt.Errorf("expected %d bytes, got %d", FrameBytes, len(data))
	}

	if len(dst) < FrameSamples {
		return fmt.Errorf("destination too short: expected %d samples, got %d", FrameSamples, len(dst))
	}

	for i := 0; i < FrameSamples; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return nil
}

// IsEndMarker reports whether the last EndMarkerSize bytes of buf form the
// end-of-audio marker
func IsEndMarker(buf []byte) bool {
	if len(buf) < EndMarkerSize {
		return false
	}

	tail := buf[len(buf)-EndMarkerSize:]
	for i := range EndMarker {
		if tail[i] != EndMarker[i] {
			return false
		}
	}

	return true
}

// ClassifyAck maps a single acknowledgment byte to an AckResult
func ClassifyAck(b byte) AckResult {
	if b == AckSuccess {
		return AckOK
	}
	return AckAnomaly
}
