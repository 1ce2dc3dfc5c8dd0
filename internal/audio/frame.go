package audio

import "github.com/Engstrom98/Kenta/internal/protocol"

// FrameSamples is the number of samples per frame (~16 ms of mono audio at 16 kHz)
const FrameSamples = protocol.FrameSamples

// RawFrame holds one frame of hardware-native samples. Each sample is a
// 32-bit container whose high-order 16 bits carry the signal (left-justified
// fixed-point layout). RawFrames are reused per read; no history is retained.
type RawFrame [FrameSamples]int32

// Frame holds one frame of signed 16-bit PCM samples, immutable once produced
// and transmitted in acquisition order.
type Frame [FrameSamples]int16

// Convert derives a Frame from a RawFrame by taking the top 16 bits of each
// sample (arithmetic right shift by 16).
func Convert(dst *Frame, src *RawFrame) {
	for i, s := range src {
		dst[i] = int16(s >> 16)
	}
}
