// Package audio handles microphone frame acquisition and format conversion.
// It assembles fixed 256-sample frames from partial hardware reads, converts
// the 32-bit left-justified capture format to signed 16-bit PCM, and discards
// the mandatory warm-up frames after power-up.
package audio
