// Package ptt implements the push-to-talk control loop.
//
// The machine owns the full utterance lifecycle as a single-threaded state
// machine over four states:
//
//   - IDLE: no session; a debounced press edge opens a TCP session and
//     starts streaming.
//   - RECORDING: one audio frame acquired and sent per tick while the
//     button is held.
//   - WAIT: after release, streaming continues through a grace period so
//     trailing speech is not clipped; a re-press resumes RECORDING on the
//     same session.
//   - PROCESSING: after the end marker, a bounded poll waits for the
//     backend's completion byte under an overall deadline.
//
// Transitions are driven only by debounced button edges, frame and send
// outcomes, and timer expiries. Every failure path closes the session and
// returns to IDLE: a dropped connection, an unresponsive backend, or a
// misbehaving microphone must never leave the device wedged.
//
// Frame acquisition paces the loop while a session is live (one frame is
// 16 ms of audio), the acknowledgment poll timeout paces PROCESSING, and a
// configured sleep paces IDLE. Tick takes the clock reading as an argument,
// which keeps all timing behavior deterministic under test.
package ptt
