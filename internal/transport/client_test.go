package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/Engstrom98/Kenta/internal/audio"
	"github.com/Engstrom98/Kenta/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startBackend listens on loopback and hands the accepted connection to the
// test over a channel
func startBackend(t *testing.T) (string, <-chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()

	return ln.Addr().String(), conns
}

func acceptConn(t *testing.T, conns <-chan net.Conn) net.Conn {
	t.Helper()

	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for backend to accept")
		return nil
	}
}

func frameWithValue(v int16) *audio.Frame {
	var f audio.Frame
	for i := range f {
		f[i] = v
	}
	return &f
}

func TestOpenAndClose(t *testing.T) {
	addr, conns := startBackend(t)
	client := NewClient(time.Second, testLogger())

	if client.Active() {
		t.Error("Expected no active session initially")
	}

	if err := client.Open(addr); err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	acceptConn(t, conns)

	if !client.Active() {
		t.Error("Expected active session after open")
	}

	if err := client.Open(addr); !errors.Is(err, ErrSessionActive) {
		t.Errorf("Expected ErrSessionActive on second open, got %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}

	if client.Active() {
		t.Error("Expected no active session after close")
	}

	// Close without a session is a no-op, never a double close
	if err := client.Close(); err != nil {
		t.Errorf("Expected idempotent close, got %v", err)
	}
}

func TestOpenConnectFailure(t *testing.T) {
	client := NewClient(200*time.Millisecond, testLogger())

	// Reserved TEST-NET address, nothing listens there
	if err := client.Open("192.0.2.1:12345"); err == nil {
		t.Fatal("Expected connect failure")
	}

	if client.Active() {
		t.Error("Failed connect must not leave a session behind")
	}
}

func TestFrameOrderingAndMarker(t *testing.T) {
	addr, conns := startBackend(t)
	client := NewClient(time.Second, testLogger())

	if err := client.Open(addr); err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	defer client.Close()
	backend := acceptConn(t, conns)

	const frames = 3
	for i := 0; i < frames; i++ {
		if err := client.SendFrame(frameWithValue(int16(i + 1))); err != nil {
			t.Fatalf("Failed to send frame %d: %v", i, err)
		}
	}

	if err := client.SendEndMarker(); err != nil {
		t.Fatalf("Failed to send end marker: %v", err)
	}

	// Ordering law: frames in acquisition order, then the marker, exactly once
	received := make([]byte, frames*protocol.FrameBytes+protocol.EndMarkerSize)
	backend.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(backend, received); err != nil {
		t.Fatalf("Backend failed to read stream: %v", err)
	}

	decoded := make([]int16, protocol.FrameSamples)
	for i := 0; i < frames; i++ {
		start := i * protocol.FrameBytes
		if err := protocol.DecodeFrame(decoded, received[start:start+protocol.FrameBytes]); err != nil {
			t.Fatalf("Failed to decode frame %d: %v", i, err)
		}
		if decoded[0] != int16(i+1) {
			t.Errorf("Frame %d out of order: expected value %d, got %d", i, i+1, decoded[0])
		}
	}

	if !protocol.IsEndMarker(received) {
		t.Error("Expected end marker after the last frame")
	}

	// No frame after the marker, and the marker goes out exactly once
	if err := client.SendFrame(frameWithValue(9)); err == nil {
		t.Error("Expected frame after end marker to be rejected")
	}
	if err := client.SendEndMarker(); err == nil {
		t.Error("Expected second end marker to be rejected")
	}
}

func TestSendWithoutSession(t *testing.T) {
	client := NewClient(time.Second, testLogger())

	if err := client.SendFrame(frameWithValue(1)); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession for frame, got %v", err)
	}

	if err := client.SendEndMarker(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession for marker, got %v", err)
	}

	if _, err := client.PollAck(time.Millisecond); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession for ack poll, got %v", err)
	}
}

func TestPollAckPending(t *testing.T) {
	addr, conns := startBackend(t)
	client := NewClient(time.Second, testLogger())

	if err := client.Open(addr); err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	defer client.Close()
	acceptConn(t, conns)

	start := time.Now()
	result, err := client.PollAck(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("PollAck failed: %v", err)
	}

	if result != protocol.AckPending {
		t.Errorf("Expected AckPending with silent backend, got %v", result)
	}

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("PollAck blocked too long: %v", elapsed)
	}
}

func TestPollAckSuccess(t *testing.T) {
	addr, conns := startBackend(t)
	client := NewClient(time.Second, testLogger())

	if err := client.Open(addr); err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	defer client.Close()
	backend := acceptConn(t, conns)

	if _, err := backend.Write([]byte{protocol.AckSuccess}); err != nil {
		t.Fatalf("Backend failed to write ack: %v", err)
	}

	result, err := client.PollAck(time.Second)
	if err != nil {
		t.Fatalf("PollAck failed: %v", err)
	}

	if result != protocol.AckOK {
		t.Errorf("Expected AckOK, got %v", result)
	}
}

func TestPollAckAnomalousByte(t *testing.T) {
	addr, conns := startBackend(t)
	client := NewClient(time.Second, testLogger())

	if err := client.Open(addr); err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	defer client.Close()
	backend := acceptConn(t, conns)

	if _, err := backend.Write([]byte{0x7F}); err != nil {
		t.Fatalf("Backend failed to write byte: %v", err)
	}

	result, err := client.PollAck(time.Second)
	if result != protocol.AckAnomaly {
		t.Errorf("Expected AckAnomaly for byte 0x7F, got %v", result)
	}
	if err == nil {
		t.Error("Expected descriptive error for anomalous byte")
	}
}

func TestPollAckPeerClosed(t *testing.T) {
	addr, conns := startBackend(t)
	client := NewClient(time.Second, testLogger())

	if err := client.Open(addr); err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	defer client.Close()
	backend := acceptConn(t, conns)
	backend.Close()

	result, err := client.PollAck(time.Second)
	if result != protocol.AckAnomaly {
		t.Errorf("Expected AckAnomaly on peer close, got %v", result)
	}
	if err == nil {
		t.Error("Expected error describing peer close")
	}
}
