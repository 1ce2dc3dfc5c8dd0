package ptt

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Engstrom98/Kenta/internal/audio"
	"github.com/Engstrom98/Kenta/internal/indicator"
	"github.com/Engstrom98/Kenta/internal/metrics"
	"github.com/Engstrom98/Kenta/internal/protocol"
)

// Prometheus collectors register once per process, so all machine tests
// share a single instance.
var testMetrics = metrics.NewMetrics()

func testConfig() Config {
	return Config{
		Address:            "127.0.0.1:12345",
		GracePeriod:        3000 * time.Millisecond,
		AckPollTimeout:     100 * time.Millisecond,
		ProcessingDeadline: 120 * time.Second,
		BlinkInterval:      250 * time.Millisecond,
		IdlePollInterval:   20 * time.Millisecond,
	}
}

// scriptedButton replays a fixed sequence of debounced levels, holding the
// last value once the script is exhausted
type scriptedButton struct {
	levels []bool
	calls  int
}

func (b *scriptedButton) Poll(_ time.Time) (bool, error) {
	i := b.calls
	if i >= len(b.levels) {
		i = len(b.levels) - 1
	}
	b.calls++
	return b.levels[i], nil
}

// heldButton reports pressed for a fixed duration from the epoch
type heldButton struct {
	start time.Time
	hold  time.Duration
}

func (b *heldButton) Poll(now time.Time) (bool, error) {
	return now.Sub(b.start) < b.hold, nil
}

// fakeSource stamps each frame with a sequence number in sample 0
type fakeSource struct {
	reads   int
	errAt   int // fail the Nth read (1-based), once
	errUsed bool
}

func (s *fakeSource) ReadFrame(dst *audio.Frame) error {
	s.reads++
	if s.errAt > 0 && s.reads == s.errAt && !s.errUsed {
		s.errUsed = true
		return errors.New("overrun")
	}
	dst[0] = int16(s.reads)
	return nil
}

type ackStep struct {
	result protocol.AckResult
	err    error
}

// fakeUplink records the full call sequence so tests can check ordering
type fakeUplink struct {
	openErr   error
	sendErrAt int // fail the Nth SendFrame (1-based)
	markerErr error
	acks      []ackStep

	opens            int
	sends            int
	markers          int
	closes           int
	ackCalls         int
	active           bool
	frameAfterMarker bool
	firstSamples     []int16
}

func (u *fakeUplink) Open(address string) error {
	u.opens++
	if u.openErr != nil {
		return u.openErr
	}
	u.active = true
	return nil
}

func (u *fakeUplink) Active() bool { return u.active }

func (u *fakeUplink) SendFrame(frame *audio.Frame) error {
	if u.markers > 0 {
		u.frameAfterMarker = true
		return errors.New("frame after end marker")
	}
	u.sends++
	if u.sendErrAt > 0 && u.sends == u.sendErrAt {
		return errors.New("broken pipe")
	}
	u.firstSamples = append(u.firstSamples, frame[0])
	return nil
}

func (u *fakeUplink) SendEndMarker() error {
	if u.markerErr != nil {
		return u.markerErr
	}
	u.markers++
	return nil
}

func (u *fakeUplink) PollAck(_ time.Duration) (protocol.AckResult, error) {
	i := u.ackCalls
	u.ackCalls++
	if i >= len(u.acks) {
		return protocol.AckPending, nil
	}
	return u.acks[i].result, u.acks[i].err
}

func (u *fakeUplink) Close() error {
	u.closes++
	u.active = false
	return nil
}

// recordingIndicator captures the signal sequence
type recordingIndicator struct {
	signals []indicator.Signal
}

func (r *recordingIndicator) Set(s indicator.Signal) {
	r.signals = append(r.signals, s)
}

func (r *recordingIndicator) last() indicator.Signal {
	if len(r.signals) == 0 {
		return indicator.SignalOff
	}
	return r.signals[len(r.signals)-1]
}

func newTestMachine(cfg Config, source FrameSource, uplink Uplink, button LevelPoller) (*Machine, *recordingIndicator) {
	ind := &recordingIndicator{}
	logger := slog.New(slog.NewTextHandler(&discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewMachine(cfg, source, uplink, button, ind, testMetrics, logger), ind
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// tickN advances the machine n ticks, stepping the clock by the frame period
func tickN(m *Machine, now time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		m.Tick(now)
		now = now.Add(16 * time.Millisecond)
	}
	return now
}

func TestPressOpensSessionAndStreams(t *testing.T) {
	uplink := &fakeUplink{}
	button := &scriptedButton{levels: []bool{false, true}}
	m, ind := newTestMachine(testConfig(), &fakeSource{}, uplink, button)

	now := time.Unix(0, 0)
	m.Tick(now) // idle, no edge
	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want %v", m.State(), StateIdle)
	}

	now = now.Add(16 * time.Millisecond)
	m.Tick(now) // press edge
	if m.State() != StateRecording {
		t.Fatalf("State() after press = %v, want %v", m.State(), StateRecording)
	}
	if uplink.opens != 1 {
		t.Errorf("opens = %d, want 1", uplink.opens)
	}
	if ind.last() != indicator.SignalRecording {
		t.Errorf("indicator = %v, want %v", ind.last(), indicator.SignalRecording)
	}

	tickN(m, now.Add(16*time.Millisecond), 10)
	if uplink.sends != 10 {
		t.Errorf("sends after 10 recording ticks = %d, want 10", uplink.sends)
	}
}

func TestRePressResumesSameSession(t *testing.T) {
	cfg := testConfig()
	uplink := &fakeUplink{}

	// press, hold, release, pause inside the grace period, press again,
	// release, then stay up past the grace period
	levels := []bool{true, true, true, false, false, false, true, true, false}
	button := &scriptedButton{levels: levels}
	m, _ := newTestMachine(cfg, &fakeSource{}, uplink, button)

	now := time.Unix(0, 0)
	now = tickN(m, now, len(levels))
	if m.State() != StateWait {
		t.Fatalf("State() = %v, want %v", m.State(), StateWait)
	}

	// run out the grace period
	for m.State() == StateWait {
		m.Tick(now)
		now = now.Add(16 * time.Millisecond)
	}

	if m.State() != StateProcessing {
		t.Fatalf("State() after grace = %v, want %v", m.State(), StateProcessing)
	}
	if uplink.opens != 1 {
		t.Errorf("opens = %d, want 1: a re-press inside the grace period must reuse the session", uplink.opens)
	}
	if uplink.markers != 1 {
		t.Errorf("markers = %d, want 1", uplink.markers)
	}
}

func TestFrameCountCoversHoldPlusGrace(t *testing.T) {
	tests := []struct {
		name string
		hold time.Duration
		want int // ceil((hold + grace) / 16ms)
	}{
		{name: "one second hold", hold: 1000 * time.Millisecond, want: 250},
		{name: "half second hold", hold: 500 * time.Millisecond, want: 219},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.GracePeriod = 3000 * time.Millisecond

			start := time.Unix(0, 0)
			uplink := &fakeUplink{}
			m, _ := newTestMachine(cfg, &fakeSource{}, uplink, &heldButton{start: start, hold: tt.hold})

			// Frame acquisition paces the live session: a tick that
			// sends a frame consumes one frame period, transition
			// ticks are instantaneous.
			now := start
			for i := 0; i < 10000; i++ {
				before := uplink.sends
				m.Tick(now)
				if uplink.sends > before {
					now = now.Add(16 * time.Millisecond)
				}
				if m.State() == StateProcessing {
					break
				}
			}

			if m.State() != StateProcessing {
				t.Fatalf("machine never reached %v", StateProcessing)
			}

			if uplink.sends != tt.want {
				t.Errorf("sends = %d, want %d", uplink.sends, tt.want)
			}
			if uplink.markers != 1 {
				t.Errorf("markers = %d, want 1", uplink.markers)
			}
		})
	}
}

func TestFramesArriveInOrderBeforeMarker(t *testing.T) {
	uplink := &fakeUplink{}
	levels := []bool{true, true, true, true, false}
	m, _ := newTestMachine(testConfig(), &fakeSource{}, uplink, &scriptedButton{levels: levels})

	now := tickN(m, time.Unix(0, 0), len(levels))
	for m.State() == StateWait {
		m.Tick(now)
		now = now.Add(16 * time.Millisecond)
	}

	for i, s := range uplink.firstSamples {
		if s != int16(i+1) {
			t.Fatalf("frame %d carries sequence %d, want %d", i, s, i+1)
		}
	}
	if uplink.frameAfterMarker {
		t.Error("a frame was sent after the end marker")
	}
	if uplink.markers != 1 {
		t.Errorf("markers = %d, want 1", uplink.markers)
	}
}

func TestConnectFailureStaysIdle(t *testing.T) {
	uplink := &fakeUplink{openErr: errors.New("connection refused")}
	// hold the button through several ticks, release, press again
	levels := []bool{true, true, true, false, true}
	m, ind := newTestMachine(testConfig(), &fakeSource{}, uplink, &scriptedButton{levels: levels})

	now := time.Unix(0, 0)
	now = tickN(m, now, 3)
	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want %v", m.State(), StateIdle)
	}
	if ind.last() != indicator.SignalError {
		t.Errorf("indicator = %v, want %v", ind.last(), indicator.SignalError)
	}

	if uplink.opens != 1 {
		t.Fatalf("opens = %d, want 1 (a held button must not retry)", uplink.opens)
	}

	// a fresh press edge retries
	uplink.openErr = nil
	tickN(m, now, 2)
	if uplink.opens != 2 {
		t.Errorf("opens = %d, want 2", uplink.opens)
	}
	if m.State() != StateRecording {
		t.Errorf("State() after fresh press = %v, want %v", m.State(), StateRecording)
	}
}

func TestSendFailureAbortsUtterance(t *testing.T) {
	uplink := &fakeUplink{sendErrAt: 3}
	m, ind := newTestMachine(testConfig(), &fakeSource{}, uplink, &scriptedButton{levels: []bool{true}})

	tickN(m, time.Unix(0, 0), 6)
	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want %v", m.State(), StateIdle)
	}
	if uplink.closes != 1 {
		t.Errorf("closes = %d, want 1", uplink.closes)
	}
	if uplink.markers != 0 {
		t.Errorf("markers = %d, want 0 after a mid-utterance send failure", uplink.markers)
	}
	if ind.last() != indicator.SignalError {
		t.Errorf("indicator = %v, want %v", ind.last(), indicator.SignalError)
	}
}

func TestMarkerSendFailureReturnsToIdle(t *testing.T) {
	cfg := testConfig()
	uplink := &fakeUplink{markerErr: errors.New("broken pipe")}
	m, _ := newTestMachine(cfg, &fakeSource{}, uplink, &scriptedButton{levels: []bool{true, false}})

	now := tickN(m, time.Unix(0, 0), 2)
	m.Tick(now.Add(cfg.GracePeriod)) // grace elapsed, marker fails

	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want %v", m.State(), StateIdle)
	}
	if uplink.closes != 1 {
		t.Errorf("closes = %d, want 1", uplink.closes)
	}
}

func TestProcessingDeadlineClosesOnce(t *testing.T) {
	cfg := testConfig()
	uplink := &fakeUplink{} // PollAck stays pending forever
	m, ind := newTestMachine(cfg, &fakeSource{}, uplink, &scriptedButton{levels: []bool{true, false}})

	now := tickN(m, time.Unix(0, 0), 2)
	now = now.Add(cfg.GracePeriod)
	m.Tick(now)
	if m.State() != StateProcessing {
		t.Fatalf("State() = %v, want %v", m.State(), StateProcessing)
	}

	// a few pending polls, then the deadline elapses
	now = tickN(m, now, 5)
	m.Tick(now.Add(cfg.ProcessingDeadline))

	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want %v", m.State(), StateIdle)
	}
	if uplink.closes != 1 {
		t.Errorf("closes = %d, want exactly 1", uplink.closes)
	}
	if ind.last() != indicator.SignalError {
		t.Errorf("indicator = %v, want %v", ind.last(), indicator.SignalError)
	}
}

func TestAckSuccessCompletesUtterance(t *testing.T) {
	cfg := testConfig()
	uplink := &fakeUplink{acks: []ackStep{
		{result: protocol.AckPending},
		{result: protocol.AckPending},
		{result: protocol.AckOK},
	}}
	m, ind := newTestMachine(cfg, &fakeSource{}, uplink, &scriptedButton{levels: []bool{true, false}})

	now := tickN(m, time.Unix(0, 0), 2)
	now = now.Add(cfg.GracePeriod)
	m.Tick(now) // marker
	now = tickN(m, now, 3)

	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want %v", m.State(), StateIdle)
	}
	if uplink.ackCalls != 3 {
		t.Errorf("ackCalls = %d, want 3", uplink.ackCalls)
	}
	if uplink.closes != 1 {
		t.Errorf("closes = %d, want 1", uplink.closes)
	}
	if ind.last() != indicator.SignalOff {
		t.Errorf("indicator = %v, want %v", ind.last(), indicator.SignalOff)
	}
}

func TestAnomalousAckReturnsToIdle(t *testing.T) {
	cfg := testConfig()
	uplink := &fakeUplink{acks: []ackStep{
		{result: protocol.AckAnomaly, err: errors.New("unexpected byte 0x7f")},
	}}
	m, ind := newTestMachine(cfg, &fakeSource{}, uplink, &scriptedButton{levels: []bool{true, false}})

	now := tickN(m, time.Unix(0, 0), 2)
	now = now.Add(cfg.GracePeriod)
	m.Tick(now) // marker
	m.Tick(now)

	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want %v", m.State(), StateIdle)
	}
	if ind.last() != indicator.SignalError {
		t.Errorf("indicator = %v, want %v", ind.last(), indicator.SignalError)
	}
}

func TestFrameReadErrorDoesNotAbort(t *testing.T) {
	uplink := &fakeUplink{}
	source := &fakeSource{errAt: 2}
	m, _ := newTestMachine(testConfig(), source, uplink, &scriptedButton{levels: []bool{true}})

	tickN(m, time.Unix(0, 0), 5)
	if m.State() != StateRecording {
		t.Fatalf("State() = %v, want %v after a transient read error", m.State(), StateRecording)
	}
	if uplink.closes != 0 {
		t.Errorf("closes = %d, want 0", uplink.closes)
	}
	// 4 streaming ticks succeed out of 5 (the press tick does not stream,
	// one read fails)
	if uplink.sends != 3 {
		t.Errorf("sends = %d, want 3", uplink.sends)
	}
}

func TestWaitBlinksIndicator(t *testing.T) {
	cfg := testConfig()
	uplink := &fakeUplink{}
	m, ind := newTestMachine(cfg, &fakeSource{}, uplink, &scriptedButton{levels: []bool{true, false}})

	now := tickN(m, time.Unix(0, 0), 2)
	m.Tick(now) // wait tick, phase 0
	m.Tick(now.Add(cfg.BlinkInterval))

	var on, off bool
	for _, s := range ind.signals {
		switch s {
		case indicator.SignalWaitBlinkOn:
			on = true
		case indicator.SignalWaitBlinkOff:
			off = true
		}
	}
	if !on || !off {
		t.Errorf("blink phases seen: on=%v off=%v, want both", on, off)
	}
}

func TestZeroBlinkIntervalStillStreams(t *testing.T) {
	cfg := testConfig()
	cfg.BlinkInterval = 0

	uplink := &fakeUplink{}
	m, ind := newTestMachine(cfg, &fakeSource{}, uplink, &scriptedButton{levels: []bool{true, false}})

	now := tickN(m, time.Unix(0, 0), 2)
	tickN(m, now, 3)

	if m.State() != StateWait {
		t.Fatalf("State() = %v, want %v", m.State(), StateWait)
	}
	if uplink.sends != 3 {
		t.Errorf("sends = %d, want 3", uplink.sends)
	}
	for _, s := range ind.signals {
		if s == indicator.SignalWaitBlinkOn || s == indicator.SignalWaitBlinkOff {
			t.Fatalf("blink signal %v emitted with blinking disabled", s)
		}
	}
}
