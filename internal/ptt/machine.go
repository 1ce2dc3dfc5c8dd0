package ptt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Engstrom98/Kenta/internal/audio"
	"github.com/Engstrom98/Kenta/internal/indicator"
	"github.com/Engstrom98/Kenta/internal/metrics"
	"github.com/Engstrom98/Kenta/internal/protocol"
)

// State is the machine's position in the utterance lifecycle
type State int

const (
	// StateIdle waits for a press edge; no session exists
	StateIdle State = iota
	// StateRecording streams one frame per tick on the open session
	StateRecording
	// StateWait keeps streaming through the post-release grace period
	StateWait
	// StateProcessing waits, bounded, for the backend acknowledgment
	StateProcessing
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateWait:
		return "wait"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// StateNames lists all machine states, for metrics labelling
var StateNames = []string{"idle", "recording", "wait", "processing"}

// FrameSource delivers one complete audio frame per call
type FrameSource interface {
	ReadFrame(dst *audio.Frame) error
}

// Uplink is the machine's view of the transport: at most one session, frames
// in order, end marker exactly once, bounded acknowledgment polling.
type Uplink interface {
	Open(address string) error
	Active() bool
	SendFrame(frame *audio.Frame) error
	SendEndMarker() error
	PollAck(timeout time.Duration) (protocol.AckResult, error)
	Close() error
}

// LevelPoller samples the debounced press-to-talk level
type LevelPoller interface {
	Poll(now time.Time) (bool, error)
}

// Config contains machine timing parameters and the resolved backend address
type Config struct {
	Address            string
	GracePeriod        time.Duration
	AckPollTimeout     time.Duration
	ProcessingDeadline time.Duration
	BlinkInterval      time.Duration
	IdlePollInterval   time.Duration
}

// Machine drives one utterance at a time through IDLE, RECORDING, WAIT and
// PROCESSING. All mutable state lives here, owned by the single control loop;
// transitions are driven only by debounced edges, frame/send outcomes, and
// monotonic timers. Every error path returns to IDLE so the device stays
// usable for the next press.
type Machine struct {
	config    Config
	source    FrameSource
	uplink    Uplink
	button    LevelPoller
	indicator indicator.Indicator
	logger    *slog.Logger
	metrics   *metrics.Metrics

	state     State
	lastLevel bool

	// WAIT and PROCESSING entry timestamps; the two timers guard different
	// failure modes (trailing speech vs. unresponsive backend) and are
	// never conflated.
	sessionOpened     time.Time
	waitEntered       time.Time
	processingEntered time.Time

	// Start of the most recent streamed frame's read. A release edge is
	// observed one frame read after the physical release, so the grace
	// period is anchored here rather than at the detection tick.
	lastFrameAt time.Time

	// Preallocated frame arena reused every acquisition
	frame audio.Frame

	// Published for diagnostics; the loop is the only writer
	publishedState atomic.Int32
}

// NewMachine creates the push-to-talk machine in IDLE
func NewMachine(config Config, source FrameSource, uplink Uplink, button LevelPoller,
	ind indicator.Indicator, m *metrics.Metrics, logger *slog.Logger) *Machine {

	machine := &Machine{
		config:    config,
		source:    source,
		uplink:    uplink,
		button:    button,
		indicator: ind,
		logger:    logger,
		metrics:   m,
	}
	machine.setState(StateIdle)

	return machine
}

// State returns the machine's current state. Safe from any goroutine.
func (m *Machine) State() State {
	return State(m.publishedState.Load())
}

// Tick processes one scheduling quantum: one debounce poll plus at most one
// unit of state work (one frame acquire+send or one bounded network wait).
// The caller supplies the clock reading so timing is deterministic.
func (m *Machine) Tick(now time.Time) State {
	level, err := m.button.Poll(now)
	if err != nil {
		// Stable level is unaffected by a failed sample; just try again
		// next quantum.
		m.logger.Warn("Button poll failed", slog.String("error", err.Error()))
	}

	press := level && !m.lastLevel
	release := !level && m.lastLevel
	m.lastLevel = level

	if press {
		m.metrics.PressEdges.Inc()
	}
	if release {
		m.metrics.ReleaseEdges.Inc()
	}

	switch m.state {
	case StateIdle:
		m.tickIdle(now, press)
	case StateRecording:
		m.tickRecording(now, release)
	case StateWait:
		m.tickWait(now, press)
	case StateProcessing:
		m.tickProcessing(now)
	}

	return m.state
}

func (m *Machine) tickIdle(now time.Time, press bool) {
	if !press {
		return
	}

	if err := m.uplink.Open(m.config.Address); err != nil {
		// Not retried while the button is held: the next attempt needs a
		// fresh press edge, which requires the matching release first.
		m.metrics.ConnectFailures.Inc()
		m.indicator.Set(indicator.SignalError)
		m.logger.Error("Connect failed",
			slog.String("address", m.config.Address),
			slog.String("error", err.Error()),
		)
		return
	}

	m.metrics.SessionsOpened.Inc()
	m.sessionOpened = now
	m.lastFrameAt = now
	m.indicator.Set(indicator.SignalRecording)
	m.logger.Info("Recording started")
	m.setState(StateRecording)
}

func (m *Machine) tickRecording(now time.Time, release bool) {
	if release {
		// The release happened while the last frame was being read, so
		// the grace window starts at that frame's boundary. Anchoring at
		// the detection tick would stretch the window by one frame.
		m.waitEntered = m.lastFrameAt
		m.setState(StateWait)
		m.logger.Debug("Release observed, entering grace period",
			slog.Duration("grace_period", m.config.GracePeriod),
		)
		return
	}

	m.streamFrame(now)
}

func (m *Machine) tickWait(now time.Time, press bool) {
	if press {
		// Resume, not restart: the session carries across the pause.
		m.metrics.Resumes.Inc()
		m.indicator.Set(indicator.SignalRecording)
		m.logger.Info("Re-press within grace period, resuming")
		m.setState(StateRecording)
		return
	}

	if now.Sub(m.waitEntered) >= m.config.GracePeriod {
		if err := m.uplink.SendEndMarker(); err != nil {
			// The marker is not retried.
			m.metrics.SendFailures.Inc()
			m.logger.Error("End marker send failed", slog.String("error", err.Error()))
			m.closeSession(indicator.SignalError)
			return
		}

		m.metrics.UtteranceSeconds.Observe(now.Sub(m.sessionOpened).Seconds())
		m.indicator.Set(indicator.SignalProcessing)
		m.processingEntered = now
		m.logger.Info("End marker sent, awaiting completion",
			slog.Duration("deadline", m.config.ProcessingDeadline),
		)
		m.setState(StateProcessing)
		return
	}

	m.blink(now)
	m.streamFrame(now)
}

func (m *Machine) tickProcessing(now time.Time) {
	if now.Sub(m.processingEntered) >= m.config.ProcessingDeadline {
		m.metrics.ProcessingTimeout.Inc()
		m.logger.Error("Processing deadline elapsed",
			slog.Duration("deadline", m.config.ProcessingDeadline),
		)
		m.closeSession(indicator.SignalError)
		return
	}

	result, err := m.uplink.PollAck(m.config.AckPollTimeout)
	switch result {
	case protocol.AckPending:
		// Nothing yet; the deadline is re-evaluated next tick.

	case protocol.AckOK:
		m.metrics.AcksOK.Inc()
		m.metrics.ProcessingSeconds.Observe(now.Sub(m.processingEntered).Seconds())
		m.logger.Info("Utterance completed",
			slog.Duration("processing_time", now.Sub(m.processingEntered)),
		)
		m.closeSession(indicator.SignalOff)

	case protocol.AckAnomaly:
		// Completed but failed: logged, not retried, no partial result
		// is assumed valid.
		m.metrics.AckAnomalies.Inc()
		m.logger.Error("Anomalous completion", slog.String("error", err.Error()))
		m.closeSession(indicator.SignalError)
	}
}

// streamFrame acquires one frame and sends it on the session. A read error is
// non-fatal (retry next quantum); a send error aborts the utterance.
func (m *Machine) streamFrame(now time.Time) {
	if err := m.source.ReadFrame(&m.frame); err != nil {
		m.metrics.FrameReadErrs.Inc()
		m.logger.Warn("Frame read failed, retrying next tick", slog.String("error", err.Error()))
		return
	}

	if err := m.uplink.SendFrame(&m.frame); err != nil {
		m.metrics.SendFailures.Inc()
		m.logger.Error("Frame send failed", slog.String("error", err.Error()))
		m.closeSession(indicator.SignalError)
		return
	}

	m.lastFrameAt = now
	m.metrics.FramesSent.Inc()
	m.metrics.BytesSent.Add(float64(protocol.FrameBytes))
}

// blink alternates the indicator through the grace period
func (m *Machine) blink(now time.Time) {
	if m.config.BlinkInterval <= 0 {
		return
	}

	phase := now.Sub(m.waitEntered) / m.config.BlinkInterval
	if phase%2 == 0 {
		m.indicator.Set(indicator.SignalWaitBlinkOn)
	} else {
		m.indicator.Set(indicator.SignalWaitBlinkOff)
	}
}

// closeSession tears down the session exactly once and returns to IDLE
func (m *Machine) closeSession(signal indicator.Signal) {
	if err := m.uplink.Close(); err != nil {
		m.logger.Warn("Session close failed", slog.String("error", err.Error()))
	}

	m.metrics.SessionsClosed.Inc()
	m.indicator.Set(signal)
	m.setState(StateIdle)
}

func (m *Machine) setState(s State) {
	m.state = s
	m.publishedState.Store(int32(s))
	m.metrics.SetMachineState(s.String(), StateNames)
}

// Run drives the cooperative control loop until the context is cancelled.
// Frame acquisition paces RECORDING and WAIT, the bounded acknowledgment
// poll paces PROCESSING, and IDLE sleeps for the configured poll interval.
func (m *Machine) Run(ctx context.Context) error {
	m.logger.Info("Control loop started",
		slog.String("address", m.config.Address),
		slog.Duration("grace_period", m.config.GracePeriod),
		slog.Duration("processing_deadline", m.config.ProcessingDeadline),
	)

	for {
		if err := ctx.Err(); err != nil {
			if m.uplink.Active() {
				m.closeSession(indicator.SignalOff)
			}
			m.logger.Info("Control loop stopped")
			return err
		}

		state := m.Tick(time.Now())

		if state == StateIdle {
			select {
			case <-ctx.Done():
			case <-time.After(m.config.IdlePollInterval):
			}
		}
	}
}
