package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/Engstrom98/Kenta/internal/audio"
	"github.com/Engstrom98/Kenta/internal/protocol"
)

// ErrNoSession is returned when an operation requires an open session
var ErrNoSession = errors.New("no active session")

// ErrSessionActive is returned when Open is called while a session exists
var ErrSessionActive = errors.New("session already active")

// Session is the single TCP connection bound to one utterance. Exactly zero
// or one Session exists at any instant; it is owned by the client and closed
// exactly once.
type Session struct {
	conn       net.Conn
	CreatedAt  time.Time
	MarkerSent time.Time // zero until the end marker goes out
}

// Client owns at most one network session at a time. It sends audio frames in
// acquisition order, sends the end marker exactly once per session, and
// performs the bounded acknowledgment wait.
type Client struct {
	dialTimeout time.Duration
	logger      *slog.Logger

	session *Session
	wire    [protocol.FrameBytes]byte // reused per frame, no hot-path allocation
}

// NewClient creates a transport client. dialTimeout bounds connection
// establishment only; established-session sends are plain blocking writes.
func NewClient(dialTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		dialTimeout: dialTimeout,
		logger:      logger,
	}
}

// Open dials the backend and binds a new session. It fails if a session is
// already active: one utterance, one connection.
func (c *Client) Open(address string) error {
	if c.session != nil {
		return ErrSessionActive
	}

	conn, err := net.DialTimeout("tcp", address, c.dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	c.session = &Session{
		conn:      conn,
		CreatedAt: time.Now(),
	}

	c.logger.Info("Session opened",
		slog.String("address", address),
	)

	return nil
}

// Active reports whether a session is currently open
func (c *Client) Active() bool {
	return c.session != nil
}

// SessionAge returns how long the current session has existed, or zero
// without one
func (c *Client) SessionAge() time.Duration {
	if c.session == nil {
		return 0
	}
	return time.Since(c.session.CreatedAt)
}

// SendFrame encodes and writes one audio frame on the session. Frames go out
// in call order; no frame may follow the end marker.
func (c *Client) SendFrame(frame *audio.Frame) error {
	if c.session == nil {
		return ErrNoSession
	}

	if !c.session.MarkerSent.IsZero() {
		return fmt.Errorf("frame rejected: end marker already sent")
	}

	wire, err := protocol.EncodeFrame(c.wire[:], frame[:])
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	if _, err := c.session.conn.Write(wire); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	return nil
}

// SendEndMarker writes the end-of-audio marker. It is sent exactly once per
// session, strictly after the last frame; a second call is rejected.
func (c *Client) SendEndMarker() error {
	if c.session == nil {
		return ErrNoSession
	}

	if !c.session.MarkerSent.IsZero() {
		return fmt.Errorf("end marker already sent")
	}

	if _, err := c.session.conn.Write(protocol.EndMarker[:]); err != nil {
		return fmt.Errorf("failed to send end marker: %w", err)
	}

	c.session.MarkerSent = time.Now()
	return nil
}

// PollAck performs one bounded wait for the backend's acknowledgment byte.
// It returns AckPending when nothing arrived within the timeout, AckOK on a
// success byte, and AckAnomaly on any other byte, a peer close before
// acknowledgment, or a read error. The session stays open in every case; the
// caller decides when to close.
func (c *Client) PollAck(timeout time.Duration) (protocol.AckResult, error) {
	if c.session == nil {
		return protocol.AckAnomaly, ErrNoSession
	}

	if err := c.session.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.AckAnomaly, fmt.Errorf("failed to set read deadline: %w", err)
	}

	var buf [1]byte
	n, err := c.session.conn.Read(buf[:])

	if n == 1 {
		result := protocol.ClassifyAck(buf[0])
		if result == protocol.AckAnomaly {
			return result, fmt.Errorf("anomalous acknowledgment byte 0x%02x", buf[0])
		}
		return result, nil
	}

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return protocol.AckPending, nil
		}
		if errors.Is(err, io.EOF) {
			return protocol.AckAnomaly, fmt.Errorf("peer closed before acknowledgment")
		}
		return protocol.AckAnomaly, fmt.Errorf("acknowledgment read failed: %w", err)
	}

	return protocol.AckAnomaly, fmt.Errorf("zero-length acknowledgment read")
}

// Close tears down the current session. Closing is idempotent from the
// caller's perspective: without a session it is a no-op, so each session is
// closed exactly once.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}

	session := c.session
	c.session = nil

	if err := session.conn.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	c.logger.Info("Session closed",
		slog.Duration("lifetime", time.Since(session.CreatedAt)),
	)

	return nil
}
