package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
	"github.com/LeonardoBeccarini/sensorlink/internal/observability"
)

const (
	DefaultSecret      = "CLAVE_SEGURA_TI3042"
	DefaultAckToken    = "OK_AUTH"
	DefaultDialTimeout = 10 * time.Second
)

var ErrInvalidCommand = errors.New("invalid command")

type Options struct {
	Secret      string
	AckToken    string
	DialTimeout time.Duration
	Clock       *model.Clock
	Logger      *slog.Logger
	Metrics     *observability.Metrics

	// Dial replaces net.Dialer.DialContext, mostly for tests.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (o *Options) withDefaults() {
	if o.Secret == "" {
		o.Secret = DefaultSecret
	}
	if o.AckToken == "" {
		o.AckToken = DefaultAckToken
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Clock == nil {
		o.Clock = model.NewClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Dial == nil {
		d := &net.Dialer{}
		o.Dial = d.DialContext
	}
}

// Session is the single connection to the sensor node. Exactly one connection
// attempt or live connection exists at a time; reconnecting is always up to
// the caller.
type Session struct {
	opts     Options
	listener Listener
	log      *slog.Logger

	mu     sync.Mutex
	state  model.SessionState
	reason string
	conn   net.Conn
	gen    uint64 // bumped on every Connect and Disconnect
	cancel context.CancelFunc
	closed bool
	// closed when the latest read loop has exited
	loopDone chan struct{}

	// Status events are queued under mu, in transition order, and handed to
	// the listener after every session lock is released.
	eventsMu   sync.Mutex
	events     []model.Status
	delivering bool

	writeMu sync.Mutex
}

func New(listener Listener, opts Options) *Session {
	opts.withDefaults()
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Session{
		opts:     opts,
		listener: listener,
		log:      opts.Logger.With("component", "session"),
		state:    model.StateDisconnected,
	}
}

func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Status() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Status{State: s.state, Reason: s.reason, Message: describe(s.state, s.reason)}
}

func describe(state model.SessionState, reason string) string {
	switch state {
	case model.StateConnecting:
		return "connecting"
	case model.StateAuthenticating:
		return "authenticating"
	case model.StateAuthenticated:
		return "connected and authenticated"
	case model.StateFailed:
		return "connection failed: " + reason
	}
	return "disconnected"
}

// ===== Transitions =====

// commitAndUnlock applies st, releases s.mu and delivers st to the listener.
// s.mu must be held.
func (s *Session) commitAndUnlock(st model.Status) {
	s.state, s.reason = st.State, st.Reason
	if st.Message == "" {
		st.Message = describe(st.State, st.Reason)
	}
	s.opts.Metrics.SetSessionState(string(st.State))
	s.queueEvent(st)
	s.mu.Unlock()
	s.deliver()
}

// queueEvent appends st to the pending status events. s.mu must be held so
// that events keep the order of the transitions that produced them.
func (s *Session) queueEvent(st model.Status) {
	s.eventsMu.Lock()
	s.events = append(s.events, st)
	s.eventsMu.Unlock()
}

// deliver hands pending status events to the listener, outside every session
// lock, so a callback may call back into the session. When another call is
// already delivering (including an outer call on the same goroutine) it
// returns at once and that call delivers the new events in order.
func (s *Session) deliver() {
	s.eventsMu.Lock()
	if s.delivering {
		s.eventsMu.Unlock()
		return
	}
	s.delivering = true
	for len(s.events) > 0 {
		st := s.events[0]
		s.events = s.events[1:]
		s.eventsMu.Unlock()
		s.listener.OnStatusChanged(st)
		s.eventsMu.Lock()
	}
	s.delivering = false
	s.eventsMu.Unlock()
}

// advance moves an in-flight attempt forward. It reports false when the
// attempt was superseded by Disconnect.
func (s *Session) advance(gen uint64, state model.SessionState, conn net.Conn) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	if conn != nil {
		s.conn = conn
	}
	s.commitAndUnlock(model.Status{State: state})
	return true
}

// fail moves the attempt gen to FAILED. Only the first failure of an attempt
// is reported.
func (s *Session) fail(gen uint64, reason string) {
	s.mu.Lock()
	if gen != s.gen || !s.state.Active() {
		s.mu.Unlock()
		return
	}
	s.release()
	s.log.Warn("device session failed", "reason", reason)
	s.commitAndUnlock(model.Status{State: model.StateFailed, Reason: reason})
}

// release drops the transport. s.mu must be held.
func (s *Session) release() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// ===== Operations =====

// Connect dials the device and performs the secret handshake. It returns once
// the session is AUTHENTICATED or FAILED; the read loop then runs until
// Disconnect or a transport error. Cancelling ctx aborts the attempt but does
// not affect an established session.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	if err := validate(host, port); err != nil {
		s.mu.Lock()
		s.notifyAndUnlock(err.Error())
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state.Active() {
		s.notifyAndUnlock("already " + describe(s.state, ""))
		return ErrSessionActive
	}
	s.gen++
	gen := s.gen
	sessCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	s.commitAndUnlock(model.Status{State: model.StateConnecting, Message: "connecting to " + addr})

	dialCtx, dialCancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	stopDial := context.AfterFunc(sessCtx, dialCancel)
	conn, err := s.opts.Dial(dialCtx, "tcp", addr)
	stopDial()
	dialCancel()
	if err != nil {
		s.fail(gen, "could not reach device: "+err.Error())
		return &ConnectionError{Op: "dial", Err: err}
	}
	if !s.advance(gen, model.StateAuthenticating, conn) {
		_ = conn.Close()
		return &ConnectionError{Op: "dial", Err: errors.New("disconnected during connect")}
	}

	sc, err := s.handshake(ctx, conn)
	if err != nil {
		s.fail(gen, ErrAuthRejected.Error())
		return &ConnectionError{Op: "auth", Err: err}
	}
	done := make(chan struct{})
	s.mu.Lock()
	prev := s.loopDone
	s.loopDone = done
	s.mu.Unlock()
	if !s.advance(gen, model.StateAuthenticated, nil) {
		close(done)
		return &ConnectionError{Op: "auth", Err: errors.New("disconnected during handshake")}
	}
	s.log.Info("device session authenticated", "addr", addr)

	go s.readLoop(sessCtx, gen, sc, prev, done)
	return nil
}

// handshake sends the secret and expects the ack token as the first line.
// The returned scanner already holds anything the device sent after the ack.
func (s *Session) handshake(ctx context.Context, conn net.Conn) (*bufio.Scanner, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.writeMu.Lock()
	_, err := io.WriteString(conn, s.opts.Secret+"\n")
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send secret: %w", err)
	}

	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}
	if reply := strings.TrimSpace(sc.Text()); reply != s.opts.AckToken {
		return nil, fmt.Errorf("%w: device replied %q", ErrAuthRejected, reply)
	}
	return sc, nil
}

// readLoop dispatches frames until the transport ends. It starts only after
// the previous loop has exited, so closing done covers every earlier loop.
func (s *Session) readLoop(ctx context.Context, gen uint64, sc *bufio.Scanner, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		s.dispatch(sc.Text())
	}
	if ctx.Err() != nil {
		return
	}
	reason := "connection closed by device"
	if err := sc.Err(); err != nil {
		reason = "connection lost: " + err.Error()
	}
	s.fail(gen, reason)
}

func (s *Session) dispatch(line string) {
	f, err := parseFrame(line)
	if err != nil {
		s.log.Debug("ignoring frame", "err", err)
		s.opts.Metrics.Frame("malformed")
		return
	}
	s.opts.Metrics.Frame(f.kind.String())

	switch f.kind {
	case frameGas:
		s.listener.OnReadingReceived(model.Reading{
			Timestamp: s.opts.Clock.Next(),
			Value:     f.value,
			EventTag:  model.TagFor(f.value),
		})
	case frameSmoke:
		s.listener.OnAlert(model.Alert{Kind: model.AlertSmoke, Timestamp: s.opts.Clock.Next()})
	case frameNoise:
		s.listener.OnAlert(model.Alert{Kind: model.AlertNoise, Timestamp: s.opts.Clock.Next()})
	default:
		s.log.Debug("ignoring unknown frame", "line", line)
	}
}

// SendCommand writes cmd as one line. Delivery is fire-and-forget.
func (s *Session) SendCommand(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || strings.ContainsAny(cmd, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	}

	s.mu.Lock()
	if s.state != model.StateAuthenticated || s.conn == nil {
		s.notifyAndUnlock("not connected, command " + cmd + " not sent")
		return ErrNotConnected
	}
	conn, gen := s.conn, s.gen
	s.mu.Unlock()

	s.writeMu.Lock()
	_, err := io.WriteString(conn, cmd+"\n")
	s.writeMu.Unlock()
	if err != nil {
		s.fail(gen, "connection lost: "+err.Error())
		return &ConnectionError{Op: "write", Err: err}
	}
	s.log.Debug("command sent", "cmd", cmd)
	return nil
}

// Disconnect closes the transport and moves to DISCONNECTED. Calling it again
// is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == model.StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.release()
	s.log.Info("device session disconnected")
	s.commitAndUnlock(model.Status{State: model.StateDisconnected})
}

// Close disconnects for good and waits for the read loop to exit. After it
// returns the listener gets no more readings or alerts and Connect fails
// with ErrSessionClosed. It must not be called from a listener callback.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Disconnect()

	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// notifyAndUnlock reports the current state with msg, without a transition.
// s.mu must be held.
func (s *Session) notifyAndUnlock(msg string) {
	s.queueEvent(model.Status{State: s.state, Reason: s.reason, Message: msg})
	s.mu.Unlock()
	s.deliver()
}
