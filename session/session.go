// Package session implements the public WebSocket session facade (§6)
// and the connection lifecycle that backs it: dial/handshake (§4.7), the
// single-goroutine I/O loop and dispatcher (§4.8), the Idle/Connecting/
// Open/Closing/Closed/Reconnecting state machine (§4.9), and the
// reconnection backoff controller.
//
// Grounded on the teacher's client/facade.go Client and client/client.go
// WebSocketClient (Config-driven constructor, Close with WaitGroup join),
// using a plain Config struct instead of functional options, generalized from the teacher's batch/
// NUMA-oriented design to the single-connection, callback-driven shape
// this module's specification requires.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/wsclient/heartbeat"
	"github.com/momentics/wsclient/internal/handshake"
	"github.com/momentics/wsclient/pool"
	"github.com/momentics/wsclient/protocol"
	"github.com/momentics/wsclient/queue"
	"github.com/momentics/wsclient/transport"
	"github.com/momentics/wsclient/wsurl"
)

// pollQuantum is the readability-poll granularity of §4.8: the I/O loop
// never blocks on a read for longer than this before re-checking the
// outbound queue and shutdown signal.
const pollQuantum = 100 * time.Millisecond

type outboundItem struct {
	opcode  protocol.Opcode
	payload []byte
	result  chan error // nil for fire-and-forget sends
}

// Session is the opaque handle returned to callers, mirroring the
// pimpl/opaque-handle design note of §9: all mutable state lives behind
// methods, and the zero value is never used directly by callers.
type Session struct {
	cfg Config
	url wsurl.Parsed
	log zerolog.Logger

	cb    *callbackStore
	state stateBox

	pool  *pool.Pool
	sendQ *queue.MPSC[outboundItem]

	sendMu  sync.Mutex // serializes frame writes onto the transport (§5)
	connBox atomic.Pointer[transport.Conn]

	// handshakeSpill holds any bytes the handshake's bufio.Reader read
	// past the HTTP response while parsing it — frames the server sent
	// immediately following the 101 response, which the I/O loop must
	// treat as already-received rather than drop.
	handshakeSpill []byte

	hb         *heartbeat.Engine
	reconnect  *reconnectController
	autoReconn atomic32Bool
	stats      statsRegistry

	done    chan struct{}
	closeWG sync.WaitGroup

	closeOnce sync.Once
	lastClose CloseCode
}

// New constructs a Session in the Idle state. It does not dial; call
// Connect to do that.
func New(cfg Config, cb Callbacks, log zerolog.Logger) (*Session, error) {
	parsed, err := wsurl.Parse(cfg.URL)
	if err != nil {
		return nil, newErr(ErrInvalidURL, "parsing session URL", err)
	}

	s := &Session{
		cfg:       cfg,
		url:       parsed,
		log:       log,
		cb:        newCallbackStore(cb),
		pool:      pool.New(readChunk, 4),
		sendQ:     queue.New[outboundItem](),
		reconnect: newReconnectController(cfg.MaxReconnectAttempts),
		done:      make(chan struct{}),
	}
	s.autoReconn.store(cfg.AutoReconnect)
	s.state.store(StateIdle)

	s.hb = heartbeat.New(cfg.Ping, sessionSender{s}, s.onHeartbeatFailure, log)
	return s, nil
}

// Connect dials, performs the handshake, and starts the I/O loop and
// heartbeat engine. On failure with AutoReconnect enabled, it returns the
// first attempt's error but leaves the session scheduling further
// attempts in the background, matching the teacher's connect() retry
// loop (client/client.go) generalized to run off the calling goroutine
// after the first try so Connect itself is not unboundedly blocking.
func (s *Session) Connect() error {
	if !s.state.cas(StateIdle, StateConnecting) {
		return fmt.Errorf("session: Connect called from state %s", s.state.load())
	}

	err := s.dialOnce()
	if err == nil {
		s.state.store(StateOpen)
		s.reconnect.reset()
		s.closeWG.Add(1)
		go s.ioLoop()
		s.hb.Start()
		if cb := s.cb.get().OnConnect; cb != nil {
			cb()
		}
		return nil
	}

	s.reportError(err)
	if s.autoReconn.load() {
		s.state.store(StateReconnecting)
		s.closeWG.Add(1)
		go s.reconnectLoop()
	} else {
		s.state.store(StateClosed)
	}
	return err
}

func (s *Session) dialOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := transport.Dial(ctx, s.url.HostPort(), s.url.Host, transport.Options{
		TLS:       s.url.Secure,
		TLSConfig: s.cfg.TLSConfig,
	})
	if err != nil {
		code := ErrConnectionFailed
		if s.url.Secure {
			code = ErrTLSError
		}
		return newErr(code, "dialing transport", err)
	}

	result, err := handshake.Do(conn, handshake.Options{
		Host:                 s.url.HostPort(),
		RequestTarget:        s.url.RequestTarget(),
		SkipAcceptValidation: s.cfg.SkipAcceptValidation,
	})
	if err != nil {
		_ = conn.Close()
		return newErr(ErrHandshakeFailed, "performing websocket handshake", err)
	}

	s.handshakeSpill = result.Buffered
	s.setConn(conn)
	return nil
}

func (s *Session) setConn(c transport.Conn) { s.connBox.Store(&c) }

func (s *Session) getConn() transport.Conn {
	p := s.connBox.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (s *Session) reconnectLoop() {
	defer s.closeWG.Done()
	for {
		delay, ok := s.reconnect.next()
		if !ok {
			s.state.store(StateClosed)
			s.reportError(newErr(ErrConnectionFailed, "max reconnect attempts exhausted", nil))
			if cb := s.cb.get().OnDisconnect; cb != nil {
				cb(protocol.CloseAbnormal)
			}
			return
		}
		select {
		case <-time.After(delay):
		case <-s.done:
			return
		}

		s.stats.recordReconnect()
		if err := s.dialOnce(); err != nil {
			s.reportError(err)
			continue
		}

		s.state.store(StateOpen)
		s.reconnect.reset()
		s.closeWG.Add(1)
		go s.ioLoop()
		s.hb.Start()
		if cb := s.cb.get().OnConnect; cb != nil {
			cb()
		}
		return
	}
}

// IsConnected reports whether the session is currently in the Open state.
func (s *Session) IsConnected() bool {
	return s.state.load() == StateOpen
}

// State returns the session's current position in the state machine.
func (s *Session) State() State {
	return s.state.load()
}

// Wait blocks until the session reaches a terminal Closed state with
// auto-reconnect disabled (or permanently exhausted), i.e. until no
// further I/O or reconnection goroutines are running.
func (s *Session) Wait() {
	s.closeWG.Wait()
}

// Disconnect initiates (or completes) the closing handshake with the
// given code and tears the session down. It is idempotent: calling it
// multiple times, concurrently or not, only performs the teardown once.
func (s *Session) Disconnect(code CloseCode) {
	s.closeOnce.Do(func() {
		s.lastClose = code
		prev := s.state.load()
		s.state.store(StateClosing)
		close(s.done)

		conn := s.getConn()
		if prev == StateOpen && conn != nil {
			payload := make([]byte, 2)
			payload[0] = byte(code >> 8)
			payload[1] = byte(code)
			s.writeFrame(protocol.OpcodeClose, payload)
		}
		if conn != nil {
			_ = conn.Close()
		}

		s.hb.Stop()
		s.closeWG.Wait()

		s.state.store(StateClosed)
		if cb := s.cb.get().OnDisconnect; cb != nil {
			cb(code)
		}
	})
}

func (s *Session) onHeartbeatFailure() {
	s.reportError(newErr(ErrPingTimeout, "no pong received before deadline", nil))
	go s.Disconnect(protocol.CloseGoingAway)
}

func (s *Session) reportError(err error) {
	var code ErrorCode
	msg := err.Error()
	var se *Error
	if as, ok := err.(*Error); ok {
		se = as
		code = se.Code
	} else {
		code = ErrDisconnected
	}
	if cb := s.cb.get().OnError; cb != nil {
		cb(code, msg)
	}
}

// SetCallbacks atomically replaces the session's callback set (§9: the
// replacement is RCU-style, never blocking an in-flight dispatch).
func (s *Session) SetCallbacks(cb Callbacks) {
	s.cb.replace(cb)
}

// SetAutoReconnect toggles whether a dropped connection is retried.
func (s *Session) SetAutoReconnect(enabled bool) {
	s.autoReconn.store(enabled)
}

// SetPingMode changes the heartbeat probing strategy at runtime.
func (s *Session) SetPingMode(mode heartbeat.Mode) {
	cfg := s.cfg.Ping
	cfg.Mode = mode
	s.cfg.Ping = cfg
	s.hb.Reconfigure(cfg)
}

// SetPingInterval changes the heartbeat send cadence at runtime.
func (s *Session) SetPingInterval(d time.Duration) {
	cfg := s.cfg.Ping
	cfg.Interval = d
	s.cfg.Ping = cfg
	s.hb.Reconfigure(cfg)
}

// SetPingTimeout changes the pong deadline at runtime.
func (s *Session) SetPingTimeout(d time.Duration) {
	cfg := s.cfg.Ping
	cfg.Timeout = d
	s.cfg.Ping = cfg
	s.hb.Reconfigure(cfg)
}

// SetAutoPong toggles automatic Pong replies to inbound Ping frames.
func (s *Session) SetAutoPong(enabled bool) {
	cfg := s.cfg.Ping
	cfg.AutoPong = enabled
	s.cfg.Ping = cfg
	s.hb.Reconfigure(cfg)
}

// PinThread sets the CPU core the I/O loop pins its OS thread to. The
// I/O loop reads it once when it starts, so it takes effect on the next
// Connect or reconnect; an I/O loop that is already running is not
// re-pinned.
func (s *Session) PinThread(cpuID int) {
	s.cfg.PreferredCPU = cpuID
}

// Send transmits a UTF-8 text message and blocks until it has been
// written to the transport (or the session is torn down first).
func (s *Session) Send(text string) error {
	return s.sendSync(protocol.OpcodeText, []byte(text))
}

// SendBinary transmits a binary message and blocks until written.
func (s *Session) SendBinary(data []byte) error {
	return s.sendSync(protocol.OpcodeBinary, data)
}

// SendAsync enqueues a UTF-8 text message without waiting for it to be
// written; producers from any number of goroutines preserve their own
// program order (§4.3) but are interleaved with each other arbitrarily.
func (s *Session) SendAsync(text string) {
	s.sendQ.Enqueue(outboundItem{opcode: protocol.OpcodeText, payload: []byte(text)})
	s.wakeIOLoop()
}

// SendPing sends a Ping control frame with the given payload (at most 125
// bytes; longer payloads are truncated per RFC 6455 §5.5).
func (s *Session) SendPing(payload []byte) error {
	return s.sendSync(protocol.OpcodePing, truncateControl(payload))
}

// SendPong sends a Pong control frame, typically in response to an
// application-initiated liveness check rather than AutoPong.
func (s *Session) SendPong(payload []byte) error {
	return s.sendSync(protocol.OpcodePong, truncateControl(payload))
}

func truncateControl(payload []byte) []byte {
	if len(payload) > protocol.MaxControlPayload {
		return payload[:protocol.MaxControlPayload]
	}
	return payload
}

func (s *Session) sendSync(opcode protocol.Opcode, payload []byte) error {
	result := make(chan error, 1)
	s.sendQ.Enqueue(outboundItem{opcode: opcode, payload: payload, result: result})
	s.wakeIOLoop()
	select {
	case err := <-result:
		return err
	case <-s.done:
		return newErr(ErrDisconnected, "session closed before message was sent", nil)
	}
}

// wakeIOLoop interrupts the I/O loop's pending Read so a newly queued
// message gets written without waiting out the rest of the current
// poll quantum. Calling SetReadDeadline concurrently with an in-flight
// Read is explicitly supported by net.Conn and causes it to return
// immediately with a timeout error, which the loop treats the same as a
// naturally expired poll quantum.
func (s *Session) wakeIOLoop() {
	if conn := s.getConn(); conn != nil {
		_ = conn.SetReadDeadline(time.Unix(0, 1))
	}
}

// writeFrame encodes and writes a single frame directly, used for the
// Close control frame during Disconnect where there is no time left to
// round-trip through the send queue.
func (s *Session) writeFrame(opcode protocol.Opcode, payload []byte) {
	buf, err := protocol.Encode(nil, opcode, true, payload)
	if err != nil {
		return
	}
	s.sendMu.Lock()
	if conn := s.getConn(); conn != nil {
		_ = conn.WriteAll(buf)
	}
	s.sendMu.Unlock()
}

// sessionSender adapts Session to heartbeat.Sender.
type sessionSender struct{ s *Session }

func (ss sessionSender) SendControlPing(payload []byte) error {
	return ss.s.sendSync(protocol.OpcodePing, truncateControl(payload))
}

func (ss sessionSender) SendText(msg string) error {
	return ss.s.sendSync(protocol.OpcodeText, []byte(msg))
}
