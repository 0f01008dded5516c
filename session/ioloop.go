package session

import (
	"encoding/binary"
	"errors"
	"net"
	"runtime"
	"time"

	"github.com/momentics/wsclient/affinity"
	"github.com/momentics/wsclient/heartbeat"
	"github.com/momentics/wsclient/protocol"
	"github.com/momentics/wsclient/transport"
)

func deadlineIn(d time.Duration) time.Time {
	return time.Now().Add(d)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// decodeErrorCode classifies a protocol.Decode failure per §7's error
// taxonomy: an oversized frame is MessageTooLarge, everything else is a
// generic protocol violation.
func decodeErrorCode(err error) ErrorCode {
	if err == protocol.ErrFrameTooLarge {
		return ErrMessageTooLarge
	}
	return ErrInvalidFrame
}

// decodeCloseCode maps a decode failure to the RFC 6455 close code sent
// to the peer before tearing down: 1009 for oversized messages, 1002 for
// any other frame-level violation.
func decodeCloseCode(err error) protocol.CloseCode {
	if err == protocol.ErrFrameTooLarge {
		return protocol.CloseMessageTooBig
	}
	return protocol.CloseProtocolError
}

// readChunk is the size of each Read call's buffer; the accumulator grows
// beyond this only when a frame spans multiple reads.
const readChunk = 16 * 1024

// ioLoop owns the transport exclusively: it is the only goroutine that
// reads from the connection, and the only goroutine that dequeues from
// s.sendQ.
// Writes from sendSync/SendAsync go through s.sendQ and are drained here
// rather than written directly, so frame boundaries on the wire are never
// interleaved even though producers call from arbitrary goroutines (§4.8).
//
// Grounded on the teacher's reactor run loops (reactor/epoll_reactor.go,
// reactor/iocp_reactor.go): a poll-then-dispatch cycle bounded by a short
// deadline so the loop can also service the outbound queue and shutdown
// signal without a second goroutine or a select over a raw fd.
func (s *Session) ioLoop() {
	defer s.closeWG.Done()

	if s.cfg.PreferredCPU >= 0 {
		runtime.LockOSThread()
		if err := affinity.Pin(s.cfg.PreferredCPU); err != nil && !errors.Is(err, affinity.ErrUnsupported) {
			s.log.Warn().Err(err).Int("cpu", s.cfg.PreferredCPU).Msg("session: failed to pin io loop thread")
		}
	}

	conn := s.getConn()
	asm := &protocol.Assembler{}
	buf := make([]byte, 0, readChunk)
	if len(s.handshakeSpill) > 0 {
		buf = append(buf, s.handshakeSpill...)
		s.handshakeSpill = nil
	}

	scratch := s.pool.Get()
	defer scratch.Release()
	read := scratch.Bytes()
	maskWarned := false

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.drainSendQueue(conn)

		if err := conn.SetReadDeadline(deadlineIn(pollQuantum)); err != nil {
			s.teardownOnError(newErr(ErrReceiveFailed, "setting read deadline", err))
			return
		}
		n, err := conn.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
		}

		for {
			frame, consumed, derr := protocol.Decode(buf, s.cfg.MaxMessageSize)
			if derr == protocol.ErrIncomplete {
				break
			}
			if derr != nil {
				s.teardownOnProtocolError(decodeErrorCode(derr), decodeCloseCode(derr), derr)
				return
			}
			buf = buf[consumed:]
			s.stats.recordReceive(consumed)

			if frame.Masked && !maskWarned {
				maskWarned = true
				s.log.Warn().Msg("session: received masked frame from server, unmasking and continuing")
			}

			if err := s.dispatch(frame, asm); err != nil {
				s.teardownOnProtocolError(ErrInvalidFrame, protocol.CloseProtocolError, err)
				return
			}
		}

		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.teardownOnError(newErr(ErrReceiveFailed, "reading from transport", err))
			return
		}
	}
}

// drainSendQueue writes every currently-queued outbound item to the
// transport, replying on each item's result channel as it completes.
func (s *Session) drainSendQueue(conn transport.Conn) {
	for {
		item, ok := s.sendQ.Dequeue()
		if !ok {
			return
		}
		buf, err := protocol.Encode(nil, item.opcode, true, item.payload)
		if err == nil {
			s.sendMu.Lock()
			err = conn.WriteAll(buf)
			s.sendMu.Unlock()
			if err == nil {
				s.stats.recordSend(len(buf))
			}
		}
		if item.result != nil {
			item.result <- err
		}
		if err != nil {
			s.reportError(newErr(ErrSendFailed, "writing frame", err))
		}
	}
}

// dispatch handles one fully decoded frame: control frames are acted on
// directly, data frames are fed to the fragment assembler and surfaced to
// callbacks once a complete message is assembled (§4.8).
func (s *Session) dispatch(frame *protocol.Frame, asm *protocol.Assembler) error {
	switch frame.Opcode {
	case protocol.OpcodePing:
		if s.cfg.Ping.AutoPong {
			s.sendQ.Enqueue(outboundItem{opcode: protocol.OpcodePong, payload: frame.Payload})
		}
		if cb := s.cb.get().OnPing; cb != nil {
			cb(frame.Payload)
		}
		return nil

	case protocol.OpcodePong:
		s.hb.NotifyPong()
		if cb := s.cb.get().OnPong; cb != nil {
			cb(frame.Payload)
		}
		return nil

	case protocol.OpcodeClose:
		code := protocol.CloseNormal
		if len(frame.Payload) >= 2 {
			code = protocol.CloseCode(binary.BigEndian.Uint16(frame.Payload))
		}
		go s.Disconnect(code)
		return nil

	default: // Continuation, Text, Binary
		opcode, payload, ok, err := asm.Feed(frame)
		if err != nil {
			return newErr(ErrInvalidFrame, "reassembling fragmented message", err)
		}
		if !ok {
			return nil
		}
		if cb := s.cb.get().OnRawMessage; cb != nil {
			cb(payload)
		}
		if opcode == protocol.OpcodeText {
			if s.cfg.Ping.Mode == heartbeat.TextPing {
				s.hb.NotifyPong()
			}
			if cb := s.cb.get().OnMessage; cb != nil {
				cb(string(payload))
			}
		}
		return nil
	}
}

func (s *Session) teardownOnError(err error) {
	s.reportError(err)
	go s.handleIOFailure(protocol.CloseAbnormal)
}

// teardownOnProtocolError reports a protocol-level violation (§7's
// "protocol" error category) and tears the connection down with the
// specific close code the violation maps to, per §4.10/S4.
func (s *Session) teardownOnProtocolError(code ErrorCode, closeCode protocol.CloseCode, cause error) {
	s.reportError(newErr(code, "protocol violation", cause))
	if conn := s.getConn(); conn != nil {
		payload := []byte{byte(closeCode >> 8), byte(closeCode)}
		out, err := protocol.Encode(nil, protocol.OpcodeClose, true, payload)
		if err == nil {
			s.sendMu.Lock()
			_ = conn.WriteAll(out)
			s.sendMu.Unlock()
		}
	}
	go s.handleIOFailure(closeCode)
}

// handleIOFailure reacts to a fatal I/O-loop error by closing the current
// connection and, if enabled, handing off to the reconnect loop rather
// than tearing the whole session down. closeCode is what's reported to
// OnDisconnect if no reconnection follows.
func (s *Session) handleIOFailure(closeCode protocol.CloseCode) {
	if !s.state.cas(StateOpen, StateReconnecting) {
		return
	}
	if conn := s.getConn(); conn != nil {
		_ = conn.Close()
	}
	s.hb.Stop()

	select {
	case <-s.done:
		return
	default:
	}

	if s.autoReconn.load() {
		s.closeWG.Add(1)
		go s.reconnectLoop()
	} else {
		s.state.store(StateClosed)
		if cb := s.cb.get().OnDisconnect; cb != nil {
			cb(closeCode)
		}
	}
}
