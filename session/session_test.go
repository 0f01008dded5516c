package session_test

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/momentics/wsclient/protocol"
	"github.com/momentics/wsclient/session"
)

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// testPeer is a minimal, hand-rolled WebSocket server used only to drive
// this package's end-to-end tests: it performs the RFC 6455 handshake
// over a raw net.Listener and then echoes text frames or responds to
// pings, without pulling in a server-side WebSocket library.
type testPeer struct {
	ln net.Listener
}

func newTestPeer(t *testing.T, handle func(conn net.Conn)) *testPeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &testPeer{ln: ln}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if err := peerHandshake(conn); err != nil {
			conn.Close()
			return
		}
		handle(conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return p
}

func (p *testPeer) url() string {
	return "ws://" + p.ln.Addr().String() + "/"
}

func peerHandshake(conn net.Conn) error {
	r := bufio.NewReader(conn)
	req, err := http.ReadRequest(r)
	if err != nil {
		return err
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	sum := sha1.Sum([]byte(key + acceptGUID))
	accept := base64.StdEncoding.EncodeToString(sum[:])

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	_, err = conn.Write([]byte(resp))
	return err
}

// peerEcho echoes every text message it receives, and answers pings with
// pongs, until the connection is closed.
func peerEcho(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 0, 4096)
	read := make([]byte, 4096)
	for {
		n, err := conn.Read(read)
		if err != nil {
			return
		}
		buf = append(buf, read[:n]...)
		for {
			frame, consumed, derr := protocol.Decode(buf, 0)
			if derr == protocol.ErrIncomplete {
				break
			}
			if derr != nil {
				return
			}
			buf = buf[consumed:]

			switch frame.Opcode {
			case protocol.OpcodePing:
				out, _ := protocol.Encode(nil, protocol.OpcodePong, true, frame.Payload)
				conn.Write(out)
			case protocol.OpcodeText:
				out, _ := protocol.Encode(nil, protocol.OpcodeText, true, frame.Payload)
				conn.Write(out)
			case protocol.OpcodeClose:
				out, _ := protocol.Encode(nil, protocol.OpcodeClose, true, frame.Payload)
				conn.Write(out)
				return
			}
		}
	}
}

func newTestSession(t *testing.T, url string, cb session.Callbacks) *session.Session {
	t.Helper()
	cfg := session.DefaultConfig(url)
	cfg.ConnectTimeout = 2 * time.Second
	cfg.AutoReconnect = false
	sess, err := session.New(cfg, cb, zerolog.Nop())
	require.NoError(t, err)
	return sess
}

func TestSessionConnectAndEchoRoundTrip(t *testing.T) {
	peer := newTestPeer(t, peerEcho)

	received := make(chan string, 1)
	connected := make(chan struct{}, 1)
	sess := newTestSession(t, peer.url(), session.Callbacks{
		OnConnect: func() { connected <- struct{}{} },
		OnMessage: func(text string) { received <- text },
	})

	require.NoError(t, sess.Connect())
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnConnect")
	}
	require.True(t, sess.IsConnected())

	require.NoError(t, sess.Send("hello there"))

	select {
	case text := <-received:
		require.Equal(t, "hello there", text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}

	sess.Disconnect(protocol.CloseNormal)
	sess.Wait()
	require.False(t, sess.IsConnected())
}

func TestSessionSendPingReceivesPong(t *testing.T) {
	peer := newTestPeer(t, peerEcho)

	pongCh := make(chan []byte, 1)
	sess := newTestSession(t, peer.url(), session.Callbacks{
		OnPong: func(payload []byte) { pongCh <- payload },
	})
	require.NoError(t, sess.Connect())
	defer func() {
		sess.Disconnect(protocol.CloseNormal)
		sess.Wait()
	}()

	require.NoError(t, sess.SendPing([]byte("abc")))

	select {
	case payload := <-pongCh:
		require.Equal(t, []byte("abc"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestSessionStatsReflectTraffic(t *testing.T) {
	peer := newTestPeer(t, peerEcho)

	received := make(chan string, 1)
	sess := newTestSession(t, peer.url(), session.Callbacks{
		OnMessage: func(text string) { received <- text },
	})
	require.NoError(t, sess.Connect())
	defer func() {
		sess.Disconnect(protocol.CloseNormal)
		sess.Wait()
	}()

	require.NoError(t, sess.Send("count me"))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}

	stats := sess.Stats()
	require.GreaterOrEqual(t, stats.FramesSent, uint64(1))
	require.GreaterOrEqual(t, stats.FramesReceived, uint64(1))
	require.Greater(t, stats.BytesSent, uint64(0))
	require.Greater(t, stats.BytesReceived, uint64(0))
}

func TestSessionDisconnectIsIdempotent(t *testing.T) {
	peer := newTestPeer(t, peerEcho)

	disconnects := make(chan session.CloseCode, 4)
	sess := newTestSession(t, peer.url(), session.Callbacks{
		OnDisconnect: func(code session.CloseCode) { disconnects <- code },
	})
	require.NoError(t, sess.Connect())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Disconnect(protocol.CloseNormal)
		}()
	}
	wg.Wait()
	sess.Wait()

	require.Len(t, disconnects, 1)
}

// peerSendOversized writes a single oversized text frame and then blocks,
// simulating a peer that violates the negotiated message-size limit.
func peerSendOversized(conn net.Conn) {
	defer conn.Close()
	out, _ := protocol.Encode(nil, protocol.OpcodeText, true, make([]byte, 2048))
	conn.Write(out)
	buf := make([]byte, 1)
	conn.Read(buf) // block until the client closes
}

func TestSessionOversizedFrameClosesWithMessageTooBig(t *testing.T) {
	peer := newTestPeer(t, peerSendOversized)

	errCh := make(chan session.ErrorCode, 1)
	disconnects := make(chan session.CloseCode, 1)
	cfg := session.DefaultConfig(peer.url())
	cfg.ConnectTimeout = 2 * time.Second
	cfg.MaxMessageSize = 1024
	cfg.AutoReconnect = false
	sess, err := session.New(cfg, session.Callbacks{
		OnError: func(code session.ErrorCode, _ string) {
			select {
			case errCh <- code:
			default:
			}
		},
		OnDisconnect: func(code session.CloseCode) { disconnects <- code },
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sess.Connect())

	select {
	case code := <-errCh:
		require.Equal(t, session.ErrMessageTooLarge, code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MessageTooLarge error")
	}

	select {
	case code := <-disconnects:
		require.Equal(t, protocol.CloseMessageTooBig, code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onDisconnect")
	}
	sess.Wait()
}

// peerAcceptThenHangUp completes the handshake and immediately drops the
// connection without a close frame, simulating an abrupt disconnect.
func peerAcceptThenHangUp(conn net.Conn) {
	conn.Close()
}

func TestSessionReconnectExhaustionReportsAbnormalClose(t *testing.T) {
	peer := newTestPeer(t, peerAcceptThenHangUp)

	disconnects := make(chan session.CloseCode, 1)
	cfg := session.DefaultConfig(peer.url())
	cfg.ConnectTimeout = 2 * time.Second
	cfg.AutoReconnect = true
	cfg.MaxReconnectAttempts = 2
	sess, err := session.New(cfg, session.Callbacks{
		OnDisconnect: func(code session.CloseCode) { disconnects <- code },
	}, zerolog.Nop())
	require.NoError(t, err)

	// The peer completes the handshake and then hangs up, so Connect
	// succeeds and the I/O loop's read failure hands the session to the
	// reconnect loop. The peer only ever accepts one connection; closing
	// its listener makes every reconnect attempt's dial fail at once
	// instead of waiting on an upgrade response that never comes.
	_ = sess.Connect()
	peer.ln.Close()

	select {
	case code := <-disconnects:
		require.Equal(t, protocol.CloseAbnormal, code)
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for onDisconnect after reconnect exhaustion")
	}
	sess.Wait()
}

func TestSessionConnectFailsOnUnreachableHost(t *testing.T) {
	cfg := session.DefaultConfig("ws://127.0.0.1:1")
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.AutoReconnect = false
	sess, err := session.New(cfg, session.Callbacks{}, zerolog.Nop())
	require.NoError(t, err)

	err = sess.Connect()
	require.Error(t, err)
	require.False(t, sess.IsConnected())
}
