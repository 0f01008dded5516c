// Package transport provides the plaintext-or-TLS byte stream a session
// dials and reads/writes frames over, per this module's §4.5 transport
// adapter: write_all/read semantics, SNI, hostname verification, and a
// minimum negotiated TLS version of 1.2.
//
// Grounded on the teacher's transport/netconn.go (thin net.Conn wrapper)
// and client/transport_client.go (write_all-style Send loop, deadline
// passthrough), generalized to also dial TLS.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Conn is the byte-stream abstraction a session communicates over. Both
// the plaintext and TLS implementations satisfy it identically from the
// session's point of view.
type Conn interface {
	// WriteAll writes the entirety of b, returning only once all bytes
	// have been accepted by the kernel or an error occurs — callers never
	// need to loop on partial writes.
	WriteAll(b []byte) error
	// Read behaves like io.Reader.Read.
	Read(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Options configures Dial.
type Options struct {
	// TLS, when true, causes Dial to negotiate TLS over the TCP
	// connection using host as the SNI server name and for hostname
	// verification. The minimum accepted TLS version is never below 1.2:
	// a lower MinVersion set on TLSConfig is raised to 1.2.
	TLS       bool
	TLSConfig *tls.Config
}

type netConn struct {
	c net.Conn
}

func (n *netConn) WriteAll(b []byte) error {
	for len(b) > 0 {
		written, err := n.c.Write(b)
		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		b = b[written:]
	}
	return nil
}

func (n *netConn) Read(b []byte) (int, error)         { return n.c.Read(b) }
func (n *netConn) SetReadDeadline(t time.Time) error  { return n.c.SetReadDeadline(t) }
func (n *netConn) SetWriteDeadline(t time.Time) error { return n.c.SetWriteDeadline(t) }
func (n *netConn) Close() error                       { return n.c.Close() }

// Dial establishes a TCP connection to hostPort, enabling TCP_NODELAY,
// then optionally layers TLS on top per opts. The context governs the TCP
// connect and (when enabled) the TLS handshake; it has no effect on
// subsequent reads/writes.
func Dial(ctx context.Context, hostPort, sniHost string, opts Options) (Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", hostPort, err)
	}
	if tc, ok := raw.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	if !opts.TLS {
		return &netConn{c: raw}, nil
	}

	cfg := opts.TLSConfig.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg.ServerName = sniHost
	if cfg.MinVersion < tls.VersionTLS12 {
		cfg.MinVersion = tls.VersionTLS12
	}
	cfg.InsecureSkipVerify = false // hostname verification is always enforced

	tlsConn := tls.Client(raw, cfg)
	if deadline, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(deadline)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("transport: tls handshake to %s: %w", sniHost, err)
	}
	_ = tlsConn.SetDeadline(time.Time{})

	return &netConn{c: tlsConn}, nil
}
