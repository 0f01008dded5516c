// Command wsecho is a small interactive client for this module's Session
// API: it connects to a WebSocket URL, echoes every received text message
// to stdout, and sends each line read from stdin.
//
// Grounded on the teacher's examples/stest/client (flag-driven connection
// parameters, signal.NotifyContext-based shutdown) generalized off its
// bespoke flag package onto this module's urfave/cli/v3 ambient stack.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/momentics/wsclient/protocol"
	"github.com/momentics/wsclient/session"
)

func main() {
	cmd := &cli.Command{
		Name:  "wsecho",
		Usage: "connect to a WebSocket endpoint and echo messages between it and stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "ws:// or wss:// endpoint to connect to",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "connect-timeout",
				Usage: "maximum time to wait for the TCP connect and TLS handshake",
				Value: 10 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "no-reconnect",
				Usage: "disable automatic reconnection on a dropped connection",
			},
			&cli.IntFlag{
				Name:  "pin-cpu",
				Usage: "pin the I/O loop to a logical CPU core (-1 disables pinning)",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "pretty-log",
				Usage: "human-readable console logging instead of JSON",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wsecho: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd.Bool("pretty-log"))

	cfg := session.DefaultConfig(cmd.String("url"))
	cfg.ConnectTimeout = cmd.Duration("connect-timeout")
	cfg.AutoReconnect = !cmd.Bool("no-reconnect")
	cfg.PreferredCPU = int(cmd.Int("pin-cpu"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	disconnected := make(chan session.CloseCode, 1)

	sess, err := session.New(cfg, session.Callbacks{
		OnConnect: func() {
			log.Info().Str("url", cfg.URL).Msg("connected")
		},
		OnDisconnect: func(code session.CloseCode) {
			log.Info().Stringer("code", code).Msg("disconnected")
			select {
			case disconnected <- code:
			default:
			}
		},
		OnError: func(code session.ErrorCode, msg string) {
			log.Warn().Stringer("code", code).Str("detail", msg).Msg("session error")
		},
		OnMessage: func(text string) {
			fmt.Println(text)
		},
	}, log)
	if err != nil {
		return fmt.Errorf("building session: %w", err)
	}

	if err := sess.Connect(); err != nil && !cfg.AutoReconnect {
		return fmt.Errorf("connecting: %w", err)
	}

	go readStdinLoop(ctx, sess, log)

	select {
	case <-ctx.Done():
		sess.Disconnect(protocol.CloseNormal)
	case <-disconnected:
		if !cfg.AutoReconnect {
			break
		}
	}
	sess.Wait()
	return nil
}

func readStdinLoop(ctx context.Context, sess *session.Session, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := sess.Send(scanner.Text()); err != nil {
			log.Warn().Err(err).Msg("send failed")
		}
	}
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
