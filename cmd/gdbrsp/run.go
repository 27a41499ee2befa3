package main

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"github.com/kaelos/gdbrsp/internal/config"
	"github.com/kaelos/gdbrsp/internal/packet"
	"github.com/kaelos/gdbrsp/internal/session"
	"github.com/kaelos/gdbrsp/internal/signaling"
	"github.com/kaelos/gdbrsp/internal/transport"
	"github.com/kaelos/gdbrsp/internal/util"
)

// runServe hosts the stub on a local TCP port: accept one connection, run
// the packet loop until the peer hangs up.
func runServe(ctx context.Context, cfg config.Config) error {
	sid := shortID()
	util.LogInfo("[%s] listening on %s ...", sid, cfg.Addr)

	sess, conn, err := session.Listen(cfg.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	util.LogSuccess("[%s] debugger connected from %s", sid, conn.RemoteAddr())

	// Close the transport on Ctrl+C so the blocking read returns.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	util.StartStatsReporter(ctx)
	return respond(sid, sess, cfg)
}

// runHost hosts the stub behind WebRTC signaling and runs the packet loop
// over the DataChannel byte stream.
func runHost(ctx context.Context, cfg config.Config) error {
	sid := shortID()

	tr, err := signaling.EstablishAsStub(ctx, cfg.SignalAddr)
	if err != nil {
		return fmt.Errorf("failed to establish transport: %w", err)
	}
	defer tr.Close()

	stream := transport.NewStream(tr)
	util.LogSuccess("[%s] debug transport established", sid)

	util.StartStatsReporter(ctx)
	return respond(sid, session.New(stream, stream), cfg)
}

// runBridge connects to a remote stub over WebRTC and exposes it on a local
// TCP port, piping raw bytes both ways so an ordinary debugger front-end can
// attach with `target remote :port`.
func runBridge(ctx context.Context, cfg config.Config) error {
	sid := shortID()

	tr, err := signaling.EstablishAsBridge(ctx, cfg.SignalURL)
	if err != nil {
		return fmt.Errorf("failed to establish transport: %w", err)
	}
	defer tr.Close()

	stream := transport.NewStream(tr)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.LocalPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()
	util.LogSuccess("[%s] bridge ready — point the debugger at %s", sid, addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept on %s: %w", addr, err)
	}
	defer conn.Close()
	util.LogInfo("[%s] debugger connected from %s", sid, conn.RemoteAddr())

	util.StartStatsReporter(ctx)
	return pipe(ctx, conn, stream)
}

// ---------------------------------------------------------------------------
// Stub packet loop
// ---------------------------------------------------------------------------

// respond runs the stub's reply loop in the configured mode until the
// session ends.
func respond(sid string, sess *session.Session, cfg config.Config) error {
	if cfg.MaxPayload > 0 {
		sess.SetMaxPayload(cfg.MaxPayload)
	}

	empty := packet.Empty()

	for {
		pkt, err := sess.NextPacket()
		if err != nil {
			return err
		}
		if pkt == nil {
			util.LogInfo("[%s] end of session", sid)
			return nil
		}

		util.LogInfo("[%s] -> %s %q", sid, pkt.Kind(), pkt.Data())

		// Notifications carry no reply at this layer.
		if pkt.Kind() == packet.KindNotification {
			continue
		}

		reply := empty
		if cfg.Mode == config.ModeRepl {
			line, _ := pterm.DefaultInteractiveTextInput.
				WithDefaultText("reply").
				Show()
			reply = packet.FromData(packet.KindPacket, []byte(line))
		}

		util.LogDebug("[%s] <- %s %q", sid, reply.Kind(), reply.Data())
		if err := sess.Dispatch(reply); err != nil {
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Bridge byte pump
// ---------------------------------------------------------------------------

// pipe copies bytes between the local TCP connection and the DataChannel
// stream until either side closes.
func pipe(ctx context.Context, conn net.Conn, stream *transport.Stream) error {
	errCh := make(chan error, 2)

	// TCP → DataChannel.
	go func() {
		buf := make([]byte, session.BufSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				// Send owns its message; don't reuse the read buffer.
				msg := make([]byte, n)
				copy(msg, buf[:n])
				if _, werr := stream.Write(msg); werr != nil {
					errCh <- werr
					return
				}
				util.Stats.AddWritten(n)
			}
			if err != nil {
				errCh <- nil // local side hung up, clean end
				return
			}
		}
	}()

	// DataChannel → TCP.
	go func() {
		for {
			b, err := stream.Fetch()
			if err != nil {
				errCh <- err
				return
			}
			if len(b) == 0 {
				errCh <- nil // remote side closed, clean end
				return
			}
			if _, err := conn.Write(b); err != nil {
				errCh <- err
				return
			}
			stream.Consume(len(b))
			util.Stats.AddRead(len(b))
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// shortID returns a short session identifier for log correlation.
func shortID() string {
	return uuid.NewString()[:8]
}
