// Package session ties the streaming parser to a byte transport and drives
// the one-byte acknowledgment handshake: '+' for a checksum-valid packet,
// '-' to request retransmission of a corrupted one.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/kaelos/gdbrsp/internal/packet"
	"github.com/kaelos/gdbrsp/internal/parser"
	"github.com/kaelos/gdbrsp/internal/util"
)

// ByteSource supplies bytes from the transport while tracking a consumable
// read position. In-memory buffers, TCP connections and DataChannel streams
// all satisfy it, so tests and production share one session implementation.
type ByteSource interface {
	// Fetch blocks until at least one byte is buffered and returns the
	// buffered bytes without consuming them. A nil slice with a nil error
	// signals a clean end of stream. The returned slice is only valid
	// until the next Fetch or Consume call.
	Fetch() ([]byte, error)

	// Consume discards n bytes from the front of the buffer. n never
	// exceeds the length of the slice returned by the last Fetch.
	Consume(n int)
}

// ByteSink accepts bytes to write. One Write call carries one protocol unit
// (a handshake byte or a whole encoded packet), so message-oriented sinks
// such as a DataChannel map Write calls to messages directly.
type ByteSink interface {
	io.Writer
}

// Session owns one source/sink pair and one parser instance. It is
// single-threaded: all state is touched only by the goroutine driving it.
type Session struct {
	src    ByteSource
	sink   ByteSink
	parser parser.Parser
}

// New wraps a source/sink pair in a Session.
func New(src ByteSource, sink ByteSink) *Session {
	return &Session{src: src, sink: sink}
}

// SetMaxPayload overrides the parser's per-packet payload cap.
func (s *Session) SetMaxPayload(n int) {
	s.parser.MaxPayload = n
}

// NextPacket blocks until the next checksum-valid packet arrives, writing
// the handshake bytes along the way. Checksum failures on ordinary packets
// nak and keep reading — retransmission is the sender's job. Corrupt
// notifications are dropped (they carry no handshake and must not read as
// end-of-session). A clean end of the source yields (nil, nil); only
// transport failures return an error.
func (s *Session) NextPacket() (*packet.Checked, error) {
	for {
		buf, err := s.src.Fetch()
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		if len(buf) == 0 {
			return nil, nil
		}

		read, pkt, err := s.parser.Feed(buf)
		s.src.Consume(read)
		util.Stats.AddRead(read)

		if err != nil {
			var frameErr *parser.FrameError
			if !errors.As(err, &frameErr) {
				return nil, err
			}
			// The parser already resynchronized; nak aborted '$'
			// frames so the sender retransmits.
			util.LogWarning("dropping frame: %v", frameErr)
			if frameErr.Kind == packet.KindPacket {
				if err := s.nak(); err != nil {
					return nil, err
				}
			}
			continue
		}
		if pkt == nil {
			continue
		}

		switch pkt.Kind {
		case packet.KindPacket:
			if checked, ok := pkt.Check(); ok {
				if err := s.ack(); err != nil {
					return nil, err
				}
				return checked, nil
			}
			if err := s.nak(); err != nil {
				return nil, err
			}
			// Retry: resume reading for the retransmission.

		case packet.KindNotification:
			// Notifications are never acknowledged.
			if checked, ok := pkt.Check(); ok {
				util.Stats.AddNotification()
				return checked, nil
			}
			util.LogWarning("dropping notification with bad checksum")
		}
	}
}

// Dispatch encodes the packet and writes it to the sink as a single write.
// Acknowledgment of outbound packets belongs to the peer and is not awaited
// here.
func (s *Session) Dispatch(pkt *packet.Checked) error {
	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return err
	}
	n, err := s.sink.Write(buf.Bytes())
	util.Stats.AddWritten(n)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

func (s *Session) ack() error {
	util.Stats.AddAccepted()
	return s.writeByte('+')
}

func (s *Session) nak() error {
	util.Stats.AddRejected()
	return s.writeByte('-')
}

func (s *Session) writeByte(b byte) error {
	n, err := s.sink.Write([]byte{b})
	util.Stats.AddWritten(n)
	if err != nil {
		return fmt.Errorf("handshake write: %w", err)
	}
	return nil
}
