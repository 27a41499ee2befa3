package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	HighWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	LowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// Stream adapts the DataChannel to the session's byte source/sink shape:
// inbound messages accumulate in a buffer consumed positionally, and each
// Write becomes one DataChannel message, gated by buffered-amount
// watermarks.
type Stream struct {
	tr *Transport

	mu  sync.Mutex
	buf []byte

	arrived   chan struct{}
	sendReady chan struct{}
}

// NewStream wires a Stream to the transport's DataChannel. Call once per
// transport: it claims the OnMessage and buffered-amount callbacks.
func NewStream(tr *Transport) *Stream {
	s := &Stream{
		tr:        tr,
		arrived:   make(chan struct{}, 1),
		sendReady: make(chan struct{}, 1),
	}

	tr.dc.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	tr.dc.OnBufferedAmountLow(func() {
		select {
		case s.sendReady <- struct{}{}:
		default:
		}
	})

	tr.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.mu.Lock()
		s.buf = append(s.buf, msg.Data...)
		s.mu.Unlock()

		select {
		case s.arrived <- struct{}{}:
		default:
		}
	})

	return s
}

// Fetch blocks until inbound bytes are buffered, returning them without
// consuming. It returns (nil, nil) once the transport is done and the buffer
// has drained — the session's clean end of stream.
func (s *Stream) Fetch() ([]byte, error) {
	for {
		s.mu.Lock()
		buf := s.buf
		s.mu.Unlock()
		if len(buf) > 0 {
			return buf, nil
		}

		select {
		case <-s.arrived:
		case <-s.tr.Done():
			// One final look: a message may have landed between the
			// length check and the shutdown signal.
			s.mu.Lock()
			buf := s.buf
			s.mu.Unlock()
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, nil
		}
	}
}

// Consume discards n bytes from the front of the inbound buffer.
func (s *Stream) Consume(n int) {
	s.mu.Lock()
	s.buf = s.buf[n:]
	s.mu.Unlock()
}

// Write sends p as a single DataChannel message, blocking first if the
// channel's outbound buffer is above the high-water mark.
func (s *Stream) Write(p []byte) (int, error) {
	if s.tr.dc.BufferedAmount() > uint64(HighWaterMark) {
		select {
		case <-s.sendReady:
		case <-s.tr.Done():
			return 0, s.tr.ctx.Err()
		}
	}

	if err := s.tr.dc.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
