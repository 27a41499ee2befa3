package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
)

// BufSize is the read buffer size for stream transports.
const BufSize = 8 * 1024

// Listen binds addr, accepts exactly one TCP connection, and wraps it in a
// Session. The listener is closed once the connection is accepted — one
// session per listening endpoint. The returned conn lets the caller close
// the transport and inspect the peer address.
func Listen(addr string) (*Session, net.Conn, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return nil, nil, fmt.Errorf("accept on %s: %w", addr, err)
	}
	return New(NewReaderSource(conn), conn), conn, nil
}

// readerSource adapts any io.Reader to a ByteSource through a bufio.Reader.
type readerSource struct {
	r *bufio.Reader
}

// NewReaderSource wraps r in a buffered ByteSource.
func NewReaderSource(r io.Reader) ByteSource {
	return &readerSource{r: bufio.NewReaderSize(r, BufSize)}
}

func (s *readerSource) Fetch() ([]byte, error) {
	if s.r.Buffered() == 0 {
		if _, err := s.r.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
	}
	// Peek of exactly the buffered count never errors.
	return s.r.Peek(s.r.Buffered())
}

func (s *readerSource) Consume(n int) {
	// n is bounded by the last Fetch, so Discard cannot come up short.
	_, _ = s.r.Discard(n)
}
