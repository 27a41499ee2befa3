// Package parser implements the incremental frame parser for the remote
// serial protocol: a state machine that consumes arbitrary byte slices,
// reconstructs one packet at a time, and reports exactly how many bytes it
// used so the caller can re-feed the remainder.
//
// The parser is purely syntactic. It expands escapes and run-lengths and
// splits frames, but compares no checksums and interprets no payloads.
package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/kaelos/gdbrsp/internal/packet"
)

// DefaultMaxPayload bounds the decoded payload of a single packet unless the
// caller overrides it. Adversarial run-length input can otherwise expand a
// handful of wire bytes into an unbounded allocation.
const DefaultMaxPayload = 1 << 20

// MaxRepeatCount is the highest count byte the protocol documents for a
// run-length sequence ('~', 126), i.e. at most 97 additional copies.
const MaxRepeatCount = 126

// Reasons carried by a FrameError.
var (
	ErrEmptyRepeat     = errors.New("run-length marker with no preceding payload byte")
	ErrRepeatTooLarge  = errors.New("run-length count byte above protocol maximum")
	ErrPayloadTooLarge = errors.New("decoded payload exceeds the per-packet limit")
)

// FrameError reports an aborted frame. The stream itself stays usable: the
// parser has discarded the partial packet and resynchronizes on the next
// marker. Kind tells the session whether the aborted frame would have been
// acknowledged, so it can drive the nak path.
type FrameError struct {
	Kind packet.Kind
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed %s frame: %v", e.Kind, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

type phase uint8

const (
	phaseSeek     phase = iota // scanning for '$' or '%'
	phasePayload               // copying payload up to '#', '}' or '*'
	phaseEscape                // one byte, XOR 0x20
	phaseRepeat                // one count byte, expands the last payload byte
	phaseChecksum              // collecting the two checksum bytes
)

// Parser is the streaming frame parser. The zero value is ready to use; one
// instance owns its in-progress frame and must be fed each stream's bytes in
// order. It keeps no reference to caller buffers across calls.
type Parser struct {
	// MaxPayload caps the decoded payload length per packet.
	// DefaultMaxPayload applies when zero.
	MaxPayload int

	phase    phase
	kind     packet.Kind
	data     []byte
	checksum [packet.ChecksumLen]byte
	sumLen   int
}

// Feed parses as much of input as possible into a packet. It returns the
// number of bytes consumed — the caller must re-supply the rest together
// with later data — and the completed packet, if any.
//
// Feeding a stream in arbitrarily small pieces yields the same packets, and
// the same consumed-byte totals, as feeding it whole. Bytes preceding a
// marker are discarded silently. A non-nil error is always a *FrameError;
// the parser has already resynchronized and may keep being fed.
func (p *Parser) Feed(input []byte) (int, *packet.Unchecked, error) {
	read := 0
	for {
		n, pkt, err := p.feedOne(input[read:])
		read += n
		if err != nil {
			return read, nil, err
		}
		if read == len(input) || pkt != nil {
			return read, pkt, nil
		}
	}
}

// feedOne advances the state machine by a single transition.
func (p *Parser) feedOne(input []byte) (int, *packet.Unchecked, error) {
	if len(input) == 0 {
		return 0, nil, nil
	}

	switch p.phase {
	case phaseSeek:
		i := bytes.IndexAny(input, "%$")
		if i < 0 {
			// All garbage; wait for a marker in a later call.
			return len(input), nil, nil
		}
		if input[i] == '%' {
			p.kind = packet.KindNotification
		} else {
			p.kind = packet.KindPacket
		}
		p.phase = phasePayload
		return i + 1, nil, nil

	case phasePayload:
		end := bytes.IndexAny(input, "#}*")
		chunk := input
		if end >= 0 {
			chunk = input[:end]
		}
		if err := p.grow(len(chunk)); err != nil {
			return len(chunk), nil, err
		}
		p.data = append(p.data, chunk...)
		if end < 0 {
			return len(input), nil, nil
		}
		switch input[end] {
		case '#':
			p.phase = phaseChecksum
			p.sumLen = 0
		case '}':
			p.phase = phaseEscape
		case '*':
			p.phase = phaseRepeat
		}
		return end + 1, nil, nil

	case phaseEscape:
		if err := p.grow(1); err != nil {
			return 1, nil, err
		}
		p.data = append(p.data, input[0]^0x20)
		p.phase = phasePayload
		return 1, nil, nil

	case phaseRepeat:
		c := input[0]
		if len(p.data) == 0 {
			return 1, nil, p.abort(ErrEmptyRepeat)
		}
		if c > MaxRepeatCount {
			return 1, nil, p.abort(ErrRepeatTooLarge)
		}
		count := 0
		if c > 29 {
			count = int(c) - 29
		}
		if err := p.grow(count); err != nil {
			return 1, nil, err
		}
		last := p.data[len(p.data)-1]
		p.data = append(p.data, bytes.Repeat([]byte{last}, count)...)
		p.phase = phasePayload
		return 1, nil, nil

	case phaseChecksum:
		take := packet.ChecksumLen - p.sumLen
		if take > len(input) {
			take = len(input)
		}
		copy(p.checksum[p.sumLen:], input[:take])
		p.sumLen += take
		if p.sumLen < packet.ChecksumLen {
			return take, nil, nil
		}

		pkt := &packet.Unchecked{
			Kind:     p.kind,
			Data:     p.data,
			Checksum: p.checksum,
		}
		p.data = nil
		p.phase = phaseSeek
		return take, pkt, nil
	}

	// The phase enum is closed; this is unreachable by construction but must
	// not fault on a corrupted receiver either.
	return 1, nil, p.abort(fmt.Errorf("invalid parser phase %d", p.phase))
}

// grow checks that the payload may take n more bytes, aborting the frame
// otherwise.
func (p *Parser) grow(n int) error {
	limit := p.MaxPayload
	if limit <= 0 {
		limit = DefaultMaxPayload
	}
	if len(p.data)+n > limit {
		return p.abort(ErrPayloadTooLarge)
	}
	return nil
}

// abort discards the in-progress frame and resynchronizes on the next
// marker, returning the frame error to surface.
func (p *Parser) abort(reason error) error {
	kind := p.kind
	p.data = nil
	p.sumLen = 0
	p.phase = phaseSeek
	return &FrameError{Kind: kind, Err: reason}
}
