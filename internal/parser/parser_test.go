package parser

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/kaelos/gdbrsp/internal/packet"
)

// TestFeedSimple verifies a whole well-formed packet in one call.
func TestFeedSimple(t *testing.T) {
	var p Parser
	consumed, pkt, err := p.Feed([]byte("$hello#14"))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if consumed != 9 {
		t.Errorf("consumed = %d, want 9", consumed)
	}
	if pkt == nil {
		t.Fatal("expected a packet")
	}
	if pkt.Kind != packet.KindPacket {
		t.Errorf("Kind = %v, want packet", pkt.Kind)
	}
	if !bytes.Equal(pkt.Data, []byte("hello")) {
		t.Errorf("Data = %q, want %q", pkt.Data, "hello")
	}
	if pkt.Checksum != [2]byte{'1', '4'} {
		t.Errorf("Checksum = %q, want 14", pkt.Checksum)
	}
}

// TestFeedExpansion verifies escape and run-length decoding inside one
// frame. No checksum is compared — the parser is purely syntactic.
func TestFeedExpansion(t *testing.T) {
	var p Parser
	input := []byte("$in:valid}]}}Hello* }]*!CHECKS#UM")

	consumed, pkt, err := p.Feed(input)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if consumed != len(input) {
		t.Errorf("consumed = %d, want %d", consumed, len(input))
	}
	if pkt == nil {
		t.Fatal("expected a packet")
	}
	if want := []byte("in:valid}]Helloooo}}}}}CHECKS"); !bytes.Equal(pkt.Data, want) {
		t.Errorf("Data = %q, want %q", pkt.Data, want)
	}
	if pkt.Checksum != [2]byte{'U', 'M'} {
		t.Errorf("Checksum = %q, want UM", pkt.Checksum)
	}
}

// TestFeedBinaryNotification verifies arbitrary binary payload bytes pass
// through untouched under a '%' marker.
func TestFeedBinaryNotification(t *testing.T) {
	var p Parser
	input := []byte{'%', 1, 2, 99, 255, 128, 0, 200, '#', 0, 0}

	consumed, pkt, err := p.Feed(input)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if consumed != len(input) {
		t.Errorf("consumed = %d, want %d", consumed, len(input))
	}
	if pkt == nil {
		t.Fatal("expected a packet")
	}
	if pkt.Kind != packet.KindNotification {
		t.Errorf("Kind = %v, want notification", pkt.Kind)
	}
	if want := []byte{1, 2, 99, 255, 128, 0, 200}; !bytes.Equal(pkt.Data, want) {
		t.Errorf("Data = %v, want %v", pkt.Data, want)
	}
	if pkt.Checksum != [2]byte{0, 0} {
		t.Errorf("Checksum = %v, want [0 0]", pkt.Checksum)
	}
}

// TestFeedSplit verifies that every two-piece split of a packet produces the
// same result, and the same consumed totals, as the unsplit feed.
func TestFeedSplit(t *testing.T) {
	full := []byte("$in:valid}]}}Hello* }]*!CHECKS#UM")

	var whole Parser
	wantConsumed, wantPkt, err := whole.Feed(full)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	for split := 0; split <= len(full); split++ {
		t.Run(fmt.Sprintf("split at %d", split), func(t *testing.T) {
			var p Parser
			c1, pkt1, err := p.Feed(full[:split])
			if err != nil {
				t.Fatalf("Feed(first piece) failed: %v", err)
			}
			// Re-supply the unconsumed remainder with the rest of
			// the stream, exactly as a session loop would.
			c2, pkt2, err := p.Feed(full[c1:])
			if err != nil {
				t.Fatalf("Feed(second piece) failed: %v", err)
			}

			if c1+c2 != wantConsumed {
				t.Errorf("consumed = %d+%d, want total %d", c1, c2, wantConsumed)
			}
			got := pkt1
			if got == nil {
				got = pkt2
			}
			if got == nil {
				t.Fatal("no packet produced")
			}
			if !bytes.Equal(got.Data, wantPkt.Data) || got.Checksum != wantPkt.Checksum || got.Kind != wantPkt.Kind {
				t.Errorf("packet mismatch: got %+v, want %+v", got, wantPkt)
			}
		})
	}
}

// TestFeedByteAtATime drips a stream in one-byte pieces through a single
// parser instance, expecting two packets in order.
func TestFeedByteAtATime(t *testing.T) {
	stream := []byte("noise$hello#14%note#B6")

	var p Parser
	var got []*packet.Unchecked
	for i := 0; i < len(stream); {
		n, pkt, err := p.Feed(stream[i : i+1])
		if err != nil {
			t.Fatalf("Feed failed at byte %d: %v", i, err)
		}
		i += n
		if pkt != nil {
			got = append(got, pkt)
		}
	}

	if len(got) != 2 {
		t.Fatalf("parsed %d packets, want 2", len(got))
	}
	if got[0].Kind != packet.KindPacket || !bytes.Equal(got[0].Data, []byte("hello")) {
		t.Errorf("first packet = %+v", got[0])
	}
	if got[1].Kind != packet.KindNotification || !bytes.Equal(got[1].Data, []byte("note")) {
		t.Errorf("second packet = %+v", got[1])
	}
}

// TestFeedGarbageOnly verifies marker-less input is consumed silently.
func TestFeedGarbageOnly(t *testing.T) {
	var p Parser
	input := []byte("no markers in here at all")
	consumed, pkt, err := p.Feed(input)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if consumed != len(input) {
		t.Errorf("consumed = %d, want %d", consumed, len(input))
	}
	if pkt != nil {
		t.Errorf("unexpected packet %+v", pkt)
	}
}

// TestFeedEmptyInput verifies a zero-length feed is a no-op.
func TestFeedEmptyInput(t *testing.T) {
	var p Parser
	consumed, pkt, err := p.Feed(nil)
	if err != nil || consumed != 0 || pkt != nil {
		t.Errorf("Feed(nil) = (%d, %v, %v), want (0, nil, nil)", consumed, pkt, err)
	}
}

// TestMalformedRepeat verifies a run-length marker with no preceding payload
// byte is a recoverable frame error, not a fault.
func TestMalformedRepeat(t *testing.T) {
	var p Parser
	_, pkt, err := p.Feed([]byte("$*!junk"))

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %v", err)
	}
	if !errors.Is(err, ErrEmptyRepeat) {
		t.Errorf("reason = %v, want ErrEmptyRepeat", frameErr.Err)
	}
	if frameErr.Kind != packet.KindPacket {
		t.Errorf("Kind = %v, want packet", frameErr.Kind)
	}
	if pkt != nil {
		t.Errorf("unexpected packet %+v", pkt)
	}

	// The parser must have resynchronized.
	_, pkt, err = p.Feed([]byte("$hello#14"))
	if err != nil {
		t.Fatalf("Feed after frame error failed: %v", err)
	}
	if pkt == nil || !bytes.Equal(pkt.Data, []byte("hello")) {
		t.Errorf("recovery packet = %+v, want hello", pkt)
	}
}

// TestRepeatCountTooLarge verifies count bytes above the documented protocol
// maximum are rejected.
func TestRepeatCountTooLarge(t *testing.T) {
	var p Parser
	_, _, err := p.Feed([]byte{'$', 'a', '*', 127, '#', '0', '0'})
	if !errors.Is(err, ErrRepeatTooLarge) {
		t.Fatalf("expected ErrRepeatTooLarge, got %v", err)
	}
}

// TestRepeatCountFloor verifies count bytes at or below 29 expand to zero
// additional copies rather than wrapping.
func TestRepeatCountFloor(t *testing.T) {
	var p Parser
	_, pkt, err := p.Feed([]byte{'$', 'a', '*', 29, '#', '6', '1'})
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if pkt == nil || !bytes.Equal(pkt.Data, []byte("a")) {
		t.Errorf("Data = %+v, want %q", pkt, "a")
	}
}

// TestPayloadCap verifies both verbatim payload and run-length expansion are
// bounded by MaxPayload.
func TestPayloadCap(t *testing.T) {
	t.Run("verbatim bytes", func(t *testing.T) {
		p := Parser{MaxPayload: 8}
		_, _, err := p.Feed([]byte("$aaaaaaaaaaaaaaaa#00"))
		if !errors.Is(err, ErrPayloadTooLarge) {
			t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
		}
	})

	t.Run("run-length bomb", func(t *testing.T) {
		p := Parser{MaxPayload: 8}
		// '~' (126) expands to 97 additional copies.
		_, _, err := p.Feed([]byte("$a*~#00"))
		if !errors.Is(err, ErrPayloadTooLarge) {
			t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
		}
	})
}

// TestEncodeDecodeRoundTrip verifies that parsing the encoder's output
// reproduces the original payload, reserved bytes included.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		kind packet.Kind
		data []byte
	}{
		{"plain text", packet.KindPacket, []byte("mGg")},
		{"empty", packet.KindPacket, nil},
		{"reserved bytes", packet.KindPacket, []byte("these must be escaped: # $ } *")},
		{"binary", packet.KindNotification, []byte{0, 1, 0x23, 0x24, 0x7d, 0x2a, 0xff}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checked := packet.FromData(tc.kind, tc.data)
			var wire bytes.Buffer
			if err := checked.Encode(&wire); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			var p Parser
			consumed, pkt, err := p.Feed(wire.Bytes())
			if err != nil {
				t.Fatalf("Feed failed: %v", err)
			}
			if consumed != wire.Len() {
				t.Errorf("consumed = %d, want %d", consumed, wire.Len())
			}
			if pkt == nil {
				t.Fatal("expected a packet")
			}
			if !bytes.Equal(pkt.Data, tc.data) {
				t.Errorf("Data = %v, want %v", pkt.Data, tc.data)
			}
			if _, ok := pkt.Check(); !ok {
				t.Error("round-tripped packet fails its checksum")
			}
		})
	}
}
