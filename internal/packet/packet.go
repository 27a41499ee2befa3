// Package packet defines the wire vocabulary of the GDB remote serial
// protocol: packet kinds, the unchecked/checked packet pair, checksum
// computation, and the byte-exact wire encoding.
package packet

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// ChecksumLen is the number of raw checksum bytes trailing every packet.
const ChecksumLen = 2

// Kind identifies the marker byte that introduced a packet.
type Kind uint8

const (
	// KindNotification is a '%' packet. Notifications are never
	// acknowledged at the handshake level.
	KindNotification Kind = iota
	// KindPacket is a '$' packet, subject to the +/- handshake.
	KindPacket
)

// Marker returns the wire marker byte for the kind.
func (k Kind) Marker() byte {
	if k == KindNotification {
		return '%'
	}
	return '$'
}

func (k Kind) String() string {
	if k == KindNotification {
		return "notification"
	}
	return "packet"
}

// NotTextError reports checksum bytes that are not valid UTF-8 text.
type NotTextError struct {
	Checksum [ChecksumLen]byte
}

func (e *NotTextError) Error() string {
	return fmt.Sprintf("expected text checksum, found %v", e.Checksum[:])
}

// NotNumberError reports a textual checksum that does not parse as a
// base-16 byte.
type NotNumberError struct {
	Text string
	Err  error
}

func (e *NotNumberError) Error() string {
	return fmt.Sprintf("expected hex number, found %q: %v", e.Text, e.Err)
}

func (e *NotNumberError) Unwrap() error { return e.Err }

// Unchecked is a packet as decoded from the wire — escapes and run-lengths
// already expanded — whose checksum has not yet been proven to match Data.
// It is freely constructible and mutable; only this variant may be mutated.
type Unchecked struct {
	Kind     Kind
	Data     []byte
	Checksum [ChecksumLen]byte
}

// ActualChecksum returns the checksum derived from the data: the unsigned
// 8-bit wrapping sum of every payload byte.
func (u *Unchecked) ActualChecksum() byte {
	var sum byte
	for _, b := range u.Data {
		sum += b
	}
	return sum
}

// ExpectedChecksum parses the two received checksum bytes as a hexadecimal
// number. The bytes must be valid text (*NotTextError otherwise) and must
// parse as a base-16 integer in [0, 255] (*NotNumberError otherwise).
func (u *Unchecked) ExpectedChecksum() (byte, error) {
	if !utf8.Valid(u.Checksum[:]) {
		return 0, &NotTextError{Checksum: u.Checksum}
	}
	text := string(u.Checksum[:])
	n, err := strconv.ParseUint(text, 16, 8)
	if err != nil {
		return 0, &NotNumberError{Text: text, Err: err}
	}
	return byte(n), nil
}

// Check returns the packet promoted to Checked if, and only if, the received
// checksum parses and matches the derived one. The caller decides how to
// react to a failure (the session loop naks and rereads).
func (u *Unchecked) Check() (*Checked, bool) {
	expected, err := u.ExpectedChecksum()
	if err != nil || expected != u.ActualChecksum() {
		return nil, false
	}
	return &Checked{unchecked: *u}, true
}
