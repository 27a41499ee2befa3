package packet

import "fmt"

// Checked wraps an Unchecked packet under the invariant that its checksum
// bytes, parsed as a two-digit hex number, equal the 8-bit wrapping sum of
// its data. The invariant is established exactly once — by Unchecked.Check
// on received bytes, or by FromData deriving the checksum from known-good
// data. There is no constructor taking arbitrary fields.
type Checked struct {
	unchecked Unchecked
}

// FromData builds a packet from trusted payload bytes, deriving the checksum
// (two uppercase hex digits). It bypasses verification because the checksum
// is computed, not received.
func FromData(kind Kind, data []byte) *Checked {
	u := Unchecked{Kind: kind, Data: data}
	copy(u.Checksum[:], fmt.Sprintf("%02X", u.ActualChecksum()))
	return &Checked{unchecked: u}
}

// Empty returns the canonical "unsupported feature" reply: an ordinary
// packet with no payload, encoding to exactly "$#00".
func Empty() *Checked {
	return FromData(KindPacket, nil)
}

// Kind returns the packet kind.
func (c *Checked) Kind() Kind { return c.unchecked.Kind }

// Data returns the decoded payload. The slice must not be modified; to
// mutate a packet, discard verification with Invalidate first.
func (c *Checked) Data() []byte { return c.unchecked.Data }

// Checksum returns the two raw checksum bytes.
func (c *Checked) Checksum() [ChecksumLen]byte { return c.unchecked.Checksum }

// Invalidate converts the packet back to an Unchecked one so it can be
// mutated. The verified value is consumed; re-verify (or rebuild with
// FromData) after editing.
func (c *Checked) Invalidate() Unchecked { return c.unchecked }
