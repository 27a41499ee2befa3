package packet

import (
	"bytes"
	"io"
)

// reserved holds the four bytes that may never appear verbatim in an encoded
// payload: the frame delimiters and the escape/run-length lead-ins.
const reserved = "#$}*"

// Encode writes the packet's wire form: the kind marker, the payload with
// reserved bytes escaped as '}' + (byte XOR 0x20), a literal '#', and the two
// raw checksum bytes.
//
// The output is one of several valid encodings of the same payload (no
// run-length compression is emitted); receivers must only rely on decode
// reproducing the payload, not on a byte-exact round trip.
func (u *Unchecked) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{u.Kind.Marker()}); err != nil {
		return err
	}

	remaining := u.Data
	for len(remaining) > 0 {
		i := bytes.IndexAny(remaining, reserved)
		if i < 0 {
			i = len(remaining)
		}

		if _, err := w.Write(remaining[:i]); err != nil {
			return err
		}
		remaining = remaining[i:]

		if len(remaining) > 0 {
			if _, err := w.Write([]byte{'}', remaining[0] ^ 0x20}); err != nil {
				return err
			}
			remaining = remaining[1:]
		}
	}

	if _, err := w.Write([]byte{'#'}); err != nil {
		return err
	}
	_, err := w.Write(u.Checksum[:])
	return err
}

// Encode writes the verified packet's wire form.
func (c *Checked) Encode(w io.Writer) error {
	return c.unchecked.Encode(w)
}
