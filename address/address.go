// Package address defines the opaque VASP address type used to identify
// the two parties of a channel and to derive the deterministic client/
// server role assignment.
package address

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// Address is an opaque byte string identifying one VASP. It supports
// equality, a total order, and last-bit extraction, the three
// operations the channel role-assignment rule (spec §4.3) needs.
type Address []byte

// New copies raw into a new Address.
func New(raw []byte) Address {
	out := make(Address, len(raw))
	copy(out, raw)
	return out
}

// Equal reports whether a and b identify the same VASP.
func (a Address) Equal(b Address) bool {
	return bytes.Equal(a, b)
}

// Less gives Address a total order, used to break role-assignment ties
// (spec §4.3: "I am client iff my_parent >= other_parent").
func (a Address) Less(b Address) bool {
	return bytes.Compare(a, b) < 0
}

// LastBit returns the low bit of the address's final byte, or 0 for an
// empty address.
func (a Address) LastBit() byte {
	if len(a) == 0 {
		return 0
	}
	return a[len(a)-1] & 1
}

// String renders the address as plain base58 text for logs and error
// messages; it carries no on-chain meaning, it's display only.
func (a Address) String() string {
	if len(a) == 0 {
		return "<empty>"
	}
	return base58.Encode(a)
}
