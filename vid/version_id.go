// Package vid defines the opaque version identifiers that address every
// version of every shared object in the system.
package vid

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// VersionID globally and uniquely identifies a single version of a shared
// object. It is opaque: callers must not assume anything about its
// internal structure beyond equality and hashing over its bytes.
type VersionID chainhash.Hash

// Zero is the well-known empty VersionID; New returns it alongside an
// error. Commands express "no dependency" with a nil dependency, not
// with Zero.
var Zero VersionID

// New generates a fresh VersionID from 32 bytes of crypto/rand output,
// well above the minimum 128 bits of entropy required.
func New() (VersionID, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Zero, fmt.Errorf("vid: reading entropy: %w", err)
	}
	return VersionID(chainhash.HashH(raw[:])), nil
}

// MustNew is New but panics on failure; only meant for tests and
// deterministic construction where rand.Read cannot plausibly fail.
func MustNew() VersionID {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the VersionID the way chainhash.Hash renders itself,
// reversed hex, so it lines up with the rest of the stack's ID display.
func (v VersionID) String() string {
	return chainhash.Hash(v).String()
}

// IsZero reports whether v is the zero VersionID.
func (v VersionID) IsZero() bool {
	return v == Zero
}
