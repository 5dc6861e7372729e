// Package signing provides the ECDSA sign/verify helpers used by a
// BusinessContext implementation to produce and check
// recipient_signature and KYC certificate signatures (spec §3, §6:
// validate_recipient_signature).
//
// New, not adapted from a single teacher file: the pattern (hash the
// canonical message, sign/verify with btcec/v2's ECDSA over secp256k1)
// is the one settlement/channels and covenants/vault use throughout
// the teacher repo for their own signature checks.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Sign produces a hex-encoded DER signature over sha256(msg).
func Sign(priv *btcec.PrivateKey, msg []byte) string {
	h := sha256.Sum256(msg)
	sig := ecdsa.Sign(priv, h[:])
	return hex.EncodeToString(sig.Serialize())
}

// Verify checks a hex-encoded DER signature produced by Sign.
func Verify(pub *btcec.PublicKey, msg []byte, sigHex string) error {
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("signing: decoding signature: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return fmt.Errorf("signing: parsing signature: %w", err)
	}
	h := sha256.Sum256(msg)
	if !sig.Verify(h[:], pub) {
		return fmt.Errorf("signing: signature does not verify")
	}
	return nil
}
