// Package payment implements the PaymentObject data model: the one
// SharedObject the core deals in (spec §3).
//
// Grounded on settlement/iso20022/bridge.go's ISO20022Message, whose
// Amount/Currency/EndToEndID/Reference fields map directly onto
// PaymentAction and PaymentObject.ReferenceID; the envelope-building
// functions there (MapToISO20022) become NewCreate/NewUpdate here.
package payment

import (
	"encoding/gob"
	"fmt"
	"strings"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/status"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

func init() {
	// Concrete SharedObject/Command implementations must be registered
	// for store.Persister's gob round-trip and for channel envelopes
	// that carry a Command as an interface value.
	gob.Register(&Object{})
	gob.Register(&Command{})
}

// KYC bundles the all-or-none optional KYC artifacts for one actor
// (spec §3).
type KYC struct {
	Data        string
	Signature   string
	Certificate string
}

// HasAny reports whether any KYC field is set; spec requires all three
// or none.
func (k KYC) HasAny() bool {
	return k.Data != "" || k.Signature != "" || k.Certificate != ""
}

// IsComplete reports whether all three KYC fields are set.
func (k KYC) IsComplete() bool {
	return k.Data != "" && k.Signature != "" && k.Certificate != ""
}

// Actor is one side of a payment.
type Actor struct {
	Address    address.Address
	Subaddress string
	KYC        KYC
	Status     status.Status
	Metadata   []string
}

// Action describes the monetary transfer (spec §3).
type Action struct {
	Amount    uint64 // positive integer by convention; nothing in this module rejects zero
	Currency  string
	Action    string
	Timestamp string
}

// Object is the PaymentObject SharedObject.
type Object struct {
	version      vid.VersionID
	previous     []vid.VersionID
	Sender       Actor
	Receiver     Actor
	ReferenceID  string
	OriginalRef  string
	Description  string
	Action       Action
	RecipientSig string
}

var _ store.SharedObject = (*Object)(nil)

func (o *Object) Version() vid.VersionID           { return o.version }
func (o *Object) PreviousVersions() []vid.VersionID { return o.previous }

// IsSender/IsRecipient/SenderStatus/ReceiverStatus implement
// business.Payment, which is keyed by raw bytes so that package
// business need not depend on package address.
func (o *Object) IsSender(me []byte) bool    { return o.Sender.Address.Equal(address.Address(me)) }
func (o *Object) IsRecipient(me []byte) bool { return o.Receiver.Address.Equal(address.Address(me)) }
func (o *Object) SenderStatus() status.Status   { return o.Sender.Status }
func (o *Object) ReceiverStatus() status.Status { return o.Receiver.Status }

// ValidateReferenceID checks spec §3's format rule: "<originator_address>_<suffix>".
func ValidateReferenceID(refID string, originator address.Address) error {
	prefix := originator.String() + "_"
	if !strings.HasPrefix(refID, prefix) || len(refID) == len(prefix) {
		return fmt.Errorf("payment: reference_id %q must start with %q and have a non-empty suffix", refID, prefix)
	}
	return nil
}

// NewActor builds a root actor at status.None with no KYC material,
// the only legal initial state for a freshly proposed payment (spec
// §4.4).
func NewActor(addr address.Address, subaddress string) Actor {
	return Actor{Address: addr, Subaddress: subaddress, Status: status.None}
}
