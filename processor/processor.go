// Package processor implements the PaymentProcessor: the business-
// policy-driven evolution of payment objects, with asynchronous
// callbacks and a crash-recoverable obligation log (spec §4.5).
//
// Grounded on liquidity/attestor.go's AttestorClient, which validated
// externally-sourced data against a business-supplied policy and acted
// on the result; here the "external data" is the counterparty's
// command and the "policy" is a business.Context.
package processor

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/business"
	"github.com/vasp-network/offchain/executor"
	"github.com/vasp-network/offchain/payment"
	"github.com/vasp-network/offchain/status"
)

// log is the package-wide logger, defaulting to disabled until
// UseLogger is called (spec §9.1, matching the teacher's
// package-level btclog.Logger convention).
var log = btclog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(l btclog.Logger) { log = l }

// Submitter is how the processor proposes a follow-up command and sends
// it to the peer, without importing package channel (spec §9: prefer
// explicit, non-owning references over bidirectional ownership). A
// *channel.Channel satisfies this interface.
type Submitter interface {
	ProposeAndSend(cmd *payment.Command) error
}

// CommandError wraps a semantic rejection of a command — a
// check_command failure, an illegal status transition, or a failed
// signature check (spec §7).
type CommandError struct {
	Code   string
	Reason string
}

func (e *CommandError) Error() string { return fmt.Sprintf("payment command rejected (%s): %s", e.Code, e.Reason) }

// Processor is the PaymentProcessor.
type Processor struct {
	myAddress address.Address
	biz       business.Context
	machine   *status.Machine
	obl       *obligationLog
	refs      *refIndex

	mu        sync.Mutex
	submitter Submitter
}

// New returns a Processor. sealKey seals the obligation log at rest
// (spec §10: nacl/secretbox); db backs both the obligation log and,
// conventionally, the channel's object-store snapshot.
func New(myAddress address.Address, biz business.Context, db *leveldb.DB, sealKey [32]byte) *Processor {
	return &Processor{
		myAddress: myAddress,
		biz:       biz,
		machine:   status.New(),
		obl:       newObligationLog(db, sealKey),
		refs:      newRefIndex(),
	}
}

// SetSubmitter wires the channel that can propose-and-send follow-up
// commands. Must be called before any command is processed.
func (p *Processor) SetSubmitter(s Submitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitter = s
}

// Lookup returns the latest known version for a reference_id.
func (p *Processor) Lookup(refID string) (vidString string, ok bool) {
	v, ok := p.refs.Get(refID)
	if !ok {
		return "", false
	}
	return v.String(), true
}

var _ executor.Processor = (*Processor)(nil)

// CheckCommand is check_command (spec §4.5).
func (p *Processor) CheckCommand(ctx executor.Context, cmd executor.Command) error {
	pc, ok := cmd.(*payment.Command)
	if !ok {
		return &CommandError{Code: "malformed", Reason: "not a payment command"}
	}

	origin := pc.Origin()
	if !origin.Equal(ctx.MyAddress()) && !origin.Equal(ctx.OtherAddress()) {
		return &CommandError{Code: "malformed", Reason: "origin is neither channel party"}
	}
	if !pc.Sender.Address.Equal(ctx.MyAddress()) && !pc.Sender.Address.Equal(ctx.OtherAddress()) {
		return &CommandError{Code: "malformed", Reason: "sender address is not a channel party"}
	}
	if !pc.Receiver.Address.Equal(ctx.MyAddress()) && !pc.Receiver.Address.Equal(ctx.OtherAddress()) {
		return &CommandError{Code: "malformed", Reason: "receiver address is not a channel party"}
	}

	if origin.Equal(ctx.MyAddress()) {
		// We validated this command ourselves when we created it.
		return nil
	}

	if pc.Dep == nil {
		return p.checkNewPayment(origin, pc)
	}
	base, err := ctx.Store().Get(*pc.Dep)
	if err != nil {
		return &CommandError{Code: "missing_dependency", Reason: err.Error()}
	}
	baseObj, ok := base.(*payment.Object)
	if !ok {
		return &CommandError{Code: "malformed", Reason: "dependency is not a payment object"}
	}
	return p.checkNewUpdate(pc, baseObj)
}

func (p *Processor) checkNewPayment(origin address.Address, cmd *payment.Command) error {
	if err := payment.ValidateReferenceID(cmd.ReferenceID, origin); err != nil {
		return &CommandError{Code: "bad_reference_id", Reason: err.Error()}
	}

	var proposerRole status.Role
	var proposerStatus, otherStatus status.Status
	if cmd.Sender.Address.Equal(origin) {
		proposerRole, proposerStatus, otherStatus = status.Sender, cmd.Sender.Status, cmd.Receiver.Status
	} else {
		proposerRole, proposerStatus, otherStatus = status.Receiver, cmd.Receiver.Status, cmd.Sender.Status
	}
	if err := p.machine.CheckInitial(proposerRole, proposerStatus, otherStatus); err != nil {
		return &CommandError{Code: "bad_initial_status", Reason: err.Error()}
	}
	if cmd.RecipientSig != "" {
		if err := p.biz.ValidateRecipientSignature(toBizPayment(cmd)); err != nil {
			return &CommandError{Code: "bad_signature", Reason: err.Error()}
		}
	}
	return nil
}

func (p *Processor) checkNewUpdate(cmd *payment.Command, base *payment.Object) error {
	if cmd.ReferenceID != base.ReferenceID || cmd.OriginalRef != base.OriginalRef ||
		cmd.Description != base.Description || cmd.Action != base.Action {
		return &CommandError{Code: "writeonce_field_changed", Reason: "write-once fields must not change across versions"}
	}
	if !cmd.Sender.Address.Equal(base.Sender.Address) || cmd.Sender.Subaddress != base.Sender.Subaddress {
		return &CommandError{Code: "writeonce_field_changed", Reason: "sender identity must not change"}
	}
	if !cmd.Receiver.Address.Equal(base.Receiver.Address) || cmd.Receiver.Subaddress != base.Receiver.Subaddress {
		return &CommandError{Code: "writeonce_field_changed", Reason: "receiver identity must not change"}
	}

	origin := cmd.Origin()
	var role status.Role
	var oldStatus, newStatus, otherStatus status.Status
	if cmd.Sender.Address.Equal(origin) {
		role, oldStatus, newStatus, otherStatus = status.Sender, base.Sender.Status, cmd.Sender.Status, cmd.Receiver.Status
		if cmd.Receiver.Status != base.Receiver.Status {
			return &CommandError{Code: "other_side_modified", Reason: "sender command must not change receiver status"}
		}
	} else {
		role, oldStatus, newStatus, otherStatus = status.Receiver, base.Receiver.Status, cmd.Receiver.Status, cmd.Sender.Status
		if cmd.Sender.Status != base.Sender.Status {
			return &CommandError{Code: "other_side_modified", Reason: "receiver command must not change sender status"}
		}
	}
	if err := p.machine.CanChange(role, oldStatus, newStatus, otherStatus); err != nil {
		return &CommandError{Code: "bad_status_transition", Reason: err.Error()}
	}
	if cmd.RecipientSig != "" && cmd.RecipientSig != base.RecipientSig {
		if err := p.biz.ValidateRecipientSignature(toBizPayment(cmd)); err != nil {
			return &CommandError{Code: "bad_signature", Reason: err.Error()}
		}
	}
	return nil
}

// ProcessCommand is process_command (spec §4.5).
func (p *Processor) ProcessCommand(ctx executor.Context, cmd executor.Command, seqNo uint64, success bool, cmdErr error) {
	pc, ok := cmd.(*payment.Command)
	if !ok {
		log.Errorf("processor: non-payment command at seq %d", seqNo)
		return
	}

	if !success {
		log.Debugf("processor: command from %s at seq %d failed: %v", pc.Origin(), seqNo, cmdErr)
		return
	}

	obj, err := ctx.Store().Get(pc.NewVer)
	if err != nil {
		log.Errorf("processor: created version %s missing after commit: %v", pc.NewVer, err)
		return
	}
	p.refs.Set(pc.ReferenceID, pc.NewVer)

	if pc.Origin().Equal(p.myAddress) {
		// We originated this command; there's no downstream obligation.
		return
	}

	if err := p.obl.Put(pc.Origin(), seqNo, pc); err != nil {
		log.Errorf("processor: recording obligation for (%s,%d): %v", pc.Origin(), seqNo, err)
		return
	}

	paymentObj, _ := obj.(*payment.Object)
	go p.processCommandSuccessAsync(pc.Origin(), paymentObj, seqNo)
}

// toBizPayment adapts a payment.Command's proposed state into
// something business.Context can reason about. A fuller adaptation
// would carry every field the business layer needs; commands validate
// signatures against the proposed sender/receiver only.
func toBizPayment(cmd *payment.Command) business.Payment {
	return &payment.Object{
		Sender:   cmd.Sender,
		Receiver: cmd.Receiver,
	}
}
