package processor

import (
	"errors"
	"fmt"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/business"
	"github.com/vasp-network/offchain/payment"
	"github.com/vasp-network/offchain/status"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

// processCommandSuccessAsync is process_command_success_async (spec
// §4.5): only acts on peer-originated commands, evolves the payment via
// business policy, and if it changed, submits and sends the follow-up
// — releasing the obligation only once that send has gone out.
func (p *Processor) processCommandSuccessAsync(peer address.Address, obj *payment.Object, seq uint64) {
	if obj == nil {
		log.Errorf("processor: obligation (%s,%d) has no backing payment object", peer, seq)
		return
	}

	updated, err := p.paymentProcessAsync(obj)
	if err != nil {
		var interrupt *business.AsyncInterrupt
		if errors.As(err, &interrupt) {
			log.Debugf("processor: obligation (%s,%d) awaiting business decision %s", peer, seq, interrupt.CallbackID)
			return
		}
		log.Errorf("processor: obligation (%s,%d) business evolution failed: %v", peer, seq, err)
		return
	}

	if !paymentChanged(obj, updated) {
		if err := p.obl.Delete(peer, seq); err != nil {
			log.Errorf("processor: releasing obligation (%s,%d): %v", peer, seq, err)
		}
		return
	}

	newVer, err := vid.New()
	if err != nil {
		log.Errorf("processor: generating version for obligation (%s,%d): %v", peer, seq, err)
		return
	}
	dep := obj.Version()
	cmd := payment.NewUpdate(dep, newVer, p.myAddress, obj, updated.Sender, updated.Receiver, updated.RecipientSig)

	p.mu.Lock()
	submitter := p.submitter
	p.mu.Unlock()
	if submitter == nil {
		log.Errorf("processor: no submitter wired, cannot emit follow-up for obligation (%s,%d)", peer, seq)
		return
	}

	if err := submitter.ProposeAndSend(cmd); err != nil {
		// Network errors leave the obligation intact for later retry.
		log.Warnf("processor: sending follow-up for obligation (%s,%d): %v", peer, seq, err)
		return
	}
	if err := p.obl.Delete(peer, seq); err != nil {
		log.Errorf("processor: releasing obligation (%s,%d) after send: %v", peer, seq, err)
	}
}

func paymentChanged(old, new *payment.Object) bool {
	return old.Sender.Status != new.Sender.Status ||
		old.Receiver.Status != new.Receiver.Status ||
		old.RecipientSig != new.RecipientSig ||
		!old.Sender.KYC.IsComplete() && new.Sender.KYC.IsComplete() ||
		!old.Receiver.KYC.IsComplete() && new.Receiver.KYC.IsComplete()
}

// RetryProcessCommands is retry_process_commands (spec §4.5, §11):
// replay every surviving obligation on startup, reading the backing
// payment object out of st (the channel's already-reloaded store).
func (p *Processor) RetryProcessCommands(st *store.Store) error {
	entries, err := p.obl.All()
	if err != nil {
		return fmt.Errorf("processor: listing obligations: %w", err)
	}
	for _, e := range entries {
		obj, err := st.Get(e.Cmd.NewVer)
		if err != nil {
			log.Warnf("processor: obligation (%s,%d) references missing version %s, dropping", e.Peer, e.Seq, e.Cmd.NewVer)
			_ = p.obl.Delete(e.Peer, e.Seq)
			continue
		}
		paymentObj, ok := obj.(*payment.Object)
		if !ok {
			log.Warnf("processor: obligation (%s,%d) does not reference a payment object, dropping", e.Peer, e.Seq)
			_ = p.obl.Delete(e.Peer, e.Seq)
			continue
		}
		go p.processCommandSuccessAsync(e.Peer, paymentObj, e.Seq)
	}
	return nil
}

func clonePayment(o *payment.Object) *payment.Object {
	cp := *o
	cp.Sender.Metadata = append([]string(nil), o.Sender.Metadata...)
	cp.Receiver.Metadata = append([]string(nil), o.Receiver.Metadata...)
	return &cp
}

func rolesFor(me address.Address, p *payment.Object) (status.Role, *payment.Actor, *payment.Actor) {
	if p.Sender.Address.Equal(me) {
		return status.Sender, &p.Sender, &p.Receiver
	}
	return status.Receiver, &p.Receiver, &p.Sender
}

func asForceAbort(err error, out **business.ForceAbort) bool {
	var fa *business.ForceAbort
	if errors.As(err, &fa) {
		*out = fa
		return true
	}
	return false
}

// paymentProcessAsync is payment_process_async (spec §4.5 steps 1-8).
func (p *Processor) paymentProcessAsync(orig *payment.Object) (*payment.Object, error) {
	np := clonePayment(orig)
	myRole, myActor, otherActor := rolesFor(p.myAddress, np)
	origStatus := myActor.Status

	if otherActor.Status == status.Abort {
		if err := p.machine.CanChange(myRole, myActor.Status, status.Abort, otherActor.Status); err == nil {
			myActor.Status = status.Abort
		}
		return p.finalizeConsistency(np, myRole, origStatus, myActor, otherActor)
	}

	var forceAbort *business.ForceAbort

	if myActor.Status == status.None {
		if err := p.biz.CheckAccountExistence(np); err != nil {
			if !asForceAbort(err, &forceAbort) {
				return np, err
			}
		}
	}

	for forceAbort == nil && (myActor.Status == status.None || myActor.Status == status.NeedsKYCData || myActor.Status == status.NeedsRecipientSignature) {
		nextLevel, err := p.biz.NextKYCLevelToRequest(np)
		if err != nil {
			if !asForceAbort(err, &forceAbort) {
				return np, err
			}
			break
		}
		// The business layer can fast-forward our status directly (e.g.
		// straight to ready_for_settlement) independent of whether any KYC
		// material is attached this round; that advance must stick even if
		// a later call in this same pass interrupts or aborts.
		if nextLevel != status.None && status.Height(nextLevel) > status.Height(myActor.Status) {
			if cerr := p.machine.CanChange(myRole, myActor.Status, nextLevel, otherActor.Status); cerr == nil {
				myActor.Status = nextLevel
			}
		}

		toProvide, err := p.biz.NextKYCToProvide(np)
		if err != nil {
			if !asForceAbort(err, &forceAbort) {
				return np, err
			}
			break
		}

		advanced := false
		if _, ok := toProvide[status.NeedsRecipientSignature]; ok && myRole == status.Receiver && myActor.Status != status.NeedsRecipientSignature {
			sig, err := p.biz.GetRecipientSignature(np)
			if err != nil {
				if !asForceAbort(err, &forceAbort) {
					return np, err
				}
				break
			}
			np.RecipientSig = sig
			myActor.Status = status.NeedsRecipientSignature
			advanced = true
		} else if _, ok := toProvide[status.NeedsKYCData]; ok && myActor.Status == status.None {
			kyc, err := p.biz.GetExtendedKYC(np)
			if err != nil {
				if !asForceAbort(err, &forceAbort) {
					return np, err
				}
				break
			}
			myActor.KYC = payment.KYC(kyc)
			myActor.Status = status.NeedsKYCData
			advanced = true
		}
		if !advanced {
			break
		}
	}

	if forceAbort == nil {
		ready, err := p.biz.ReadyForSettlement(np)
		if err != nil {
			if !asForceAbort(err, &forceAbort) {
				return np, err
			}
		} else if ready && status.Height(myActor.Status) < status.Height(status.ReadyForSettlement) {
			if cerr := p.machine.CanChange(myRole, myActor.Status, status.ReadyForSettlement, otherActor.Status); cerr == nil {
				myActor.Status = status.ReadyForSettlement
			}
		}
	}

	if forceAbort == nil && myRole == status.Sender && p.machine.CanSettle(np.Sender.Status, np.Receiver.Status) {
		settled, err := p.biz.HasSettled(np)
		if err != nil {
			if !asForceAbort(err, &forceAbort) {
				return np, err
			}
		} else if settled {
			if cerr := p.machine.CanChange(myRole, myActor.Status, status.Settled, otherActor.Status); cerr == nil {
				myActor.Status = status.Settled
			}
		}
	}

	if forceAbort != nil {
		if cerr := p.machine.CanChange(myRole, myActor.Status, status.Abort, otherActor.Status); cerr == nil {
			myActor.Status = status.Abort
		}
	}

	return p.finalizeConsistency(np, myRole, origStatus, myActor, otherActor)
}

// PaymentLogicError is raised by finalizeConsistency (spec §4.5 step 7):
// an internal bug, not a business decision — every real mutation above
// already went through machine.CanChange, so reaching this means two of
// those checks disagreed with each other.
type PaymentLogicError struct {
	Reason string
}

func (e *PaymentLogicError) Error() string { return "processor: payment logic error: " + e.Reason }

func (p *Processor) finalizeConsistency(np *payment.Object, role status.Role, origStatus status.Status, actor, other *payment.Actor) (*payment.Object, error) {
	if actor.Status == origStatus {
		return np, nil
	}
	if err := p.machine.CanChange(role, origStatus, actor.Status, other.Status); err != nil {
		return nil, &PaymentLogicError{Reason: err.Error()}
	}
	return np, nil
}
