// Package status implements the payment Status enumeration and the
// StatusMachine that validates (sender_status, receiver_status)
// transitions (spec §3, §4.4).
//
// Grounded on settlement/swaps/atomic.go's SwapStatus: a small string
// enum with a fixed lifecycle (Pending -> Active -> Redeemed/Refunded/
// Expired). Here the lifecycle is a pair of independent per-side
// enums with a shared finality barrier instead of one linear swap
// status.
package status

import "fmt"

// Status is one actor's status within a payment.
type Status string

const (
	None                    Status = "none"
	NeedsKYCData            Status = "needs_kyc_data"
	NeedsRecipientSignature Status = "needs_recipient_signature"
	ReadyForSettlement      Status = "ready_for_settlement"
	Settled                 Status = "settled"
	Abort                   Status = "abort"
)

// height orders every non-abort status for the per-side monotonicity
// rule (spec §4.4). Abort is intentionally absent: it compares as
// distinct, never by height.
var height = map[Status]int{
	None:                    0,
	NeedsKYCData:            1,
	NeedsRecipientSignature: 2,
	ReadyForSettlement:      3,
	Settled:                 4,
}

// Height returns s's monotonicity rank, or -1 for Abort (which has no
// height) and for any unrecognized status.
func Height(s Status) int {
	h, ok := height[s]
	if !ok {
		return -1
	}
	return h
}

// Role identifies which actor is proposing the status change.
type Role int

const (
	Sender Role = iota
	Receiver
)

func (r Role) String() string {
	if r == Sender {
		return "sender"
	}
	return "receiver"
}

// validTargets enumerates, per (role, current status), the statuses
// that role may transition its own side to, not counting Abort (handled
// separately by the finality barrier). This is the full table the
// spec's Open Question 2 asks an implementer to derive: per-side
// monotonic by height, receiver-only NeedsRecipientSignature,
// sender-only Settled.
var validTargets = map[Role]map[Status][]Status{
	Sender: {
		None:               {None, NeedsKYCData, ReadyForSettlement},
		NeedsKYCData:       {NeedsKYCData, ReadyForSettlement},
		ReadyForSettlement: {ReadyForSettlement, Settled},
		Settled:            {Settled},
	},
	Receiver: {
		None:                    {None, NeedsKYCData, NeedsRecipientSignature, ReadyForSettlement},
		NeedsKYCData:            {NeedsKYCData, NeedsRecipientSignature, ReadyForSettlement},
		NeedsRecipientSignature: {NeedsRecipientSignature, ReadyForSettlement},
		ReadyForSettlement:      {ReadyForSettlement},
	},
}

// Machine validates status transitions for a payment's (sender,
// receiver) status pair.
type Machine struct{}

// New returns a Machine. It carries no state: every rule is a pure
// function of the (role, old, new, other) tuple.
func New() *Machine { return &Machine{} }

// CheckInitial validates the status pair for a freshly proposed payment
// (spec §4.4: "the actor proposing a fresh payment sets its own status
// to none; the other side's status must also be none").
func (m *Machine) CheckInitial(proposer Role, proposerStatus, otherStatus Status) error {
	if proposerStatus != None {
		return fmt.Errorf("status: fresh payment must start the %s at none, got %s", proposer, proposerStatus)
	}
	if otherStatus != None {
		return fmt.Errorf("status: fresh payment must start the other side at none, got %s", otherStatus)
	}
	return nil
}

// CanChange reports whether role may move its own status from old to
// next, given the other side's current status. It folds in the
// finality barrier (spec §4.4): once a side has reached
// ReadyForSettlement or beyond, it may not unilaterally move to Abort
// unless the other side is already Abort.
func (m *Machine) CanChange(role Role, old, next, other Status) error {
	if old == Abort {
		if next != Abort {
			return fmt.Errorf("status: %s is final, cannot leave abort", role)
		}
		return nil
	}

	if next == Abort {
		if Height(old) >= Height(ReadyForSettlement) && other != Abort {
			return fmt.Errorf("status: %s cannot abort after reaching %s unless the other side has aborted", role, old)
		}
		return nil
	}

	targets, ok := validTargets[role][old]
	if !ok {
		return fmt.Errorf("status: %s has no valid transitions from %s", role, old)
	}
	for _, t := range targets {
		if t == next {
			if Height(next) < Height(old) {
				return fmt.Errorf("status: %s cannot move backwards from %s to %s", role, old, next)
			}
			return nil
		}
	}
	return fmt.Errorf("status: %s cannot move from %s to %s", role, old, next)
}

// CanSettle reports whether the joint (sender, receiver) state permits
// moving to Settled: the spec requires both sides at
// ReadyForSettlement (or the sender already Settled, for idempotent
// re-checks) before the business layer's has_settled decision is acted
// on (spec §4.5 step 5).
func (m *Machine) CanSettle(sender, receiver Status) bool {
	senderReady := sender == ReadyForSettlement || sender == Settled
	receiverReady := receiver == ReadyForSettlement
	return senderReady && receiverReady
}
