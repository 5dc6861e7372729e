// Package business defines the capability interface the processor
// consumes for every policy decision that isn't purely mechanical:
// KYC level negotiation, settlement readiness, signature validation
// (spec §6, §9: "modeled as a capability interface ... pass it as a
// value the processor holds").
package business

import "github.com/vasp-network/offchain/status"

// Payment is the minimal read/write view of a payment the business
// layer needs. Package payment's Object type satisfies it;
// business itself stays independent of the payment data model so it
// can be reused, mocked, and tested in isolation.
type Payment interface {
	IsSender(me []byte) bool
	IsRecipient(me []byte) bool
	SenderStatus() status.Status
	ReceiverStatus() status.Status
}

// ForceAbort signals a business policy decision to terminate a payment.
// The processor translates it into a Status.Abort transition where the
// finality barrier allows it (spec §7).
type ForceAbort struct {
	Reason string
}

func (e *ForceAbort) Error() string { return "business: force abort: " + e.Reason }

// ValidationFailure signals that a signature or KYC artifact failed
// validation.
type ValidationFailure struct {
	Reason string
}

func (e *ValidationFailure) Error() string { return "business: validation failed: " + e.Reason }

// AsyncInterrupt signals "not decided yet; resume later" (spec §6, §9).
// CallbackID identifies the outstanding decision so a later resumption
// (driven by the processor's obligation-log replay) can be correlated
// back to it.
type AsyncInterrupt struct {
	CallbackID string
}

func (e *AsyncInterrupt) Error() string {
	return "business: async interrupt, callback " + e.CallbackID
}

// KYCMaterial bundles the three KYC artifacts, which are all-or-none
// per spec §3.
type KYCMaterial struct {
	Data        string
	Signature   string
	Certificate string
}

// Context is the BusinessContext capability (spec §6). Every method that
// returns an error may return a *ForceAbort or *AsyncInterrupt in place
// of its normal result (IsSender and IsRecipient return no error);
// ValidateRecipientSignature may additionally return
// *ValidationFailure.
type Context interface {
	IsSender(p Payment) bool
	IsRecipient(p Payment) bool

	// CheckAccountExistence may return *ForceAbort.
	CheckAccountExistence(p Payment) error

	// NextKYCLevelToRequest names the status this side should move its
	// own actor to next, which tells the counterparty what this side
	// still needs from it.
	NextKYCLevelToRequest(p Payment) (status.Status, error)

	// NextKYCToProvide names the set of statuses this side is ready to
	// satisfy on its own.
	NextKYCToProvide(p Payment) (map[status.Status]struct{}, error)

	GetExtendedKYC(p Payment) (KYCMaterial, error)
	GetRecipientSignature(p Payment) (string, error)

	ReadyForSettlement(p Payment) (bool, error)
	HasSettled(p Payment) (bool, error)

	// ValidateRecipientSignature may return *ValidationFailure.
	ValidateRecipientSignature(p Payment) error
}
