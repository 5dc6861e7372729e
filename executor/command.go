// Package executor implements the ProtocolExecutor: a dependency-tracked,
// version-addressed sequencer over a VersionedObjectStore, with
// "potentially live" vs "actually live" speculative semantics (spec
// §3, §4.2).
//
// Grounded on covenants/vault/vault.go's spending-policy model: a vault
// template gated a transition (spend) on satisfying a locking condition
// (signature threshold, time lock) before releasing funds. Here the
// gating condition is dependency liveness instead of a script predicate,
// and "releasing funds" becomes "destroying the consumed version and
// instantiating the created one".
package executor

import (
	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

// CommitStatus is a Command's current outcome in the shared sequence.
type CommitStatus int

const (
	Pending CommitStatus = iota
	Success
	Fail
)

func (c CommitStatus) String() string {
	switch c {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Command is the generic contract the executor sequences. Concrete
// payloads (package payment's PaymentCommand) implement it; the
// executor never inspects payload semantics beyond dependencies,
// creates, origin and GetObject.
type Command interface {
	// Dependencies lists the versions this command consumes: 0 or 1 for
	// payment commands, 0 meaning a fresh creation.
	Dependencies() []vid.VersionID
	// Creates lists the versions this command produces: exactly 1 for
	// payment commands.
	Creates() []vid.VersionID
	// Origin is the address of the VASP that proposed this command.
	Origin() address.Address
	// CommitStatus is this command's outcome so far.
	CommitStatus() CommitStatus
	// SetCommitStatus records an outcome; called exactly once per
	// transition (pending->success or pending->fail).
	SetCommitStatus(CommitStatus)
	// GetObject instantiates the object for a newly created version v,
	// given the dependency (if any) already resident in s. A panic here
	// is converted to an *Error by the executor (spec §4.2: "Any panic
	// inside get_object is reported as an executor error.").
	GetObject(v vid.VersionID, s *store.Store) (store.SharedObject, error)
}

// Context is the read-only view of channel state the Processor needs to
// validate and react to commands, without the executor or the payload
// package depending on the channel package (spec §9: "prefer explicit
// identifiers ... over bidirectional ownership").
type Context interface {
	MyAddress() address.Address
	OtherAddress() address.Address
	Store() *store.Store
}

// Processor is the semantic layer the executor defers to: fast
// synchronous checks at sequencing time, and commit notification
// afterwards (spec §4.2 step 3, §4.5).
type Processor interface {
	// CheckCommand runs local, synchronous, semantic validation. It must
	// not mutate ctx or cmd.
	CheckCommand(ctx Context, cmd Command) error
	// ProcessCommand is invoked once per command, exactly when its
	// commit status transitions away from Pending.
	ProcessCommand(ctx Context, cmd Command, seqNo uint64, success bool, cmdErr error)
}
