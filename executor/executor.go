package executor

import (
	"fmt"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

// log is the package-wide logger, defaulting to disabled until
// UseLogger is called (spec §9.1).
var log = btclog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(l btclog.Logger) { log = l }

// Error is raised for any failure the executor itself detects: a
// check_command rejection, a dependency-liveness failure, or a panic
// surfaced out of GetObject. It is distinct from the internal
// consistency errors that abort the whole channel (spec §7).
type Error struct {
	Cmd    Command
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("executor: cannot sequence command from %s: %s", e.Cmd.Origin(), e.Reason)
}

// Executor is the ProtocolExecutor (spec §4.2). One Executor backs one
// channel's object store and command log.
type Executor struct {
	myAddress     address.Address
	otherAddress  address.Address
	store         *store.Store
	processor     Processor
	log           []Command
	lastConfirmed uint64
}

// New returns an Executor over an (initially empty or reloaded) store.
func New(myAddress, otherAddress address.Address, st *store.Store, proc Processor) *Executor {
	return &Executor{
		myAddress:    myAddress,
		otherAddress: otherAddress,
		store:        st,
		processor:    proc,
	}
}

// MyAddress implements Context.
func (e *Executor) MyAddress() address.Address { return e.myAddress }

// OtherAddress implements Context.
func (e *Executor) OtherAddress() address.Address { return e.otherAddress }

// Store implements Context.
func (e *Executor) Store() *store.Store { return e.store }

// NextSeq is the current length of the command sequence.
func (e *Executor) NextSeq() uint64 { return uint64(len(e.log)) }

// LastConfirmed is the number of commands confirmed so far by
// set_success/set_fail, which is also the seq_no the next confirmation
// must name.
func (e *Executor) LastConfirmed() uint64 { return e.lastConfirmed }

// CommandAt returns the command sequenced at position pos, for
// audit/retransmit lookups.
func (e *Executor) CommandAt(pos uint64) (Command, bool) {
	if pos >= uint64(len(e.log)) {
		return nil, false
	}
	return e.log[pos], true
}

func (e *Executor) isOwn(cmd Command) bool {
	return cmd.Origin().Equal(e.myAddress)
}

// dependenciesLive checks the liveness predicate appropriate to the
// command's origin (spec §4.2 step 2): own commands require
// potentially_live dependencies (speculative pipelining of our own
// proposals), peer commands require actually_live dependencies (we
// never build on an unconfirmed peer proposal).
func (e *Executor) dependenciesLive(cmd Command) error {
	own := e.isOwn(cmd)
	for _, dep := range cmd.Dependencies() {
		potentially, actually, err := e.store.Flags(dep)
		if err != nil {
			return fmt.Errorf("dependency %s not found: %w", dep, err)
		}
		if own && !potentially {
			log.Debugf("executor: own command from %s rejected: dependency %s not potentially live", cmd.Origin(), dep)
			return fmt.Errorf("dependency %s is not potentially live", dep)
		}
		if !own && !actually {
			log.Debugf("executor: peer command from %s rejected: dependency %s not actually live", cmd.Origin(), dep)
			return fmt.Errorf("dependency %s is not actually live", dep)
		}
	}
	return nil
}

// SequenceNextCommand is sequence_next_command (spec §4.2). On success
// it returns the position the command occupies in the shared log.
func (e *Executor) SequenceNextCommand(cmd Command, strict bool) (uint64, error) {
	fail := func(reason string) (uint64, error) {
		execErr := &Error{Cmd: cmd, Reason: reason}
		if strict {
			return 0, execErr
		}
		cmd.SetCommitStatus(Pending)
		e.log = append(e.log, cmd)
		return uint64(len(e.log) - 1), execErr
	}

	if err := e.dependenciesLive(cmd); err != nil {
		return fail(err.Error())
	}
	if err := e.checkCommand(cmd); err != nil {
		return fail(err.Error())
	}

	created, err := e.instantiate(cmd)
	if err != nil {
		return fail(err.Error())
	}

	for _, obj := range created {
		if err := e.store.Insert(obj); err != nil {
			return fail(err.Error())
		}
	}

	cmd.SetCommitStatus(Pending)
	e.log = append(e.log, cmd)
	return uint64(len(e.log) - 1), nil
}

func (e *Executor) checkCommand(cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in check_command: %v\n%s", r, spew.Sdump(cmd))
			log.Warnf("executor: recovered panic in check_command for %s: %v", cmd.Origin(), r)
		}
	}()
	return e.processor.CheckCommand(e, cmd)
}

// instantiate calls cmd.GetObject for every created version, converting
// a panic into an error (spec §4.2: "Any panic inside get_object is
// reported as an executor error.").
func (e *Executor) instantiate(cmd Command) (objs []store.SharedObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			objs, err = nil, fmt.Errorf("panic in get_object: %v\n%s", r, spew.Sdump(cmd))
			log.Warnf("executor: recovered panic in get_object for %s: %v", cmd.Origin(), r)
		}
	}()
	for _, v := range cmd.Creates() {
		obj, getErr := cmd.GetObject(v, e.store)
		if getErr != nil {
			return nil, getErr
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// InternalError marks a violation of the executor's own ordering
// invariants: fatal to the channel, not to the process (spec §7).
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string { return "executor: internal consistency error: " + e.Reason }

func (e *Executor) requireNextConfirmation(seqNo uint64) error {
	if seqNo != e.lastConfirmed {
		err := &InternalError{Reason: fmt.Sprintf("set_success/set_fail called for seq %d, expected %d", seqNo, e.lastConfirmed)}
		log.Errorf("executor: %v", err)
		return err
	}
	if seqNo >= uint64(len(e.log)) {
		err := &InternalError{Reason: fmt.Sprintf("seq %d was never sequenced", seqNo)}
		log.Errorf("executor: %v", err)
		return err
	}
	return nil
}

// SetSuccess is set_success (spec §4.2). Idempotent on commit_status.
func (e *Executor) SetSuccess(seqNo uint64) error {
	// A repeat confirmation of a slot that already succeeded is a no-op.
	if seqNo < e.lastConfirmed && e.log[seqNo].CommitStatus() == Success {
		return nil
	}
	if err := e.requireNextConfirmation(seqNo); err != nil {
		return err
	}
	cmd := e.log[seqNo]
	if cmd.CommitStatus() == Success {
		return nil
	}
	if cmd.CommitStatus() == Fail {
		return &InternalError{Reason: fmt.Sprintf("seq %d already failed, cannot also succeed", seqNo)}
	}

	for _, dep := range cmd.Dependencies() {
		_ = e.store.ClearLiveness(dep)
		e.store.Remove(dep)
	}
	for _, v := range cmd.Creates() {
		if err := e.store.SetActuallyLive(v); err != nil {
			return &InternalError{Reason: fmt.Sprintf("created version %s missing from store at commit: %v", v, err)}
		}
	}

	cmd.SetCommitStatus(Success)
	e.lastConfirmed++
	e.processor.ProcessCommand(e, cmd, seqNo, true, nil)
	return nil
}

// SetFail is set_fail (spec §4.2): symmetric to SetSuccess but removes
// created versions entirely and never restores consumed dependencies —
// a failure never reverses a prior success.
func (e *Executor) SetFail(seqNo uint64, cmdErr error) error {
	// A repeat failure of a slot that already failed is a no-op.
	if seqNo < e.lastConfirmed && e.log[seqNo].CommitStatus() == Fail {
		return nil
	}
	if err := e.requireNextConfirmation(seqNo); err != nil {
		return err
	}
	cmd := e.log[seqNo]
	if cmd.CommitStatus() == Fail {
		return nil
	}
	if cmd.CommitStatus() == Success {
		return &InternalError{Reason: fmt.Sprintf("seq %d already succeeded, cannot also fail", seqNo)}
	}

	for _, v := range cmd.Creates() {
		e.store.Remove(v)
	}

	cmd.SetCommitStatus(Fail)
	e.lastConfirmed++
	e.processor.ProcessCommand(e, cmd, seqNo, false, cmdErr)
	return nil
}
