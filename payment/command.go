package payment

import (
	"fmt"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/executor"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

// Command is the PaymentCommand: a payload carrying the diff sufficient
// to reconstruct a new Object given its (optional) dependency (spec
// §3: "Command ... Payload: the payment diff sufficient to reconstruct
// the new PaymentObject given the dependency.").
//
// By convention the fields below already hold the *complete* desired
// new state (not a delta); GetObject is purely mechanical. Whoever
// builds a Command (the local proposer, or package processor reading
// an inbound request) is responsible for carrying forward every
// write-once field unchanged from the dependency — check_command
// (package processor) verifies that for peer-originated commands before
// the executor calls GetObject; commands this side originated are not
// re-checked.
type Command struct {
	Dep    *vid.VersionID
	NewVer vid.VersionID

	OriginAddr address.Address
	commit     executor.CommitStatus

	Sender       Actor
	Receiver     Actor
	ReferenceID  string
	OriginalRef  string
	Description  string
	Action       Action
	RecipientSig string
}

var _ executor.Command = (*Command)(nil)

// NewCreate builds a Command with zero dependencies: a fresh payment
// proposal.
func NewCreate(newVer vid.VersionID, origin address.Address, sender, receiver Actor, refID, origRefID, description string, action Action) *Command {
	return &Command{
		NewVer:      newVer,
		OriginAddr:  origin,
		Sender:      sender,
		Receiver:    receiver,
		ReferenceID: refID,
		OriginalRef: origRefID,
		Description: description,
		Action:      action,
	}
}

// NewUpdate builds a Command with one dependency: base is the version
// this update logically extends. sender/receiver/recipientSig are the
// complete desired new state.
func NewUpdate(dep vid.VersionID, newVer vid.VersionID, origin address.Address, base *Object, sender, receiver Actor, recipientSig string) *Command {
	return &Command{
		Dep:          &dep,
		NewVer:       newVer,
		OriginAddr:   origin,
		Sender:       sender,
		Receiver:     receiver,
		ReferenceID:  base.ReferenceID,
		OriginalRef:  base.OriginalRef,
		Description:  base.Description,
		Action:       base.Action,
		RecipientSig: recipientSig,
	}
}

func (c *Command) Dependencies() []vid.VersionID {
	if c.Dep == nil {
		return nil
	}
	return []vid.VersionID{*c.Dep}
}

func (c *Command) Creates() []vid.VersionID { return []vid.VersionID{c.NewVer} }

func (c *Command) Origin() address.Address { return c.OriginAddr }

func (c *Command) CommitStatus() executor.CommitStatus { return c.commit }

func (c *Command) SetCommitStatus(s executor.CommitStatus) { c.commit = s }

// GetObject mechanically builds the new Object. Semantic validation
// (write-once fields unchanged, valid status transition, reference_id
// format, signatures) has already happened in CheckCommand; this never
// re-validates, only constructs.
func (c *Command) GetObject(v vid.VersionID, st *store.Store) (store.SharedObject, error) {
	if v != c.NewVer {
		return nil, fmt.Errorf("payment: asked to instantiate %s, command creates %s", v, c.NewVer)
	}

	var previous []vid.VersionID
	if c.Dep != nil {
		if _, err := st.Get(*c.Dep); err != nil {
			return nil, fmt.Errorf("payment: dependency %s missing from store: %w", *c.Dep, err)
		}
		previous = []vid.VersionID{*c.Dep}
	}

	return &Object{
		version:      v,
		previous:     previous,
		Sender:       c.Sender,
		Receiver:     c.Receiver,
		ReferenceID:  c.ReferenceID,
		OriginalRef:  c.OriginalRef,
		Description:  c.Description,
		Action:       c.Action,
		RecipientSig: c.RecipientSig,
	}, nil
}
