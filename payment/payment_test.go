package payment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

func TestValidateReferenceID(t *testing.T) {
	origin := address.New([]byte{9, 9})
	require.NoError(t, ValidateReferenceID(origin.String()+"_abc", origin))
	require.Error(t, ValidateReferenceID("wrong-prefix_abc", origin))
	require.Error(t, ValidateReferenceID(origin.String()+"_", origin))
}

func TestKYCCompleteness(t *testing.T) {
	require.False(t, KYC{}.HasAny())
	require.False(t, KYC{}.IsComplete())

	partial := KYC{Data: "d"}
	require.True(t, partial.HasAny())
	require.False(t, partial.IsComplete())

	full := KYC{Data: "d", Signature: "s", Certificate: "c"}
	require.True(t, full.IsComplete())
}

func TestObjectSatisfiesSharedObjectAndPayment(t *testing.T) {
	sender := address.New([]byte{1})
	receiver := address.New([]byte{2})
	newVer := vid.MustNew()

	cmd := NewCreate(newVer, sender, NewActor(sender, "s1"), NewActor(receiver, "r1"), sender.String()+"_ref1", "", "test", Action{Amount: 100, Currency: "USD", Action: "charge"})
	obj, err := cmd.GetObject(newVer, store.New())
	require.NoError(t, err)

	paymentObj := obj.(*Object)
	require.Equal(t, newVer, paymentObj.Version())
	require.Empty(t, paymentObj.PreviousVersions())
	require.True(t, paymentObj.IsSender([]byte(sender)))
	require.False(t, paymentObj.IsSender([]byte(receiver)))
	require.True(t, paymentObj.IsRecipient([]byte(receiver)))
}

func TestUpdateCarriesForwardDependency(t *testing.T) {
	sender := address.New([]byte{1})
	receiver := address.New([]byte{2})
	root := vid.MustNew()

	st := store.New()
	base := &Object{Sender: NewActor(sender, "s1"), Receiver: NewActor(receiver, "r1"), ReferenceID: sender.String() + "_ref1"}
	require.NoError(t, st.Insert(&objectWithVersion{base, root}))

	newVer := vid.MustNew()
	cmd := NewUpdate(root, newVer, sender, base, NewActor(sender, "s1"), NewActor(receiver, "r1"), "")
	obj, err := cmd.GetObject(newVer, st)
	require.NoError(t, err)

	updated := obj.(*Object)
	require.Equal(t, []vid.VersionID{root}, updated.PreviousVersions())
}

// objectWithVersion lets a test stand up a store entry for an *Object
// whose unexported version field can't otherwise be set outside the
// package.
type objectWithVersion struct {
	*Object
	v vid.VersionID
}

func (o *objectWithVersion) Version() vid.VersionID { return o.v }
