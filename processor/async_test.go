package processor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/business"
	"github.com/vasp-network/offchain/payment"
	"github.com/vasp-network/offchain/status"
)

// scriptedBusiness is a business.Context double whose return values are
// configured per test, unlike stubBusiness's fixed responses — needed to
// drive paymentProcessAsync through specific NextKYCLevelToRequest /
// NextKYCToProvide sequences.
type scriptedBusiness struct {
	nextKYCLevel    status.Status
	nextKYCLevelErr error
	toProvide       map[status.Status]struct{}
	toProvideErr    error
	readyForSettle  bool
}

func (scriptedBusiness) IsSender(p business.Payment) bool      { return false }
func (scriptedBusiness) IsRecipient(p business.Payment) bool    { return false }
func (scriptedBusiness) CheckAccountExistence(p business.Payment) error { return nil }

func (b scriptedBusiness) NextKYCLevelToRequest(p business.Payment) (status.Status, error) {
	return b.nextKYCLevel, b.nextKYCLevelErr
}

func (b scriptedBusiness) NextKYCToProvide(p business.Payment) (map[status.Status]struct{}, error) {
	return b.toProvide, b.toProvideErr
}

func (scriptedBusiness) GetExtendedKYC(p business.Payment) (business.KYCMaterial, error) {
	return business.KYCMaterial{}, nil
}
func (scriptedBusiness) GetRecipientSignature(p business.Payment) (string, error) { return "", nil }

func (b scriptedBusiness) ReadyForSettlement(p business.Payment) (bool, error) {
	return b.readyForSettle, nil
}
func (scriptedBusiness) HasSettled(p business.Payment) (bool, error)         { return false, nil }
func (scriptedBusiness) ValidateRecipientSignature(p business.Payment) error { return nil }

func newTestPaymentObject(sender, receiver address.Address) *payment.Object {
	return &payment.Object{
		Sender:      payment.NewActor(sender, "s"),
		Receiver:    payment.NewActor(receiver, "r"),
		ReferenceID: sender.String() + "_async",
		Action:      payment.Action{Amount: 10, Currency: "USD"},
	}
}

// TestPaymentProcessAsyncAdvancesStatusFromNextKYCLevel mirrors the
// original source's test_payment_process_receiver_new_payment: the
// business layer names needs_kyc_data as the level to request even
// though it has no KYC material to attach this round, and that level
// must still land on the actor's status.
func TestPaymentProcessAsyncAdvancesStatusFromNextKYCLevel(t *testing.T) {
	me := address.New([]byte{1})
	other := address.New([]byte{2})
	var sealKey [32]byte

	biz := scriptedBusiness{
		nextKYCLevel: status.NeedsKYCData,
		toProvide:    map[status.Status]struct{}{},
	}
	p := New(me, biz, memDB(t), sealKey)

	obj := newTestPaymentObject(other, me)
	updated, err := p.paymentProcessAsync(obj)
	require.NoError(t, err)
	require.Equal(t, status.NeedsKYCData, updated.Receiver.Status)
}

// TestPaymentProcessAsyncStatusAdvanceSurvivesInterrupt mirrors
// test_payment_process_interrupt_resume: next_kyc_level_to_request
// fast-forwards the status to ready_for_settlement, and that advance
// must survive a subsequent AsyncInterrupt raised by NextKYCToProvide
// in the very same call.
func TestPaymentProcessAsyncStatusAdvanceSurvivesInterrupt(t *testing.T) {
	me := address.New([]byte{1})
	other := address.New([]byte{2})
	var sealKey [32]byte

	biz := scriptedBusiness{
		nextKYCLevel: status.ReadyForSettlement,
		toProvideErr: &business.AsyncInterrupt{CallbackID: "kyc-decision"},
	}
	p := New(me, biz, memDB(t), sealKey)

	obj := newTestPaymentObject(other, me)
	updated, err := p.paymentProcessAsync(obj)
	require.Error(t, err)
	require.IsType(t, &business.AsyncInterrupt{}, err)
	require.NotNil(t, updated)
	require.Equal(t, status.ReadyForSettlement, updated.Receiver.Status)
}
