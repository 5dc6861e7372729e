package channel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"pgregory.net/rapid"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/business"
	"github.com/vasp-network/offchain/executor"
	"github.com/vasp-network/offchain/payment"
	"github.com/vasp-network/offchain/processor"
	"github.com/vasp-network/offchain/status"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

func TestDetermineRoleIsAsymmetric(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := address.New(rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(rt, "a"))
		b := address.New(rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(rt, "b"))
		if a.Equal(b) {
			return
		}
		require.NotEqual(t, DetermineRole(a, b), DetermineRole(b, a))
	})
}

// quietBusiness never volunteers any follow-up action, keeping the
// asynchronous evolution goroutine processor launches a no-op, so
// channel-protocol tests can assert on synchronous state without racing
// background business evaluation.
type quietBusiness struct{}

func (quietBusiness) IsSender(p business.Payment) bool   { return false }
func (quietBusiness) IsRecipient(p business.Payment) bool { return false }
func (quietBusiness) CheckAccountExistence(p business.Payment) error { return nil }
func (quietBusiness) NextKYCLevelToRequest(p business.Payment) (status.Status, error) {
	return status.None, nil
}
func (quietBusiness) NextKYCToProvide(p business.Payment) (map[status.Status]struct{}, error) {
	return nil, nil
}
func (quietBusiness) GetExtendedKYC(p business.Payment) (business.KYCMaterial, error) {
	return business.KYCMaterial{}, &business.ForceAbort{Reason: "not used in these tests"}
}
func (quietBusiness) GetRecipientSignature(p business.Payment) (string, error) { return "", nil }
func (quietBusiness) ReadyForSettlement(p business.Payment) (bool, error)      { return false, nil }
func (quietBusiness) HasSettled(p business.Payment) (bool, error)              { return false, nil }
func (quietBusiness) ValidateRecipientSignature(p business.Payment) error      { return nil }

// recordingTransport captures everything sent without delivering it;
// tests deliver manually to control timing. Guarded by a mutex since
// drainPendingLocked sends responses from a background goroutine.
type recordingTransport struct {
	mu        sync.Mutex
	requests  []Request
	responses []Response
}

func (t *recordingTransport) SendRequest(ctx context.Context, to address.Address, req Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	return nil
}

func (t *recordingTransport) SendResponse(ctx context.Context, to address.Address, resp Response) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses = append(t.responses, resp)
	return nil
}

func (t *recordingTransport) responseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.responses)
}

func memDB(t *testing.T) *leveldb.DB {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	return db
}

func newTestChannel(t *testing.T, me, other address.Address) (*Channel, *recordingTransport) {
	t.Helper()
	st := store.New()
	var sealKey [32]byte
	proc := processor.New(me, quietBusiness{}, memDB(t), sealKey)
	ex := executor.New(me, other, st, proc)
	transport := &recordingTransport{}
	ch := New(me, other, ex, transport, nil)
	proc.SetSubmitter(ch)
	return ch, transport
}

func makePaymentCmd(origin, sender, receiver address.Address) *payment.Command {
	newVer := vid.MustNew()
	refID := origin.String() + "_t1"
	action := payment.Action{Amount: 500, Currency: "USD", Action: "charge"}
	return payment.NewCreate(newVer, origin, payment.NewActor(sender, "s"), payment.NewActor(receiver, "r"), refID, "", "test", action)
}

func TestProposeAndHandleHappyPath(t *testing.T) {
	addrA := address.New([]byte{0xAA})
	addrB := address.New([]byte{0xBB})

	a, transportA := newTestChannel(t, addrA, addrB)
	b, transportB := newTestChannel(t, addrB, addrA)

	cmd := makePaymentCmd(addrA, addrA, addrB)
	require.NoError(t, a.ProposeAndSend(cmd))
	require.Len(t, transportA.requests, 1)

	req := transportA.requests[0]
	b.HandleRequest(context.Background(), addrA, req)
	require.Len(t, transportB.responses, 1)

	resp := transportB.responses[0]
	require.True(t, resp.Success)
	require.NoError(t, a.HandleResponse(resp))

	require.False(t, a.WouldRetransmit())
}

func TestHandleRequestRetransmitIsIdempotent(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	b, transportB := newTestChannel(t, addrB, addrA)

	cmd := makePaymentCmd(addrA, addrA, addrB)
	req := Request{Seq: 1, Command: cmd}

	b.HandleRequest(context.Background(), addrA, req)
	require.Len(t, transportB.responses, 1)
	first := transportB.responses[0]

	b.HandleRequest(context.Background(), addrA, req)
	require.Len(t, transportB.responses, 2)
	require.Equal(t, first, transportB.responses[1])

	require.Equal(t, uint64(1), b.otherNextSeq)
}

func TestHandleRequestConflictingSameSeqIsRejected(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	b, transportB := newTestChannel(t, addrB, addrA)

	cmd1 := makePaymentCmd(addrA, addrA, addrB)
	cmd2 := makePaymentCmd(addrA, addrA, addrB)

	b.HandleRequest(context.Background(), addrA, Request{Seq: 1, Command: cmd1})
	b.HandleRequest(context.Background(), addrA, Request{Seq: 1, Command: cmd2})

	require.Len(t, transportB.responses, 2)
	second := transportB.responses[1]
	require.False(t, second.Success)
	require.NotNil(t, second.Error)
	require.True(t, second.Error.ProtocolError)
	require.Equal(t, string(CodeConflict), second.Error.Code)
}

func TestHandleRequestFutureSeqIsMissing(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	b, transportB := newTestChannel(t, addrB, addrA)

	cmd := makePaymentCmd(addrA, addrA, addrB)
	b.HandleRequest(context.Background(), addrA, Request{Seq: 2, Command: cmd})

	require.Len(t, transportB.responses, 1)
	resp := transportB.responses[0]
	require.False(t, resp.Success)
	require.True(t, resp.Error.ProtocolError)
	require.Equal(t, string(CodeMissing), resp.Error.Code)
}

func TestHandleResponseIsIdempotent(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	a, _ := newTestChannel(t, addrA, addrB)

	cmd := makePaymentCmd(addrA, addrA, addrB)
	require.NoError(t, a.ProposeAndSend(cmd))

	pos := uint64(0)
	resp := Response{Seq: 1, CommandSeq: &pos, Success: true}
	require.NoError(t, a.HandleResponse(resp))
	require.NoError(t, a.HandleResponse(resp))
}

func TestHandleResponseOutOfOrderIsRejected(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	a, _ := newTestChannel(t, addrA, addrB)

	cmd1 := makePaymentCmd(addrA, addrA, addrB)
	cmd2 := makePaymentCmd(addrA, addrA, addrB)
	require.NoError(t, a.ProposeAndSend(cmd1))
	require.NoError(t, a.ProposeAndSend(cmd2))

	pos := uint64(1)
	resp := Response{Seq: 2, CommandSeq: &pos, Success: true}
	require.Error(t, a.HandleResponse(resp))
}

func TestClientProposalLeavesCommandSeqUnassigned(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	a, transportA := newTestChannel(t, addrA, addrB)
	require.Equal(t, Client, a.Role())

	cmd := makePaymentCmd(addrA, addrA, addrB)
	require.NoError(t, a.ProposeAndSend(cmd))
	require.Len(t, transportA.requests, 1)
	require.Nil(t, transportA.requests[0].CommandSeq)
	require.Equal(t, uint64(0), a.ex.NextSeq())

	pos := uint64(0)
	resp := Response{Seq: 1, CommandSeq: &pos, Success: true}
	require.NoError(t, a.HandleResponse(resp))
	require.Equal(t, uint64(1), a.ex.NextSeq())
}

func TestServerProposalAssignsCommandSeqImmediately(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	b, transportB := newTestChannel(t, addrB, addrA)
	require.Equal(t, Server, b.Role())

	cmd := makePaymentCmd(addrB, addrB, addrA)
	require.NoError(t, b.ProposeAndSend(cmd))
	require.Len(t, transportB.requests, 1)
	require.NotNil(t, transportB.requests[0].CommandSeq)
	require.Equal(t, uint64(0), *transportB.requests[0].CommandSeq)
	require.Equal(t, uint64(1), b.ex.NextSeq())
}

func TestHandleRequestRejectsClientAssignedCommandSeq(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	b, transportB := newTestChannel(t, addrB, addrA)
	require.Equal(t, Server, b.Role())

	pos := uint64(0)
	cmd := makePaymentCmd(addrA, addrA, addrB)
	req := Request{Seq: 1, CommandSeq: &pos, Command: cmd}

	b.HandleRequest(context.Background(), addrA, req)
	require.Len(t, transportB.responses, 1)
	resp := transportB.responses[0]
	require.False(t, resp.Success)
	require.True(t, resp.Error.ProtocolError)
	require.Equal(t, string(CodeMalformed), resp.Error.Code)
}

func TestHandleRequestClientWaitsForUnseenSlot(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	a, transportA := newTestChannel(t, addrA, addrB)
	require.Equal(t, Client, a.Role())

	posHigh := uint64(5)
	cmd := makePaymentCmd(addrB, addrB, addrA)
	req := Request{Seq: 1, CommandSeq: &posHigh, Command: cmd}

	a.HandleRequest(context.Background(), addrB, req)
	require.Len(t, transportA.responses, 1)
	resp := transportA.responses[0]
	require.False(t, resp.Success)
	require.True(t, resp.Error.ProtocolError)
	require.Equal(t, string(CodeWait), resp.Error.Code)
}

func TestServerDefersPeerRequestBehindOwnOutstandingProposal(t *testing.T) {
	addrA := address.New([]byte{1})
	addrB := address.New([]byte{2})
	s, transportS := newTestChannel(t, addrB, addrA)
	require.Equal(t, Server, s.Role())

	ownCmd := makePaymentCmd(addrB, addrB, addrA)
	require.NoError(t, s.ProposeAndSend(ownCmd))
	require.Equal(t, uint64(1), s.outstandingOwnSeq())

	peerCmd := makePaymentCmd(addrA, addrA, addrB)
	s.HandleRequest(context.Background(), addrA, Request{Seq: 1, Command: peerCmd})

	// Server race (spec §8 scenario 4): the peer's request lands on the
	// same slot as our own unconfirmed proposal, so it must be deferred
	// rather than answered immediately.
	require.Equal(t, 0, transportS.responseCount())
	require.Len(t, s.pendingRequests, 1)
	require.Equal(t, uint64(0), s.otherNextSeq)

	pos := uint64(0)
	ownResp := Response{Seq: 1, CommandSeq: &pos, Success: true}
	require.NoError(t, s.HandleResponse(ownResp))

	// Resolving our own proposal drains the deferred peer request.
	require.Empty(t, s.pendingRequests)
	require.Equal(t, uint64(1), s.otherNextSeq)
}
