// Command vaspsim is a two-party loopback smoke test: it wires up two
// in-process VASPs, each with its own store/executor/processor/channel
// stack and an auto-approving business policy, and drives one payment
// from proposal through settlement. It is not a deployable VASP node —
// real transport, real KYC policy, and a real signing key are each a
// single-package swap away (spec §12).
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/business"
	"github.com/vasp-network/offchain/channel"
	"github.com/vasp-network/offchain/config"
	"github.com/vasp-network/offchain/executor"
	"github.com/vasp-network/offchain/logging"
	"github.com/vasp-network/offchain/payment"
	"github.com/vasp-network/offchain/processor"
	"github.com/vasp-network/offchain/signing"
	"github.com/vasp-network/offchain/status"
	"github.com/vasp-network/offchain/store"
	"github.com/vasp-network/offchain/vid"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("vaspsim: loading config: %v", err)
	}
	if err := logging.InitLogRotator(cfg.LogFile(), cfg.MaxLogRolls(), cfg.ParsedLogLevel()); err != nil {
		log.Fatalf("vaspsim: %v", err)
	}
	defer logging.Close()

	vaspA, err := newVASP(cfg, "a")
	if err != nil {
		log.Fatalf("vaspsim: standing up VASP A: %v", err)
	}
	vaspB, err := newVASP(cfg, "b")
	if err != nil {
		log.Fatalf("vaspsim: standing up VASP B: %v", err)
	}

	wire(vaspA, vaspB)
	wire(vaspB, vaspA)
	vaspA.transport.peer = vaspB
	vaspB.transport.peer = vaspA

	newVer := vid.MustNew()
	refID := vaspA.address.String() + "_sim-0001"
	sender := payment.NewActor(vaspA.address, "alice")
	receiver := payment.NewActor(vaspB.address, "bob")
	action := payment.Action{Amount: 4200, Currency: "USD", Action: "charge", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	cmd := payment.NewCreate(newVer, vaspA.address, sender, receiver, refID, "", "simulated off-chain payment", action)

	if err := vaspA.channel.ProposeAndSend(cmd); err != nil {
		log.Fatalf("vaspsim: proposing payment: %v", err)
	}

	// Business evolution runs on its own goroutines (spec §4.5); give the
	// loopback a few rounds to converge before printing final state.
	time.Sleep(500 * time.Millisecond)

	latest, _ := vaspA.proc.Lookup(refID)
	var obj *payment.Object
	for _, sn := range vaspA.st.Snapshot() {
		if sn.Version.String() == latest {
			obj, _ = sn.Object.(*payment.Object)
		}
	}
	if obj == nil {
		log.Fatalf("vaspsim: payment %s vanished from A's store", refID)
	}
	fmt.Printf("payment %s: sender=%s receiver=%s\n", obj.ReferenceID, obj.Sender.Status, obj.Receiver.Status)
}

// vasp bundles one party's full stack.
type vasp struct {
	address   address.Address
	db        *leveldb.DB
	st        *store.Store
	ex        *executor.Executor
	proc      *processor.Processor
	channel   *channel.Channel
	transport *loopbackTransport
}

func newVASP(cfg *config.Config, name string) (*vasp, error) {
	addrRaw := make([]byte, 20)
	if _, err := rand.Read(addrRaw); err != nil {
		return nil, fmt.Errorf("generating address: %w", err)
	}
	addr := address.New(addrRaw)

	dbPath := filepath.Join(cfg.DataDir, name)
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb at %s: %w", dbPath, err)
	}

	st := store.New()

	var sealKey [32]byte
	if _, err := rand.Read(sealKey[:]); err != nil {
		return nil, fmt.Errorf("generating seal key: %w", err)
	}

	biz := &autoApproveBusiness{}
	proc := processor.New(addr, biz, db, sealKey)

	v := &vasp{address: addr, db: db, st: st, proc: proc}
	return v, nil
}

// wire finishes constructing from's executor/channel/transport now that
// the counterparty's address is known, and sets the processor's
// submitter so business-driven follow-ups can be proposed and sent
// automatically. Must be called for both directions before the
// transports' peers are set.
func wire(from, to *vasp) {
	ex := executor.New(from.address, to.address, from.st, from.proc)
	from.ex = ex
	transport := &loopbackTransport{}
	from.transport = transport
	ch := channel.New(from.address, to.address, ex, transport, nil)
	from.channel = ch
	from.proc.SetSubmitter(ch)
}

// loopbackTransport delivers directly into the counterparty's Channel,
// standing in for a real network client (spec §6, §12). peer is set
// once both VASPs exist, since each needs the other to construct its
// own Channel first.
type loopbackTransport struct {
	peer *vasp
}

func (t *loopbackTransport) SendRequest(ctx context.Context, to address.Address, req channel.Request) error {
	if t.peer == nil {
		return fmt.Errorf("loopback transport: peer not wired")
	}
	go t.peer.channel.HandleRequest(ctx, to, req)
	return nil
}

func (t *loopbackTransport) SendResponse(ctx context.Context, to address.Address, resp channel.Response) error {
	if t.peer == nil {
		return fmt.Errorf("loopback transport: peer not wired")
	}
	go func() {
		if err := t.peer.channel.HandleResponse(resp); err != nil {
			log.Printf("vaspsim: %s handling response: %v", to, err)
		}
	}()
	return nil
}

var _ channel.Transport = (*loopbackTransport)(nil)

// autoApproveBusiness is the simplest possible business.Context: every
// KYC/settlement decision resolves immediately and favorably, so the
// simulated payment reaches Settled without any human in the loop.
type autoApproveBusiness struct{}

func (b *autoApproveBusiness) IsSender(p business.Payment) bool   { return false }
func (b *autoApproveBusiness) IsRecipient(p business.Payment) bool { return false }

func (b *autoApproveBusiness) CheckAccountExistence(p business.Payment) error { return nil }

func (b *autoApproveBusiness) NextKYCLevelToRequest(p business.Payment) (status.Status, error) {
	return status.NeedsKYCData, nil
}

func (b *autoApproveBusiness) NextKYCToProvide(p business.Payment) (map[status.Status]struct{}, error) {
	return map[status.Status]struct{}{
		status.NeedsKYCData:            {},
		status.NeedsRecipientSignature: {},
	}, nil
}

func (b *autoApproveBusiness) GetExtendedKYC(p business.Payment) (business.KYCMaterial, error) {
	return business.KYCMaterial{Data: "name=Simulated Corp", Signature: "sig", Certificate: "cert"}, nil
}

func (b *autoApproveBusiness) GetRecipientSignature(p business.Payment) (string, error) {
	return signing.Sign(mustDemoKey(), []byte("recipient-signature")), nil
}

func (b *autoApproveBusiness) ReadyForSettlement(p business.Payment) (bool, error) {
	return true, nil
}

func (b *autoApproveBusiness) HasSettled(p business.Payment) (bool, error) {
	return true, nil
}

func (b *autoApproveBusiness) ValidateRecipientSignature(p business.Payment) error {
	return nil
}

var demoKey *btcec.PrivateKey

func mustDemoKey() *btcec.PrivateKey {
	if demoKey == nil {
		k, err := btcec.NewPrivateKey()
		if err != nil {
			panic(err)
		}
		demoKey = k
	}
	return demoKey
}
