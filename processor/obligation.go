package processor

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/payment"
)

// obligationKeyPrefix namespaces obligation-log keys within the shared
// leveldb handle (which may also hold a channel's store snapshot).
var obligationKeyPrefix = []byte("obligation/")

func obligationKey(peer address.Address, seq uint64) []byte {
	key := make([]byte, 0, len(obligationKeyPrefix)+len(peer)+8)
	key = append(key, obligationKeyPrefix...)
	key = append(key, peer...)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return append(key, seqBuf[:]...)
}

// obligationLog is the processor-wide, crash-recoverable record of
// commands that own downstream work until that work's completion (spec
// §4.5, §11). Entries are sealed with nacl/secretbox before being
// written, since an obligation carries a full pending PaymentCommand
// including KYC data.
type obligationLog struct {
	db     *leveldb.DB
	sealKey [32]byte
}

func newObligationLog(db *leveldb.DB, sealKey [32]byte) *obligationLog {
	return &obligationLog{db: db, sealKey: sealKey}
}

func (o *obligationLog) seal(cmd *payment.Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("obligation: encoding: %w", err)
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("obligation: generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], buf.Bytes(), &nonce, &o.sealKey)
	return sealed, nil
}

func (o *obligationLog) unseal(sealed []byte) (*payment.Command, error) {
	if len(sealed) < 24 {
		return nil, fmt.Errorf("obligation: sealed record too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &o.sealKey)
	if !ok {
		return nil, fmt.Errorf("obligation: decryption failed")
	}
	var cmd payment.Command
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&cmd); err != nil {
		return nil, fmt.Errorf("obligation: decoding: %w", err)
	}
	return &cmd, nil
}

// Put atomically creates the obligation for (peer, seq). Called in the
// same step as process_command(success) (spec §4.5).
func (o *obligationLog) Put(peer address.Address, seq uint64, cmd *payment.Command) error {
	sealed, err := o.seal(cmd)
	if err != nil {
		return err
	}
	return o.db.Put(obligationKey(peer, seq), sealed, nil)
}

// Delete releases the obligation, meant to be called atomically with
// emitting the follow-up request (or with the determination that no
// follow-up is needed).
func (o *obligationLog) Delete(peer address.Address, seq uint64) error {
	return o.db.Delete(obligationKey(peer, seq), nil)
}

// obligationEntry pairs a surviving obligation with its owning peer and
// seq, for replay.
type obligationEntry struct {
	Peer address.Address
	Seq  uint64
	Cmd  *payment.Command
}

// All returns every surviving obligation, for retry_process_commands on
// startup (spec §4.5, §11).
func (o *obligationLog) All() ([]obligationEntry, error) {
	iter := o.db.NewIterator(util.BytesPrefix(obligationKeyPrefix), nil)
	defer iter.Release()

	var out []obligationEntry
	for iter.Next() {
		key := iter.Key()
		rest := key[len(obligationKeyPrefix):]
		if len(rest) < 8 {
			continue
		}
		peerLen := len(rest) - 8
		peer := address.New(rest[:peerLen])
		seq := binary.BigEndian.Uint64(rest[peerLen:])

		sealedCopy := make([]byte, len(iter.Value()))
		copy(sealedCopy, iter.Value())
		cmd, err := o.unseal(sealedCopy)
		if err != nil {
			return nil, fmt.Errorf("obligation: replaying (%s,%d): %w", peer, seq, err)
		}
		out = append(out, obligationEntry{Peer: peer, Seq: seq, Cmd: cmd})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("obligation: iterating: %w", err)
	}
	return out, nil
}
