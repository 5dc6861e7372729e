package channel

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/vasp-network/offchain/address"
)

// channelSnapshotPrefix namespaces a channel's persisted request log
// within a leveldb handle shared with the store's own snapshot and the
// processor's obligation log.
var channelSnapshotPrefix = []byte("channel/")

func channelSnapshotKey(other address.Address) []byte {
	return append(append([]byte{}, channelSnapshotPrefix...), other...)
}

// Snapshot is a channel's persisted request log: its own requests with
// any responses received, the peer's requests, and both sequence
// counters. It does not hold the executor's command log, its
// last_confirmed counter, or the responses this side sent to the peer's
// requests; none of these are persisted by this package.
type Snapshot struct {
	MyRequests    []myRequestSnapshot
	OtherRequests []Request
	MyNextSeq     uint64
	OtherNextSeq  uint64
}

type myRequestSnapshot struct {
	Req  Request
	Resp *Response
}

// Persister persists a Channel's request log to leveldb.
type Persister struct {
	db *leveldb.DB
}

// NewPersister wraps an already-open leveldb handle.
func NewPersister(db *leveldb.DB) *Persister {
	return &Persister{db: db}
}

// Save writes c's request log under a key scoped to the other party's
// address, so one leveldb handle can back every channel a VASP runs.
func (p *Persister) Save(c *Channel) error {
	c.mu.Lock()
	snap := Snapshot{
		OtherRequests: make([]Request, len(c.otherRequests)),
		MyNextSeq:     c.myNextSeq,
		OtherNextSeq:  c.otherNextSeq,
	}
	for _, r := range c.myRequests {
		snap.MyRequests = append(snap.MyRequests, myRequestSnapshot{Req: r.req, Resp: r.resp})
	}
	for i, r := range c.otherRequests {
		snap.OtherRequests[i] = *r
	}
	other := c.otherAddress
	c.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("channel: encoding snapshot: %w", err)
	}
	if err := p.db.Put(channelSnapshotKey(other), buf.Bytes(), nil); err != nil {
		return fmt.Errorf("channel: writing snapshot: %w", err)
	}
	return nil
}

// Load reads back the most recently saved snapshot for the channel with
// other, or a zero Snapshot if none exists yet.
func (p *Persister) Load(other address.Address) (Snapshot, error) {
	raw, err := p.db.Get(channelSnapshotKey(other), nil)
	if err == leveldb.ErrNotFound {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("channel: reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("channel: decoding snapshot: %w", err)
	}
	return snap, nil
}

// Restore rebuilds a Channel's request-log state from a Snapshot, after
// its Executor has been built over the object store reloaded from the
// store's own Snapshot (store.Restore). The object store reload is the
// caller's responsibility since Executor construction needs it up front.
// Restored peer requests have no recorded response, so a retransmit of
// one of them gets no reply.
func (c *Channel) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.myRequests = make([]*myRequestRecord, len(snap.MyRequests))
	for i, r := range snap.MyRequests {
		req, resp := r.Req, r.Resp
		c.myRequests[i] = &myRequestRecord{req: req, resp: resp}
	}
	c.otherRequests = make([]*Request, len(snap.OtherRequests))
	c.otherResponses = make([]*Response, len(snap.OtherRequests))
	for i := range snap.OtherRequests {
		req := snap.OtherRequests[i]
		c.otherRequests[i] = &req
	}
	c.myNextSeq = snap.MyNextSeq
	c.otherNextSeq = snap.OtherNextSeq
}
