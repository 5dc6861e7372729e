package processor

import (
	"github.com/decred/dcrd/lru"

	"github.com/vasp-network/offchain/vid"
)

// defaultRefIndexCapacity bounds the reference_id -> latest-version
// index so a processor handling many channels over a long lifetime
// doesn't grow it unboundedly. Eviction only drops the index entry,
// never the underlying store entry: an evicted reference_id simply
// reports not found from Lookup, and no other lookup path exists.
const defaultRefIndexCapacity = 4096

// refIndex maps reference_id to the latest known VersionID for that
// payment (spec §4.5: "update reference_id -> latest_payment index").
type refIndex struct {
	m lru.Map[string, vid.VersionID]
}

func newRefIndex() *refIndex {
	return &refIndex{m: lru.NewMap[string, vid.VersionID](defaultRefIndexCapacity)}
}

func (r *refIndex) Set(refID string, v vid.VersionID) {
	r.m.Put(refID, v)
}

func (r *refIndex) Get(refID string) (vid.VersionID, bool) {
	return r.m.Get(refID)
}
