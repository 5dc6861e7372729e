package store

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// snapshotKey is the single leveldb key the whole store snapshot is kept
// under. The store is small enough (one channel's live objects) that a
// single atomic put/get round-trip is simpler and safer than per-version
// keys that could be torn across a crash.
var snapshotKey = []byte("store/snapshot")

// Persister persists a Store's Snapshot to a leveldb database supplied
// by the embedder (spec §6: "Persisted state per channel ... All
// persistable as a single atomic unit per mutation batch.").
//
// Concrete SharedObject implementations must be registered with
// encoding/gob (via gob.Register) before Save/Load are used; package
// payment does this in its init().
type Persister struct {
	db *leveldb.DB
}

// NewPersister wraps an already-open leveldb handle.
func NewPersister(db *leveldb.DB) *Persister {
	return &Persister{db: db}
}

// Save atomically writes the store's snapshot.
func (p *Persister) Save(snaps []Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snaps); err != nil {
		return fmt.Errorf("store: encoding snapshot: %w", err)
	}
	if err := p.db.Put(snapshotKey, buf.Bytes(), nil); err != nil {
		return fmt.Errorf("store: writing snapshot: %w", err)
	}
	return nil
}

// Load reads back the most recently saved snapshot, or an empty one if
// nothing has ever been saved.
func (p *Persister) Load() ([]Snapshot, error) {
	raw, err := p.db.Get(snapshotKey, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading snapshot: %w", err)
	}
	var snaps []Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snaps); err != nil {
		return nil, fmt.Errorf("store: decoding snapshot: %w", err)
	}
	return snaps, nil
}
