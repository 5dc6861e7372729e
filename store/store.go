// Package store implements the VersionedObjectStore: a map from version
// identifiers to shared objects, each carrying a potentially_live /
// actually_live liveness pair (spec §3, §4.1).
//
// Grounded on settlement/claimable/claimable.go's ClaimableState, which
// tracked balances in a map keyed by an opaque ID alongside per-entry
// state; here the map entries are versioned objects and the per-entry
// state is the liveness flag pair instead of a claim predicate.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vasp-network/offchain/vid"
)

// SharedObject is the base behavior every versioned entity implements.
type SharedObject interface {
	// Version is this object's own identifier. Immutable after creation.
	Version() vid.VersionID
	// PreviousVersions lists the versions this one logically extends:
	// empty for a root creation, length 1 for an update.
	PreviousVersions() []vid.VersionID
}

// entry is the store's bookkeeping record for one live version.
type entry struct {
	obj             SharedObject
	potentiallyLive bool
	actuallyLive    bool
}

// ErrNotFound is returned by Get, Flags, SetActuallyLive and
// ClearLiveness when the version isn't present.
var ErrNotFound = errors.New("store: version not found")

// Store is the VersionedObjectStore. It is safe for concurrent use,
// though in this design a single channel drives it from one goroutine
// at a time (spec §5).
type Store struct {
	mu      sync.RWMutex
	entries map[vid.VersionID]*entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[vid.VersionID]*entry)}
}

// Insert adds obj under its own version, initially potentially_live and
// not actually_live. Inserting over an existing version is an error: the
// store never silently overwrites a version, mirroring the channel's
// refusal to silently overwrite a conflicting request slot.
func (s *Store) Insert(obj SharedObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := obj.Version()
	if _, ok := s.entries[v]; ok {
		return fmt.Errorf("store: version %s already present", v)
	}
	s.entries[v] = &entry{obj: obj, potentiallyLive: true}
	return nil
}

// Get returns the object stored under v.
func (s *Store) Get(v vid.VersionID) (SharedObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[v]
	if !ok {
		return nil, ErrNotFound
	}
	return e.obj, nil
}

// Contains reports whether v is present.
func (s *Store) Contains(v vid.VersionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[v]
	return ok
}

// Remove deletes v from the store entirely. Used when a command
// consuming v is confirmed successful (spec §3: "A version is destroyed
// from the store when the command consuming it is confirmed
// successful.").
func (s *Store) Remove(v vid.VersionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, v)
}

// Flags reports the liveness pair for v.
func (s *Store) Flags(v vid.VersionID) (potentiallyLive, actuallyLive bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[v]
	if !ok {
		return false, false, ErrNotFound
	}
	return e.potentiallyLive, e.actuallyLive, nil
}

// SetActuallyLive marks v as confirmed successful (actually_live=true),
// keeping potentially_live set, per the invariant actually_live =>
// potentially_live.
func (s *Store) SetActuallyLive(v vid.VersionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[v]
	if !ok {
		return ErrNotFound
	}
	e.potentiallyLive = true
	e.actuallyLive = true
	return nil
}

// ClearLiveness unsets both flags for v without removing it — used on a
// dependency that a successful command consumed; callers typically
// follow this with Remove.
func (s *Store) ClearLiveness(v vid.VersionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[v]
	if !ok {
		return ErrNotFound
	}
	e.potentiallyLive = false
	e.actuallyLive = false
	return nil
}

// Snapshot returns every (version, potentially_live, actually_live)
// triple currently held, for persistence and for invariant checks.
type Snapshot struct {
	Version         vid.VersionID
	Object          SharedObject
	PotentiallyLive bool
	ActuallyLive    bool
}

func (s *Store) Snapshot() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.entries))
	for v, e := range s.entries {
		out = append(out, Snapshot{
			Version:         v,
			Object:          e.obj,
			PotentiallyLive: e.potentiallyLive,
			ActuallyLive:    e.actuallyLive,
		})
	}
	return out
}

// Restore rebuilds the store from a previously taken Snapshot, used when
// reloading after a crash (spec §4.1).
func Restore(snaps []Snapshot) *Store {
	s := New()
	for _, sn := range snaps {
		s.entries[sn.Version] = &entry{
			obj:             sn.Object,
			potentiallyLive: sn.PotentiallyLive,
			actuallyLive:    sn.ActuallyLive,
		}
	}
	return s
}
