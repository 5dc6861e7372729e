package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vasp-network/offchain/vid"
)

type fakeObj struct {
	v    vid.VersionID
	prev []vid.VersionID
}

func (f *fakeObj) Version() vid.VersionID           { return f.v }
func (f *fakeObj) PreviousVersions() []vid.VersionID { return f.prev }

func TestInsertAndGet(t *testing.T) {
	s := New()
	v := vid.MustNew()
	obj := &fakeObj{v: v}
	require.NoError(t, s.Insert(obj))

	got, err := s.Get(v)
	require.NoError(t, err)
	require.Same(t, obj, got)

	potentially, actually, err := s.Flags(v)
	require.NoError(t, err)
	require.True(t, potentially)
	require.False(t, actually)
}

func TestInsertDuplicateRejected(t *testing.T) {
	s := New()
	v := vid.MustNew()
	require.NoError(t, s.Insert(&fakeObj{v: v}))
	require.Error(t, s.Insert(&fakeObj{v: v}))
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.Get(vid.MustNew())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetActuallyLiveImpliesPotentiallyLive(t *testing.T) {
	s := New()
	v := vid.MustNew()
	require.NoError(t, s.Insert(&fakeObj{v: v}))
	require.NoError(t, s.SetActuallyLive(v))

	potentially, actually, err := s.Flags(v)
	require.NoError(t, err)
	require.True(t, potentially)
	require.True(t, actually)
}

func TestClearLivenessKeepsEntry(t *testing.T) {
	s := New()
	v := vid.MustNew()
	require.NoError(t, s.Insert(&fakeObj{v: v}))
	require.NoError(t, s.ClearLiveness(v))

	potentially, actually, err := s.Flags(v)
	require.NoError(t, err)
	require.False(t, potentially)
	require.False(t, actually)
	require.True(t, s.Contains(v))
}

func TestRemoveDeletes(t *testing.T) {
	s := New()
	v := vid.MustNew()
	require.NoError(t, s.Insert(&fakeObj{v: v}))
	s.Remove(v)
	require.False(t, s.Contains(v))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	v1, v2 := vid.MustNew(), vid.MustNew()
	require.NoError(t, s.Insert(&fakeObj{v: v1}))
	require.NoError(t, s.Insert(&fakeObj{v: v2}))
	require.NoError(t, s.SetActuallyLive(v1))

	snap := s.Snapshot()
	require.Len(t, snap, 2)

	restored := Restore(snap)
	p1, a1, err := restored.Flags(v1)
	require.NoError(t, err)
	require.True(t, p1)
	require.True(t, a1)

	p2, a2, err := restored.Flags(v2)
	require.NoError(t, err)
	require.True(t, p2)
	require.False(t, a2)
}
