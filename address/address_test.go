package address

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEqual(t *testing.T) {
	a := New([]byte{1, 2, 3})
	b := New([]byte{1, 2, 3})
	c := New([]byte{1, 2, 4})
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestLastBit(t *testing.T) {
	require.Equal(t, byte(0), New([]byte{0x02}).LastBit())
	require.Equal(t, byte(1), New([]byte{0x03}).LastBit())
	require.Equal(t, byte(0), New(nil).LastBit())
}

func TestLessIsStrictTotalOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := New(rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(rt, "a"))
		b := New(rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(rt, "b"))

		require.False(t, a.Less(a))
		if a.Less(b) {
			require.False(t, b.Less(a))
		}
	})
}
