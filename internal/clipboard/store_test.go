package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/x11clip/internal/xconn"
)

func TestStoreReplaceAndRemove(t *testing.T) {
	s := NewStore()

	ok, err := s.Has(xconn.AtomPrimary)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := s.Replace(xconn.AtomPrimary, []Offer{
		{Target: 100, Data: []byte("a")},
		{Target: 101, Data: []byte("b")},
	})
	require.NoError(t, err)
	offers, ok, err := s.Get(xconn.AtomPrimary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, offers, 2)

	// A replacement drops targets that are no longer offered.
	second, err := s.Replace(xconn.AtomPrimary, []Offer{{Target: 102, Data: []byte("c")}})
	require.NoError(t, err)
	assert.Greater(t, second, first)
	offers, _, err = s.Get(xconn.AtomPrimary)
	require.NoError(t, err)
	assert.Equal(t, []Offer{{Target: 102, Data: []byte("c")}}, offers)

	require.NoError(t, s.Remove(xconn.AtomPrimary))
	ok, err = s.Has(xconn.AtomPrimary)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDuplicateTargetLastWins(t *testing.T) {
	s := NewStore()
	_, err := s.Replace(xconn.AtomPrimary, []Offer{
		{Target: 100, Data: []byte("first")},
		{Target: 101, Data: []byte("other")},
		{Target: 100, Data: []byte("second")},
	})
	require.NoError(t, err)

	offers, _, err := s.Get(xconn.AtomPrimary)
	require.NoError(t, err)
	assert.Equal(t, []Offer{
		{Target: 100, Data: []byte("second")},
		{Target: 101, Data: []byte("other")},
	}, offers)
}

func TestStoreRestoreOnlyLatestGeneration(t *testing.T) {
	s := NewStore()
	v1 := []Offer{{Target: 100, Data: []byte("v1")}}
	v2 := []Offer{{Target: 100, Data: []byte("v2")}}

	gen1, err := s.Replace(xconn.AtomPrimary, v1)
	require.NoError(t, err)

	// Present entries are left alone.
	restored, err := s.Restore(xconn.AtomPrimary, gen1, v2)
	require.NoError(t, err)
	assert.False(t, restored)

	require.NoError(t, s.Remove(xconn.AtomPrimary))
	restored, err = s.Restore(xconn.AtomPrimary, gen1, v1)
	require.NoError(t, err)
	assert.True(t, restored)
	offers, _, err := s.Get(xconn.AtomPrimary)
	require.NoError(t, err)
	assert.Equal(t, v1, offers)

	// A later Replace supersedes the older generation even once removed.
	gen2, err := s.Replace(xconn.AtomPrimary, v2)
	require.NoError(t, err)
	require.NoError(t, s.Remove(xconn.AtomPrimary))
	restored, err = s.Restore(xconn.AtomPrimary, gen1, v1)
	require.NoError(t, err)
	assert.False(t, restored)
	ok, err := s.Has(xconn.AtomPrimary)
	require.NoError(t, err)
	assert.False(t, ok)

	restored, err = s.Restore(xconn.AtomPrimary, gen2, v2)
	require.NoError(t, err)
	assert.True(t, restored)
}

func TestStoreDiscardChecksGeneration(t *testing.T) {
	s := NewStore()
	gen1, err := s.Replace(xconn.AtomPrimary, []Offer{{Target: 100, Data: []byte("v1")}})
	require.NoError(t, err)
	_, err = s.Replace(xconn.AtomPrimary, []Offer{{Target: 100, Data: []byte("v2")}})
	require.NoError(t, err)

	require.NoError(t, s.Discard(xconn.AtomPrimary, gen1))
	offers, ok, err := s.Get(xconn.AtomPrimary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), offers[0].Data)
}

func TestStorePoisonedAfterPanic(t *testing.T) {
	s := NewStore()
	assert.Panics(t, func() {
		_ = s.write(func() { panic("boom") })
	})

	_, err := s.Replace(xconn.AtomPrimary, nil)
	assert.ErrorIs(t, err, ErrLock)
	_, err = s.Restore(xconn.AtomPrimary, 1, nil)
	assert.ErrorIs(t, err, ErrLock)
	assert.ErrorIs(t, s.Remove(xconn.AtomPrimary), ErrLock)
	assert.ErrorIs(t, s.Discard(xconn.AtomPrimary, 1), ErrLock)
	_, _, err = s.Get(xconn.AtomPrimary)
	assert.ErrorIs(t, err, ErrLock)
	_, err = s.Has(xconn.AtomPrimary)
	assert.ErrorIs(t, err, ErrLock)
}

func TestNotifier(t *testing.T) {
	n := newNotifier()
	assert.Empty(t, n.drain())

	for _, sel := range []xconn.Atom{1, 2, 1} {
		require.NoError(t, n.send(sel))
	}
	select {
	case <-n.wake:
	default:
		t.Fatal("send did not signal wake")
	}
	assert.Equal(t, []xconn.Atom{1, 2, 1}, n.drain())
	assert.Empty(t, n.drain())

	n.close()
	assert.ErrorIs(t, n.send(1), ErrChannelClosed)
}
