package xtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/x11clip/internal/xconn"
)

func newWindow(t *testing.T, c *Client, mask uint32) xconn.Window {
	t.Helper()
	w, err := c.NewWindowID()
	require.NoError(t, err)
	require.NoError(t, c.CreateWindow(w, c.Screen().Root, 0, 0, 1, 1, mask))
	return w
}

func TestGetPropertyPartialReads(t *testing.T) {
	s := NewServer()
	c := s.Dial()
	defer c.Close()
	w := newWindow(t, c, xconn.EventMaskPropertyChange)

	require.NoError(t, c.ChangeProperty(w, 100, xconn.AtomString, 8, []byte("0123456789")))
	ev, err := c.PollForEvent()
	require.NoError(t, err)
	assert.Equal(t, xconn.PropertyNotifyEvent{Window: w, Atom: 100, Time: ev.(xconn.PropertyNotifyEvent).Time, State: xconn.PropertyNewValue}, ev)

	reply, err := c.GetProperty(false, w, 100, xconn.AnyPropertyType, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, reply.Value)
	assert.Equal(t, uint32(10), reply.BytesAfter)

	// A deleting read that leaves bytes behind keeps the property.
	reply, err = c.GetProperty(true, w, 100, xconn.AnyPropertyType, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(reply.Value))
	assert.Equal(t, uint32(2), reply.BytesAfter)

	reply, err = c.GetProperty(false, w, 100, xconn.AtomAtom, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, xconn.AtomString, reply.Type, "type mismatch reports the actual type")
	assert.Empty(t, reply.Value)

	reply, err = c.GetProperty(true, w, 100, xconn.AnyPropertyType, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, "89", string(reply.Value))
	assert.Zero(t, reply.BytesAfter)

	ev, err = c.PollForEvent()
	require.NoError(t, err)
	require.IsType(t, xconn.PropertyNotifyEvent{}, ev)
	assert.Equal(t, xconn.PropertyDelete, ev.(xconn.PropertyNotifyEvent).State)

	reply, err = c.GetProperty(false, w, 100, xconn.AnyPropertyType, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, xconn.Atom(xconn.None), reply.Type)

	_, err = c.GetProperty(false, 0x999, 100, xconn.AnyPropertyType, 0, 1)
	assert.ErrorIs(t, err, BadWindow)
}

func TestChangePropertyLengthLimit(t *testing.T) {
	s := NewServer(WithMaxRequestLength(16))
	c := s.Dial()
	defer c.Close()
	w := newWindow(t, c, xconn.EventMaskNoEvent)

	assert.NoError(t, c.ChangeProperty(w, 100, xconn.AtomString, 8, make([]byte, 40)))
	assert.Error(t, c.ChangeProperty(w, 100, xconn.AtomString, 8, make([]byte, 41)))
}

func TestSelectionOwnership(t *testing.T) {
	s := NewServer()
	a, b := s.Dial(), s.Dial()
	defer b.Close()
	wa := newWindow(t, a, xconn.EventMaskNoEvent)
	wb := newWindow(t, b, xconn.EventMaskNoEvent)

	require.NoError(t, b.SelectSelectionInput(wb, xconn.AtomPrimary, xconn.SelectionEventMaskSetSelectionOwner))
	require.NoError(t, a.SetSelectionOwner(wa, xconn.AtomPrimary, xconn.CurrentTime))
	assert.Equal(t, wa, s.Owner(xconn.AtomPrimary))

	ev, err := b.PollForEvent()
	require.NoError(t, err)
	change, ok := ev.(xconn.OwnerChangeEvent)
	require.True(t, ok)
	assert.Equal(t, wa, change.Owner)

	// Converting goes to the owner; a takeover clears it.
	require.NoError(t, b.ConvertSelection(wb, xconn.AtomPrimary, xconn.AtomString, 100, xconn.CurrentTime))
	ev, err = a.PollForEvent()
	require.NoError(t, err)
	assert.IsType(t, xconn.SelectionRequestEvent{}, ev)

	require.NoError(t, b.SetSelectionOwner(wb, xconn.AtomPrimary, xconn.CurrentTime))
	ev, err = a.PollForEvent()
	require.NoError(t, err)
	assert.Equal(t, xconn.SelectionClearEvent{Time: ev.(xconn.SelectionClearEvent).Time, Owner: wa, Selection: xconn.AtomPrimary}, ev)

	// Closing the owner releases its windows and selections.
	require.NoError(t, b.SetSelectionOwner(wb, xconn.AtomSecondary, xconn.CurrentTime))
	require.NoError(t, b.Close())
	assert.Equal(t, xconn.Window(xconn.None), s.Owner(xconn.AtomPrimary))
	assert.Equal(t, 2, s.Windows())

	require.NoError(t, a.ConvertSelection(wa, xconn.AtomSecondary, xconn.AtomString, 100, xconn.CurrentTime))
	ev, err = a.PollForEvent()
	require.NoError(t, err)
	assert.Equal(t, xconn.Atom(xconn.None), ev.(xconn.SelectionNotifyEvent).Property)
	require.NoError(t, a.Close())
	assert.Equal(t, 1, s.Windows())
}

func TestClosedClient(t *testing.T) {
	c := NewServer().Dial()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.WaitForEvent()
	assert.ErrorIs(t, err, xconn.ErrClosed)
	_, err = c.NewWindowID()
	assert.ErrorIs(t, err, xconn.ErrClosed)
}

func TestBadWindowNamesWindow(t *testing.T) {
	c := NewServer().Dial()
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.ChangeProperty(0x4242, xconn.AtomPrimary, xconn.AtomString, 8, []byte("x")))
	ev, err := c.PollForEvent()
	require.NoError(t, err)
	errEv, ok := ev.(xconn.ErrorEvent)
	require.True(t, ok, "%T", ev)
	assert.ErrorIs(t, errEv.Err, BadWindow)
	assert.Equal(t, xconn.Window(0x4242), errEv.Window)
}
