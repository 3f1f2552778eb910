package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/x11clip/internal/xconn"
	"go.klb.dev/x11clip/internal/xconn/xtest"
)

func TestWorkerDropsTransferToDestroyedRequestor(t *testing.T) {
	srv := xtest.NewServer(xtest.WithMaxRequestLength(1024))
	ctx := newTestContext(t, srv)
	a := ctx.Atoms

	store := NewStore()
	_, err := store.Replace(a.Clipboard, []Offer{{Target: a.UTF8String, Data: payload(12_000)}})
	require.NoError(t, err)
	w := newWorker(ctx, store, newNotifier())

	conn := srv.Dial()
	requestor, err := conn.NewWindowID()
	require.NoError(t, err)
	require.NoError(t, conn.CreateWindow(requestor, conn.Screen().Root, 0, 0, 1, 1, xconn.EventMaskPropertyChange))

	w.dispatch(xconn.SelectionRequestEvent{
		Owner:     ctx.Window,
		Requestor: requestor,
		Selection: a.Clipboard,
		Target:    a.UTF8String,
		Property:  a.Property,
	})
	require.Len(t, w.transfers, 1)

	// Errors about other windows leave the transfer alone.
	w.dispatch(xconn.ErrorEvent{Err: xtest.BadWindow, Window: requestor + 1})
	w.dispatch(xconn.ErrorEvent{Err: xtest.BadValue})
	require.Len(t, w.transfers, 1)

	// The requestor disappears; writing the next chunk fails asynchronously.
	require.NoError(t, conn.Close())
	w.dispatch(xconn.PropertyNotifyEvent{Window: requestor, Atom: a.Property, State: xconn.PropertyDelete})

	errEv := waitEvent(t, ctx.Conn, func(ev xconn.ErrorEvent) bool { return ev.Window == requestor })
	w.dispatch(errEv)
	assert.Empty(t, w.transfers)
}
