package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/x11clip/internal/clipboard"
	"go.klb.dev/x11clip/internal/xconn"
	"go.klb.dev/x11clip/internal/xconn/xtest"
)

func newTestClipboard(t *testing.T, srv *xtest.Server) *clipboard.Clipboard {
	t.Helper()
	cb, err := clipboard.New("", clipboard.WithDialer(srv.Dialer()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cb.Close() })
	return cb
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestVersion(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "x11clip dev\n", out.String())
}

func TestResolveNames(t *testing.T) {
	cb := newTestClipboard(t, xtest.NewServer())
	ctx := cb.Getter

	for name, want := range map[string]xconn.Atom{
		"":          ctx.Atoms.Clipboard,
		"CLIPBOARD": ctx.Atoms.Clipboard,
		"primary":   xconn.AtomPrimary,
		"secondary": xconn.AtomSecondary,
	} {
		got, err := resolveSelection(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	for name, want := range map[string]xconn.Atom{
		"text":        ctx.Atoms.UTF8String,
		"UTF8_STRING": ctx.Atoms.UTF8String,
		"string":      xconn.AtomString,
		"TARGETS":     ctx.Atoms.Targets,
	} {
		got, err := resolveTarget(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	png, err := resolveTarget(ctx, "image/png")
	require.NoError(t, err)
	name, err := ctx.AtomName(png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", name)
}

func TestOffersFor(t *testing.T) {
	cb := newTestClipboard(t, xtest.NewServer())
	ctx := cb.Setter
	data := []byte("hello")

	offers, err := offersFor(ctx, ctx.Atoms.UTF8String, data)
	require.NoError(t, err)
	require.Len(t, offers, 3)
	plain, err := ctx.Atom(textPlainUTF8)
	require.NoError(t, err)
	assert.Equal(t, []xconn.Atom{ctx.Atoms.UTF8String, ctx.Atoms.String, plain},
		[]xconn.Atom{offers[0].Target, offers[1].Target, offers[2].Target})

	png, err := ctx.Atom("image/png")
	require.NoError(t, err)
	offers, err = offersFor(ctx, png, data)
	require.NoError(t, err)
	assert.Equal(t, []clipboard.Offer{{Target: png, Data: data}}, offers)
}

func TestListTargets(t *testing.T) {
	srv := xtest.NewServer()
	owner := newTestClipboard(t, srv)
	reader := newTestClipboard(t, srv)
	ctx := owner.Setter

	batch, err := offersFor(ctx, ctx.Atoms.UTF8String, []byte("hi"))
	require.NoError(t, err)
	require.NoError(t, owner.StoreBatch(ctx.Atoms.Primary, batch))

	names, err := listTargets(reader, xconn.AtomPrimary, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"TARGETS", "UTF8_STRING", "STRING", textPlainUTF8}, names)
}

func TestServeUntilLost(t *testing.T) {
	srv := xtest.NewServer()
	owner := newTestClipboard(t, srv)
	a := owner.Setter.Atoms
	require.NoError(t, owner.Store(a.Clipboard, a.UTF8String, []byte("x")))

	done := make(chan error, 1)
	go func() { done <- serveUntilLost(context.Background(), owner, a.Clipboard, 10*time.Millisecond) }()

	// Another client takes the selection over.
	other := newTestClipboard(t, srv)
	require.NoError(t, other.Store(a.Clipboard, a.UTF8String, []byte("y")))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveUntilLost did not notice the takeover")
	}
}

func TestServeUntilLostCancelled(t *testing.T) {
	owner := newTestClipboard(t, xtest.NewServer())
	a := owner.Setter.Atoms
	require.NoError(t, owner.Store(a.Clipboard, a.UTF8String, []byte("x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, serveUntilLost(ctx, owner, a.Clipboard, time.Hour))
	ok, err := owner.Owns(a.Clipboard)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWatch(t *testing.T) {
	srv := xtest.NewServer()
	owner := newTestClipboard(t, srv)
	reader := newTestClipboard(t, srv)
	a := owner.Setter.Atoms

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- watch(ctx, reader, a.Clipboard, a.UTF8String, &out) }()

	for _, value := range []string{"one", "two"} {
		require.Eventually(t, func() bool {
			assert.NoError(t, owner.Store(a.Clipboard, a.UTF8String, []byte(value)))
			return strings.HasSuffix(out.String(), value+"\n")
		}, 5*time.Second, 20*time.Millisecond)
	}
	// Repeated stores of the same value print it once.
	assert.Equal(t, "one\ntwo\n", out.String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
