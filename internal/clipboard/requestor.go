package clipboard

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"go.klb.dev/x11clip/internal/xconn"
)

const (
	// pollInterval is how long Load sleeps when no event is pending.
	pollInterval = 50 * time.Millisecond

	// maxSizeHint bounds the capacity reserved from an INCR size hint.
	maxSizeHint = 64 << 20
)

// transfer is the requestor state machine for one logical read:
// AwaitNotify, then either done or INCR accumulation until the empty chunk.
type transfer struct {
	ctx       *Context
	selection xconn.Atom
	target    xconn.Atom
	property  xconn.Atom
	// blocking transfers restart on every owner change.
	blocking bool

	incr bool
	buf  []byte
}

func newTransfer(ctx *Context, selection, target, property xconn.Atom, blocking bool) *transfer {
	return &transfer{
		ctx:       ctx,
		selection: selection,
		target:    target,
		property:  property,
		blocking:  blocking,
		buf:       []byte{},
	}
}

func (t *transfer) convert(at xconn.Timestamp) error {
	conn := t.ctx.Conn
	if err := conn.ConvertSelection(t.ctx.Window, t.selection, t.target, t.property, at); err != nil {
		return protocolErr("convert selection", err)
	}
	if err := conn.Flush(); err != nil {
		return protocolErr("flush", err)
	}
	return nil
}

// handle advances the state machine. It reports true once the transfer is
// complete; events for other selections or properties are ignored.
func (t *transfer) handle(ev xconn.Event) (bool, error) {
	switch ev := ev.(type) {
	case xconn.OwnerChangeEvent:
		if !t.blocking || ev.Selection != t.selection || ev.Owner == xconn.None {
			return false, nil
		}
		t.incr = false
		t.buf = t.buf[:0]
		return false, t.convert(ev.SelectionTimestamp)
	case xconn.SelectionNotifyEvent:
		return t.selectionNotify(ev)
	case xconn.PropertyNotifyEvent:
		return t.propertyNotify(ev)
	case xconn.ErrorEvent:
		slog.Debug("ignoring protocol error during selection read", "err", ev.Err)
	case xconn.SelectionRequestEvent, xconn.SelectionClearEvent, xconn.UnknownEvent:
	}
	return false, nil
}

func (t *transfer) selectionNotify(ev xconn.SelectionNotifyEvent) (bool, error) {
	if ev.Requestor != t.ctx.Window || ev.Selection != t.selection {
		return false, nil
	}
	if !t.accepts(ev.Target) {
		// Late answer to an earlier Load that asked for something else.
		return false, nil
	}
	if ev.Property == xconn.None {
		// Conversion refused.
		return true, nil
	}
	if ev.Property != t.property {
		return false, nil
	}

	conn := t.ctx.Conn
	reply, err := conn.GetProperty(false, t.ctx.Window, t.property, xconn.AnyPropertyType,
		uint32(len(t.buf)/4), math.MaxUint32)
	if err != nil {
		return false, protocolErr("get property", err)
	}

	if reply.Type == xconn.None {
		// A notification for an earlier conversion whose data was already
		// read and deleted.
		slog.Debug("ignoring selection notify without data")
		return false, nil
	}
	if reply.Type == t.ctx.Atoms.Incr {
		if hint, ok := xconn.DecodeCard32(reply.Value); ok {
			t.buf = slices.Grow(t.buf, int(min(hint, maxSizeHint)))
		}
		if err := conn.DeleteProperty(t.ctx.Window, t.property); err != nil {
			return false, protocolErr("delete property", err)
		}
		if err := conn.Flush(); err != nil {
			return false, protocolErr("flush", err)
		}
		t.incr = true
		return false, nil
	}

	if !t.accepts(reply.Type) {
		return false, &UnexpectedTypeError{
			Target:  t.target,
			Got:     reply.Type,
			GotName: t.ctx.nameOrNumber(reply.Type),
		}
	}
	t.buf = append(t.buf, reply.Value...)
	return true, nil
}

func (t *transfer) propertyNotify(ev xconn.PropertyNotifyEvent) (bool, error) {
	if !t.incr || ev.Window != t.ctx.Window || ev.Atom != t.property || ev.State != xconn.PropertyNewValue {
		return false, nil
	}

	conn := t.ctx.Conn
	probe, err := conn.GetProperty(false, t.ctx.Window, t.property, xconn.AnyPropertyType, 0, 0)
	if err != nil {
		return false, protocolErr("get property length", err)
	}
	reply, err := conn.GetProperty(true, t.ctx.Window, t.property, xconn.AnyPropertyType,
		0, (probe.BytesAfter+3)/4)
	if err != nil {
		return false, protocolErr("get property", err)
	}
	if reply.Type != t.target {
		return false, nil
	}
	t.buf = append(t.buf, reply.Value...)
	return len(reply.Value) == 0, nil
}

// accepts reports whether typ is an acceptable reply type. TARGETS is
// answered with ATOM-typed data.
func (t *transfer) accepts(typ xconn.Atom) bool {
	if typ == t.target {
		return true
	}
	return t.target == t.ctx.Atoms.Targets && typ == xconn.AtomAtom
}

func (t *transfer) cleanup() {
	conn := t.ctx.Conn
	if err := conn.DeleteProperty(t.ctx.Window, t.property); err != nil {
		slog.Debug("staging property cleanup failed", "err", err)
		return
	}
	_ = conn.Flush()
}

// load converts selection with CurrentTime and polls for the reply until
// it completes or timeout elapses. A non-positive timeout never expires.
func load(ctx *Context, selection, target, property xconn.Atom, timeout time.Duration) ([]byte, error) {
	t := newTransfer(ctx, selection, target, property, false)
	defer t.cleanup()

	// No triggering event exists to take a timestamp from.
	if err := t.convert(xconn.CurrentTime); err != nil {
		return nil, err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		ev, err := ctx.Conn.PollForEvent()
		if err != nil {
			return nil, protocolErr("poll for event", err)
		}
		if ev == nil {
			time.Sleep(pollInterval)
			continue
		}
		done, err := t.handle(ev)
		if err != nil {
			return nil, err
		}
		if done {
			return t.buf, nil
		}
	}
}

// loadWait blocks until the owner of selection changes, then reads the new
// value. The XFIXES subscription is left in place so an ownership change
// between two calls is still queued for the next one.
func loadWait(ctx *Context, selection, target, property xconn.Atom) ([]byte, error) {
	conn := ctx.Conn
	for _, s := range []xconn.Atom{ctx.Atoms.Primary, ctx.Atoms.Clipboard} {
		if err := conn.SelectSelectionInput(ctx.Window, s, 0); err != nil {
			return nil, protocolErr("clear selection input", err)
		}
	}
	if err := conn.SelectSelectionInput(ctx.Window, selection, xconn.SelectionEventMaskSetSelectionOwner); err != nil {
		return nil, protocolErr("select selection input", err)
	}
	if err := conn.Flush(); err != nil {
		return nil, protocolErr("flush", err)
	}

	t := newTransfer(ctx, selection, target, property, true)
	defer t.cleanup()
	for {
		ev, err := conn.WaitForEvent()
		if err != nil {
			return nil, protocolErr("wait for event", err)
		}
		done, err := t.handle(ev)
		if err != nil {
			return nil, err
		}
		if done {
			return t.buf, nil
		}
	}
}
