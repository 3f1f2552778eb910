package xconn

import (
	"fmt"
	"sync/atomic"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// XFIXES 5.0 is the first version with reliable selection notifications.
const (
	xfixesMajorVersion = 5
	xfixesMinorVersion = 0
)

type xgbConn struct {
	c         *xgb.Conn
	screen    Screen
	maxLength uint32
	xfixesErr error
	closed    atomic.Bool
}

// Dial connects to display. An empty display means $DISPLAY.
func Dial(display string) (Conn, error) {
	c, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", display, err)
	}

	setup := xproto.Setup(c)
	if setup == nil || len(setup.Roots) == 0 {
		c.Close()
		return nil, fmt.Errorf("connect %q: no screens", display)
	}
	screen := setup.DefaultScreen(c)

	conn := &xgbConn{
		c: c,
		screen: Screen{
			Root:       Window(screen.Root),
			RootVisual: uint32(screen.RootVisual),
			RootDepth:  screen.RootDepth,
		},
		maxLength: uint32(setup.MaximumRequestLength),
	}
	conn.xfixesErr = conn.initXFixes()
	return conn, nil
}

func (x *xgbConn) initXFixes() error {
	if err := xfixes.Init(x.c); err != nil {
		return fmt.Errorf("%w: %v", ErrNoXFixes, err)
	}
	v, err := xfixes.QueryVersion(x.c, xfixesMajorVersion, xfixesMinorVersion).Reply()
	if err != nil {
		return fmt.Errorf("%w: version handshake: %v", ErrNoXFixes, err)
	}
	if v.MajorVersion < xfixesMajorVersion {
		return fmt.Errorf("%w: version %d.%d too old", ErrNoXFixes, v.MajorVersion, v.MinorVersion)
	}
	return nil
}

func (x *xgbConn) Screen() Screen { return x.screen }

func (x *xgbConn) NewWindowID() (Window, error) {
	id, err := xproto.NewWindowId(x.c)
	if err != nil {
		return None, err
	}
	return Window(id), nil
}

func (x *xgbConn) CreateWindow(id, parent Window, px, py int16, width, height uint16, eventMask uint32) error {
	return xproto.CreateWindowChecked(x.c,
		xproto.WindowClassCopyFromParent, xproto.Window(id), xproto.Window(parent),
		px, py, width, height, 0,
		xproto.WindowClassInputOutput, xproto.Visualid(x.screen.RootVisual),
		xproto.CwEventMask, []uint32{eventMask},
	).Check()
}

func (x *xgbConn) InternAtoms(names ...string) ([]Atom, error) {
	cookies := make([]xproto.InternAtomCookie, len(names))
	for i, name := range names {
		cookies[i] = xproto.InternAtom(x.c, false, uint16(len(name)), name)
	}
	atoms := make([]Atom, len(names))
	for i, cookie := range cookies {
		reply, err := cookie.Reply()
		if err != nil {
			return nil, fmt.Errorf("intern %s: %w", names[i], err)
		}
		atoms[i] = Atom(reply.Atom)
	}
	return atoms, nil
}

func (x *xgbConn) AtomName(atom Atom) (string, error) {
	reply, err := xproto.GetAtomName(x.c, xproto.Atom(atom)).Reply()
	if err != nil {
		return "", err
	}
	return reply.Name, nil
}

func (x *xgbConn) GetProperty(del bool, w Window, property, typ Atom, offset, length uint32) (*PropertyReply, error) {
	reply, err := xproto.GetProperty(x.c, del, xproto.Window(w), xproto.Atom(property),
		xproto.Atom(typ), offset, length).Reply()
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, ErrClosed
	}
	return &PropertyReply{
		Type:       Atom(reply.Type),
		Format:     reply.Format,
		BytesAfter: reply.BytesAfter,
		Value:      reply.Value,
	}, nil
}

func (x *xgbConn) ChangeProperty(w Window, property, typ Atom, format byte, data []byte) error {
	if err := x.live(); err != nil {
		return err
	}
	var n uint32
	if format > 0 {
		n = uint32(len(data) / int(format/8))
	}
	xproto.ChangeProperty(x.c, xproto.PropModeReplace, xproto.Window(w), xproto.Atom(property),
		xproto.Atom(typ), format, n, data)
	return nil
}

func (x *xgbConn) DeleteProperty(w Window, property Atom) error {
	if err := x.live(); err != nil {
		return err
	}
	xproto.DeleteProperty(x.c, xproto.Window(w), xproto.Atom(property))
	return nil
}

func (x *xgbConn) SendSelectionNotify(ev SelectionNotifyEvent) error {
	if err := x.live(); err != nil {
		return err
	}
	notify := xproto.SelectionNotifyEvent{
		Time:      xproto.Timestamp(ev.Time),
		Requestor: xproto.Window(ev.Requestor),
		Selection: xproto.Atom(ev.Selection),
		Target:    xproto.Atom(ev.Target),
		Property:  xproto.Atom(ev.Property),
	}
	xproto.SendEvent(x.c, false, xproto.Window(ev.Requestor), xproto.EventMaskNoEvent, string(notify.Bytes()))
	return nil
}

func (x *xgbConn) SetSelectionOwner(owner Window, selection Atom, t Timestamp) error {
	if err := x.live(); err != nil {
		return err
	}
	xproto.SetSelectionOwner(x.c, xproto.Window(owner), xproto.Atom(selection), xproto.Timestamp(t))
	return nil
}

func (x *xgbConn) SelectionOwner(selection Atom) (Window, error) {
	reply, err := xproto.GetSelectionOwner(x.c, xproto.Atom(selection)).Reply()
	if err != nil {
		return None, err
	}
	if reply == nil {
		return None, ErrClosed
	}
	return Window(reply.Owner), nil
}

func (x *xgbConn) ConvertSelection(requestor Window, selection, target, property Atom, t Timestamp) error {
	if err := x.live(); err != nil {
		return err
	}
	xproto.ConvertSelection(x.c, xproto.Window(requestor), xproto.Atom(selection),
		xproto.Atom(target), xproto.Atom(property), xproto.Timestamp(t))
	return nil
}

func (x *xgbConn) ChangeWindowEventMask(w Window, mask uint32) error {
	if err := x.live(); err != nil {
		return err
	}
	xproto.ChangeWindowAttributes(x.c, xproto.Window(w), xproto.CwEventMask, []uint32{mask})
	return nil
}

func (x *xgbConn) SelectSelectionInput(w Window, selection Atom, mask uint32) error {
	if x.xfixesErr != nil {
		return x.xfixesErr
	}
	return xfixes.SelectSelectionInputChecked(x.c, xproto.Window(w), xproto.Atom(selection), mask).Check()
}

func (x *xgbConn) WaitForEvent() (Event, error) {
	ev, xerr := x.c.WaitForEvent()
	switch {
	case xerr != nil:
		return errorEvent(xerr), nil
	case ev == nil:
		x.closed.Store(true)
		return nil, ErrClosed
	}
	return convertEvent(ev), nil
}

func errorEvent(xerr xgb.Error) ErrorEvent {
	ev := ErrorEvent{Err: xerr}
	if werr, ok := xerr.(xproto.WindowError); ok {
		ev.Window = Window(werr.BadId())
	}
	return ev
}

func (x *xgbConn) PollForEvent() (Event, error) {
	if err := x.live(); err != nil {
		return nil, err
	}
	ev, xerr := x.c.PollForEvent()
	switch {
	case xerr != nil:
		return errorEvent(xerr), nil
	case ev == nil:
		return nil, nil
	}
	return convertEvent(ev), nil
}

func (x *xgbConn) MaxRequestLength() uint32 { return x.maxLength }

// Flush is a no-op: xgb writes every request as soon as it is issued.
func (x *xgbConn) Flush() error { return x.live() }

func (x *xgbConn) Close() error {
	if x.closed.Swap(true) {
		return nil
	}
	x.c.Close()
	return nil
}

func (x *xgbConn) live() error {
	if x.closed.Load() {
		return ErrClosed
	}
	return nil
}

func convertEvent(ev xgb.Event) Event {
	switch ev := ev.(type) {
	case xproto.SelectionRequestEvent:
		return SelectionRequestEvent{
			Time:      Timestamp(ev.Time),
			Owner:     Window(ev.Owner),
			Requestor: Window(ev.Requestor),
			Selection: Atom(ev.Selection),
			Target:    Atom(ev.Target),
			Property:  Atom(ev.Property),
		}
	case xproto.SelectionNotifyEvent:
		return SelectionNotifyEvent{
			Time:      Timestamp(ev.Time),
			Requestor: Window(ev.Requestor),
			Selection: Atom(ev.Selection),
			Target:    Atom(ev.Target),
			Property:  Atom(ev.Property),
		}
	case xproto.PropertyNotifyEvent:
		return PropertyNotifyEvent{
			Window: Window(ev.Window),
			Atom:   Atom(ev.Atom),
			Time:   Timestamp(ev.Time),
			State:  ev.State,
		}
	case xproto.SelectionClearEvent:
		return SelectionClearEvent{
			Time:      Timestamp(ev.Time),
			Owner:     Window(ev.Owner),
			Selection: Atom(ev.Selection),
		}
	case xfixes.SelectionNotifyEvent:
		return OwnerChangeEvent{
			Subtype:            ev.Subtype,
			Window:             Window(ev.Window),
			Owner:              Window(ev.Owner),
			Selection:          Atom(ev.Selection),
			Timestamp:          Timestamp(ev.Timestamp),
			SelectionTimestamp: Timestamp(ev.SelectionTimestamp),
		}
	default:
		return UnknownEvent{Name: ev.String()}
	}
}
