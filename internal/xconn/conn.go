// Package xconn defines the narrow slice of the X11 core protocol (plus the
// XFIXES selection extension) that the clipboard engine needs, and provides a
// production implementation on top of github.com/BurntSushi/xgb.
//
// Everything outside the engine talks to the X server through Conn, so tests
// can substitute the in-memory server from package xtest.
package xconn

import (
	"errors"

	"github.com/BurntSushi/xgb"
)

// Atom is a server-interned identifier for a name.
type Atom uint32

// Window is an X window id.
type Window uint32

// Timestamp is an X server time in milliseconds.
type Timestamp uint32

const (
	// None is the null atom and the null window.
	None = 0

	// AnyPropertyType asks GetProperty to return the property whatever its type.
	AnyPropertyType Atom = 0

	// CurrentTime stands in for the server's current time.
	CurrentTime Timestamp = 0
)

// Predefined atoms; these never need to be interned.
const (
	AtomPrimary   Atom = 1
	AtomSecondary Atom = 2
	AtomAtom      Atom = 4
	AtomInteger   Atom = 19
	AtomString    Atom = 31
)

// Event masks.
const (
	EventMaskNoEvent         uint32 = 0
	EventMaskStructureNotify uint32 = 1 << 17
	EventMaskPropertyChange  uint32 = 1 << 22
)

// PropertyNotify states.
const (
	PropertyNewValue byte = 0
	PropertyDelete   byte = 1
)

// SelectionEventMaskSetSelectionOwner is the XFIXES mask for owner changes.
const SelectionEventMaskSetSelectionOwner uint32 = 1

var (
	// ErrClosed is returned once the connection has been closed or lost.
	ErrClosed = errors.New("xconn: connection closed")

	// ErrNoXFixes is returned by SelectSelectionInput when the server lacks
	// a usable XFIXES extension.
	ErrNoXFixes = errors.New("xconn: XFIXES extension unavailable")
)

// Screen describes the default screen of a connection.
type Screen struct {
	Root       Window
	RootVisual uint32
	RootDepth  byte
}

// PropertyReply is the decoded reply to GetProperty.
type PropertyReply struct {
	Type       Atom
	Format     byte
	BytesAfter uint32
	Value      []byte
}

// Conn is a connection to an X server.
//
// Request methods return an error only if the request could not be issued
// or, for requests with replies, the reply failed. Asynchronous protocol
// errors surface as ErrorEvent from WaitForEvent/PollForEvent.
type Conn interface {
	Screen() Screen
	NewWindowID() (Window, error)
	CreateWindow(id, parent Window, x, y int16, width, height uint16, eventMask uint32) error

	// InternAtoms issues every intern request before reaping any reply.
	InternAtoms(names ...string) ([]Atom, error)
	AtomName(atom Atom) (string, error)

	// GetProperty reads a property. offset and length are in 32-bit units,
	// as on the wire.
	GetProperty(del bool, w Window, property, typ Atom, offset, length uint32) (*PropertyReply, error)
	// ChangeProperty replaces a property. format is 8, 16 or 32 and data is
	// already encoded in the connection's byte order.
	ChangeProperty(w Window, property, typ Atom, format byte, data []byte) error
	DeleteProperty(w Window, property Atom) error

	SendSelectionNotify(ev SelectionNotifyEvent) error
	SetSelectionOwner(owner Window, selection Atom, t Timestamp) error
	SelectionOwner(selection Atom) (Window, error)
	ConvertSelection(requestor Window, selection, target, property Atom, t Timestamp) error
	ChangeWindowEventMask(w Window, mask uint32) error

	// SelectSelectionInput subscribes w to XFIXES selection notifications.
	SelectSelectionInput(w Window, selection Atom, mask uint32) error

	// WaitForEvent blocks until an event arrives or the connection is lost.
	WaitForEvent() (Event, error)
	// PollForEvent returns a nil Event when nothing is queued.
	PollForEvent() (Event, error)

	// MaxRequestLength is the largest request the server accepts, in 4-byte units.
	MaxRequestLength() uint32
	Flush() error
	Close() error
}

// EncodeAtoms encodes atoms as format-32 property data.
func EncodeAtoms(atoms []Atom) []byte {
	buf := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		xgb.Put32(buf[4*i:], uint32(a))
	}
	return buf
}

// DecodeAtoms decodes format-32 property data into atoms. A trailing
// partial word is dropped.
func DecodeAtoms(data []byte) []Atom {
	atoms := make([]Atom, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		atoms = append(atoms, Atom(xgb.Get32(data[i:])))
	}
	return atoms
}

// EncodeCard32 encodes a single format-32 value.
func EncodeCard32(v uint32) []byte {
	buf := make([]byte, 4)
	xgb.Put32(buf, v)
	return buf
}

// DecodeCard32 returns the first format-32 value in data, if any.
func DecodeCard32(data []byte) (uint32, bool) {
	if len(data) < 4 {
		return 0, false
	}
	return xgb.Get32(data), true
}
