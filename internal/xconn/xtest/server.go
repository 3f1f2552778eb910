// Package xtest is an in-memory X server implementing the selection,
// property and XFIXES selection-notification parts of the protocol, enough
// to run clipboard owners and requestors against each other without a
// display.
package xtest

import (
	"errors"
	"fmt"
	"sync"

	"go.klb.dev/x11clip/internal/xconn"
)

// DefaultMaxRequestLength matches the core protocol limit without BIG-REQUESTS.
const DefaultMaxRequestLength = 65535

const (
	rootWindow  xconn.Window = 0x100
	rootVisual  uint32       = 0x21
	clientShift              = 21
)

var predefined = map[string]xconn.Atom{
	"PRIMARY":   xconn.AtomPrimary,
	"SECONDARY": xconn.AtomSecondary,
	"ATOM":      xconn.AtomAtom,
	"INTEGER":   xconn.AtomInteger,
	"STRING":    xconn.AtomString,
}

// firstDynamicAtom follows the last predefined core atom (WM_TRANSIENT_FOR).
const firstDynamicAtom xconn.Atom = 69

// BadWindow and BadValue are reported for requests naming unknown windows
// or out-of-range offsets.
var (
	BadWindow = errors.New("BadWindow")
	BadValue  = errors.New("BadValue")
)

type property struct {
	typ    xconn.Atom
	format byte
	data   []byte
}

type window struct {
	creator *Client
	props   map[xconn.Atom]*property
	masks   map[*Client]uint32
}

type owner struct {
	window xconn.Window
	client *Client
	time   xconn.Timestamp
}

type subscription struct {
	client    *Client
	window    xconn.Window
	selection xconn.Atom
}

// Server holds the shared display state.
type Server struct {
	mu        sync.Mutex
	maxLength uint32
	time      xconn.Timestamp
	nextAtom  xconn.Atom
	nextBase  uint32
	atoms     map[string]xconn.Atom
	names     map[xconn.Atom]string
	windows   map[xconn.Window]*window
	owners    map[xconn.Atom]owner
	subs      map[subscription]uint32
	changes   []PropertyChange
}

// PropertyChange records a ChangeProperty request, for tests that assert on
// chunking.
type PropertyChange struct {
	Window   xconn.Window
	Property xconn.Atom
	Type     xconn.Atom
	Format   byte
	Length   int
}

// Option configures a Server.
type Option func(*Server)

// WithMaxRequestLength overrides the maximum request length (4-byte units).
func WithMaxRequestLength(n uint32) Option {
	return func(s *Server) { s.maxLength = n }
}

// NewServer returns an empty display with one root window.
func NewServer(opts ...Option) *Server {
	s := &Server{
		maxLength: DefaultMaxRequestLength,
		time:      1,
		nextAtom:  firstDynamicAtom,
		nextBase:  1,
		atoms:     make(map[string]xconn.Atom),
		names:     make(map[xconn.Atom]string),
		windows:   make(map[xconn.Window]*window),
		owners:    make(map[xconn.Atom]owner),
		subs:      make(map[subscription]uint32),
	}
	for name, atom := range predefined {
		s.atoms[name] = atom
		s.names[atom] = name
	}
	s.windows[rootWindow] = &window{
		props: make(map[xconn.Atom]*property),
		masks: make(map[*Client]uint32),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dial opens a new client connection.
func (s *Server) Dial() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Client{
		srv:  s,
		base: s.nextBase << clientShift,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.nextBase++
	return c
}

// Dialer adapts Dial to the display-name signature used by clipboard.New.
func (s *Server) Dialer() func(string) (xconn.Conn, error) {
	return func(string) (xconn.Conn, error) { return s.Dial(), nil }
}

// Owner returns the current owner window of selection.
func (s *Server) Owner(selection xconn.Atom) xconn.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[selection].window
}

// Changes returns every ChangeProperty issued so far against w.
func (s *Server) Changes(w xconn.Window) []PropertyChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PropertyChange
	for _, c := range s.changes {
		if c.Window == w {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) tick() xconn.Timestamp {
	s.time++
	return s.time
}

func (s *Server) resolve(t xconn.Timestamp) xconn.Timestamp {
	if t == xconn.CurrentTime {
		return s.tick()
	}
	return t
}

// propertyNotify must be called with s.mu held.
func (s *Server) propertyNotify(id xconn.Window, w *window, atom xconn.Atom, state byte) {
	ev := xconn.PropertyNotifyEvent{Window: id, Atom: atom, Time: s.tick(), State: state}
	for c, mask := range w.masks {
		if mask&xconn.EventMaskPropertyChange != 0 {
			c.push(ev)
		}
	}
}

// setOwner must be called with s.mu held.
func (s *Server) setOwner(selection xconn.Atom, next owner) {
	prev, had := s.owners[selection]
	if had && prev.window != next.window && prev.client != nil {
		prev.client.push(xconn.SelectionClearEvent{
			Time:      next.time,
			Owner:     prev.window,
			Selection: selection,
		})
	}
	if next.window == xconn.None {
		delete(s.owners, selection)
	} else {
		s.owners[selection] = next
	}
	for sub, mask := range s.subs {
		if sub.selection != selection || mask&xconn.SelectionEventMaskSetSelectionOwner == 0 {
			continue
		}
		sub.client.push(xconn.OwnerChangeEvent{
			Window:             sub.window,
			Owner:              next.window,
			Selection:          selection,
			Timestamp:          s.tick(),
			SelectionTimestamp: next.time,
		})
	}
}

// drop releases everything a closing client held, as the server does when
// a connection goes away.
func (s *Server) drop(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sel, o := range s.owners {
		if o.client == c {
			s.setOwner(sel, owner{time: s.tick()})
		}
	}
	for id, w := range s.windows {
		if w.creator == c {
			delete(s.windows, id)
			continue
		}
		delete(w.masks, c)
	}
	for sub := range s.subs {
		if sub.client == c {
			delete(s.subs, sub)
		}
	}
}

func (s *Server) lookup(id xconn.Window) (*window, error) {
	w, ok := s.windows[id]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", BadWindow, uint32(id))
	}
	return w, nil
}

// Windows returns the number of live windows, including the root.
func (s *Server) Windows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
