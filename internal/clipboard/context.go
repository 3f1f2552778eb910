package clipboard

import (
	"fmt"
	"sync"

	"go.klb.dev/x11clip/internal/xconn"
)

// DefaultProperty names the staging property selections are converted into.
const DefaultProperty = "X11CLIP_SELECTION"

// Atoms is the set of atoms every Context resolves up front.
type Atoms struct {
	Primary    xconn.Atom
	Clipboard  xconn.Atom
	Property   xconn.Atom
	Targets    xconn.Atom
	String     xconn.Atom
	UTF8String xconn.Atom
	Incr       xconn.Atom
}

// Context is one X connection with its helper window. A Clipboard uses two,
// one for requesting and one for owning, so their event streams never mix.
type Context struct {
	Conn   xconn.Conn
	Window xconn.Window
	Atoms  Atoms

	mu     sync.Mutex
	byName map[string]xconn.Atom
	byAtom map[xconn.Atom]string
}

// NewContext creates the helper window on conn and resolves the atom table.
// property is the staging property name; empty means DefaultProperty.
func NewContext(conn xconn.Conn, property string) (*Context, error) {
	if property == "" {
		property = DefaultProperty
	}
	screen := conn.Screen()
	window, err := conn.NewWindowID()
	if err != nil {
		return nil, fmt.Errorf("%w: window id: %w", ErrConnectionSetup, err)
	}
	err = conn.CreateWindow(window, screen.Root, 0, 0, 1, 1,
		xconn.EventMaskStructureNotify|xconn.EventMaskPropertyChange)
	if err != nil {
		return nil, fmt.Errorf("%w: create window: %w", ErrConnectionSetup, err)
	}
	if err := conn.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flush: %w", ErrConnectionSetup, err)
	}

	names := []string{"CLIPBOARD", property, "TARGETS", "UTF8_STRING", "INCR"}
	atoms, err := conn.InternAtoms(names...)
	if err != nil {
		return nil, protocolErr("intern atoms", err)
	}

	ctx := &Context{
		Conn:   conn,
		Window: window,
		Atoms: Atoms{
			Primary:    xconn.AtomPrimary,
			Clipboard:  atoms[0],
			Property:   atoms[1],
			Targets:    atoms[2],
			String:     xconn.AtomString,
			UTF8String: atoms[3],
			Incr:       atoms[4],
		},
		byName: make(map[string]xconn.Atom, len(names)+2),
		byAtom: make(map[xconn.Atom]string, len(names)+2),
	}
	ctx.remember("PRIMARY", xconn.AtomPrimary)
	ctx.remember("STRING", xconn.AtomString)
	for i, name := range names {
		ctx.remember(name, atoms[i])
	}
	return ctx, nil
}

func (c *Context) remember(name string, atom xconn.Atom) {
	c.byName[name] = atom
	c.byAtom[atom] = name
}

// Atom interns name, caching the result.
func (c *Context) Atom(name string) (xconn.Atom, error) {
	c.mu.Lock()
	atom, ok := c.byName[name]
	c.mu.Unlock()
	if ok {
		return atom, nil
	}
	atoms, err := c.Conn.InternAtoms(name)
	if err != nil {
		return xconn.None, protocolErr("intern "+name, err)
	}
	c.mu.Lock()
	c.remember(name, atoms[0])
	c.mu.Unlock()
	return atoms[0], nil
}

// AtomName returns the name of atom, caching the result.
func (c *Context) AtomName(atom xconn.Atom) (string, error) {
	c.mu.Lock()
	name, ok := c.byAtom[atom]
	c.mu.Unlock()
	if ok {
		return name, nil
	}
	name, err := c.Conn.AtomName(atom)
	if err != nil {
		return "", protocolErr(fmt.Sprintf("atom name %d", atom), err)
	}
	c.mu.Lock()
	c.remember(name, atom)
	c.mu.Unlock()
	return name, nil
}

// nameOrNumber is AtomName for diagnostics, where a failed lookup must not
// hide the original problem.
func (c *Context) nameOrNumber(atom xconn.Atom) string {
	if name, err := c.AtomName(atom); err == nil {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", atom)
}
