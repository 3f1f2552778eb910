package xtest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.klb.dev/x11clip/internal/xconn"
)

// Client is one connection to a Server. It implements xconn.Conn.
type Client struct {
	srv    *Server
	base   uint32
	nextID atomic.Uint32

	mu     sync.Mutex
	queue  []xconn.Event
	wake   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

var _ xconn.Conn = (*Client)(nil)

func (c *Client) push(ev xconn.Event) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Inject queues ev on this client as if the server had sent it.
func (c *Client) Inject(ev xconn.Event) { c.push(ev) }

func (c *Client) pop() (xconn.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	ev := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return ev, true
}

func (c *Client) live() error {
	if c.closed.Load() {
		return xconn.ErrClosed
	}
	return nil
}

func (c *Client) Screen() xconn.Screen {
	return xconn.Screen{Root: rootWindow, RootVisual: rootVisual, RootDepth: 24}
}

func (c *Client) NewWindowID() (xconn.Window, error) {
	if err := c.live(); err != nil {
		return xconn.None, err
	}
	return xconn.Window(c.base | c.nextID.Add(1)), nil
}

func (c *Client) CreateWindow(id, parent xconn.Window, _, _ int16, width, height uint16, eventMask uint32) error {
	if err := c.live(); err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: zero-sized window", BadValue)
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(parent); err != nil {
		return err
	}
	s.windows[id] = &window{
		creator: c,
		props:   make(map[xconn.Atom]*property),
		masks:   map[*Client]uint32{c: eventMask},
	}
	return nil
}

func (c *Client) InternAtoms(names ...string) ([]xconn.Atom, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]xconn.Atom, len(names))
	for i, name := range names {
		atom, ok := s.atoms[name]
		if !ok {
			atom = s.nextAtom
			s.nextAtom++
			s.atoms[name] = atom
			s.names[atom] = name
		}
		out[i] = atom
	}
	return out, nil
}

func (c *Client) AtomName(atom xconn.Atom) (string, error) {
	if err := c.live(); err != nil {
		return "", err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.names[atom]
	if !ok {
		return "", fmt.Errorf("BadAtom: %d", atom)
	}
	return name, nil
}

func (c *Client) GetProperty(del bool, id xconn.Window, atom, typ xconn.Atom, offset, length uint32) (*xconn.PropertyReply, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	p, ok := w.props[atom]
	if !ok {
		return &xconn.PropertyReply{}, nil
	}
	total := uint64(len(p.data))
	if typ != xconn.AnyPropertyType && typ != p.typ {
		return &xconn.PropertyReply{Type: p.typ, Format: p.format, BytesAfter: uint32(total)}, nil
	}
	start := 4 * uint64(offset)
	if start > total {
		return nil, fmt.Errorf("%w: offset %d beyond %d bytes", BadValue, offset, total)
	}
	end := min(total, start+4*uint64(length))
	reply := &xconn.PropertyReply{
		Type:       p.typ,
		Format:     p.format,
		BytesAfter: uint32(total - end),
		Value:      append([]byte(nil), p.data[start:end]...),
	}
	if del && reply.BytesAfter == 0 {
		delete(w.props, atom)
		s.propertyNotify(id, w, atom, xconn.PropertyDelete)
	}
	return reply, nil
}

func (c *Client) ChangeProperty(id xconn.Window, atom, typ xconn.Atom, format byte, data []byte) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit := 4*uint64(s.maxLength) - 24; uint64(len(data)) > limit {
		return fmt.Errorf("BadLength: %d bytes exceeds %d", len(data), limit)
	}
	w, err := s.lookup(id)
	if err != nil {
		c.push(xconn.ErrorEvent{Err: err, Window: id})
		return nil
	}
	w.props[atom] = &property{typ: typ, format: format, data: append([]byte(nil), data...)}
	s.changes = append(s.changes, PropertyChange{Window: id, Property: atom, Type: typ, Format: format, Length: len(data)})
	s.propertyNotify(id, w, atom, xconn.PropertyNewValue)
	return nil
}

func (c *Client) DeleteProperty(id xconn.Window, atom xconn.Atom) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(id)
	if err != nil {
		c.push(xconn.ErrorEvent{Err: err, Window: id})
		return nil
	}
	if _, ok := w.props[atom]; ok {
		delete(w.props, atom)
		s.propertyNotify(id, w, atom, xconn.PropertyDelete)
	}
	return nil
}

// SendSelectionNotify delivers to the client that created the requestor
// window, as SendEvent with an empty mask does.
func (c *Client) SendSelectionNotify(ev xconn.SelectionNotifyEvent) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(ev.Requestor)
	if err != nil {
		c.push(xconn.ErrorEvent{Err: err, Window: ev.Requestor})
		return nil
	}
	if w.creator != nil {
		w.creator.push(ev)
	}
	return nil
}

func (c *Client) SetSelectionOwner(id xconn.Window, selection xconn.Atom, t xconn.Timestamp) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	t = s.resolve(t)
	if cur, ok := s.owners[selection]; ok && t < cur.time {
		return nil
	}
	next := owner{window: id, time: t}
	if id != xconn.None {
		w, err := s.lookup(id)
		if err != nil {
			c.push(xconn.ErrorEvent{Err: err, Window: id})
			return nil
		}
		next.client = w.creator
	}
	s.setOwner(selection, next)
	return nil
}

func (c *Client) SelectionOwner(selection xconn.Atom) (xconn.Window, error) {
	if err := c.live(); err != nil {
		return xconn.None, err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[selection].window, nil
}

func (c *Client) ConvertSelection(requestor xconn.Window, selection, target, atom xconn.Atom, t xconn.Timestamp) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(requestor); err != nil {
		c.push(xconn.ErrorEvent{Err: err, Window: requestor})
		return nil
	}
	o, ok := s.owners[selection]
	if !ok || o.client == nil {
		c.push(xconn.SelectionNotifyEvent{
			Time:      t,
			Requestor: requestor,
			Selection: selection,
			Target:    target,
			Property:  xconn.None,
		})
		return nil
	}
	o.client.push(xconn.SelectionRequestEvent{
		Time:      t,
		Owner:     o.window,
		Requestor: requestor,
		Selection: selection,
		Target:    target,
		Property:  atom,
	})
	return nil
}

func (c *Client) ChangeWindowEventMask(id xconn.Window, mask uint32) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(id)
	if err != nil {
		c.push(xconn.ErrorEvent{Err: err, Window: id})
		return nil
	}
	w.masks[c] = mask
	return nil
}

func (c *Client) SelectSelectionInput(id xconn.Window, selection xconn.Atom, mask uint32) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(id); err != nil {
		return err
	}
	sub := subscription{client: c, window: id, selection: selection}
	if mask == 0 {
		delete(s.subs, sub)
		return nil
	}
	s.subs[sub] = mask
	return nil
}

func (c *Client) WaitForEvent() (xconn.Event, error) {
	for {
		if ev, ok := c.pop(); ok {
			return ev, nil
		}
		if err := c.live(); err != nil {
			return nil, err
		}
		select {
		case <-c.wake:
		case <-c.done:
		}
	}
}

func (c *Client) PollForEvent() (xconn.Event, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	ev, _ := c.pop()
	return ev, nil
}

func (c *Client) MaxRequestLength() uint32 {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.maxLength
}

func (c *Client) Flush() error { return c.live() }

// Close disconnects the client; its windows and selections are released.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.srv.drop(c)
	return nil
}
