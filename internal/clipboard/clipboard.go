// Package clipboard reads and publishes X11 selections following ICCCM,
// including INCR transfers for payloads larger than one request.
//
// A Clipboard holds two connections. The getter runs requestor transfers on
// the calling goroutine (Load, LoadWait); the setter is served by a single
// background worker that answers SelectionRequest events for everything
// stored with Store, StoreMany or StoreBatch until ownership is lost or the
// Clipboard is closed.
package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/x11clip/internal/xconn"
)

// Dialer opens a connection to an X display.
type Dialer func(display string) (xconn.Conn, error)

type options struct {
	dial     Dialer
	property string
}

// Option configures New.
type Option func(*options)

// WithDialer replaces xconn.Dial, e.g. with an in-memory server.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dial = d }
}

// WithProperty sets the staging property name used by both contexts.
func WithProperty(name string) Option {
	return func(o *options) { o.property = name }
}

// Clipboard is the requestor/owner pair for one display.
type Clipboard struct {
	Getter *Context
	Setter *Context

	store *Store
	notes *notifier

	// getMu serializes transfers on the getter's event stream.
	getMu sync.Mutex

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error

	errMu     sync.Mutex
	workerErr error
}

// New connects twice to display (empty means $DISPLAY) and starts the owner
// worker.
func New(display string, opts ...Option) (*Clipboard, error) {
	o := options{dial: xconn.Dial}
	for _, opt := range opts {
		opt(&o)
	}

	getter, err := openContext(o, display)
	if err != nil {
		return nil, err
	}
	setter, err := openContext(o, display)
	if err != nil {
		_ = getter.Conn.Close()
		return nil, err
	}

	c := &Clipboard{
		Getter:  getter,
		Setter:  setter,
		store:   NewStore(),
		notes:   newNotifier(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.serve(newWorker(setter, c.store, c.notes))
	return c, nil
}

func openContext(o options, display string) (*Context, error) {
	conn, err := o.dial(display)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionSetup, err)
	}
	ctx, err := NewContext(conn, o.property)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ctx, nil
}

func (c *Clipboard) serve(w *worker) {
	defer close(c.stopped)
	err := w.run(c.done)
	c.notes.close()
	if err != nil {
		c.errMu.Lock()
		c.workerErr = err
		c.errMu.Unlock()
		slog.Error("selection owner stopped, clipboard service lost", "err", err)
	}
}

// Err returns the connection error that stopped the owner worker, if any.
func (c *Clipboard) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.workerErr
}

// Load reads selection converted to target through the staging property.
// It fails with ErrTimeout if no answer completes within timeout; a
// non-positive timeout waits indefinitely.
func (c *Clipboard) Load(selection, target, property xconn.Atom, timeout time.Duration) ([]byte, error) {
	c.getMu.Lock()
	defer c.getMu.Unlock()
	return load(c.Getter, selection, target, property, timeout)
}

// LoadWait blocks until selection gets a new owner and returns its value
// converted to target. It only returns early when the connection fails,
// e.g. because the Clipboard was closed.
func (c *Clipboard) LoadWait(selection, target, property xconn.Atom) ([]byte, error) {
	c.getMu.Lock()
	defer c.getMu.Unlock()
	return loadWait(c.Getter, selection, target, property)
}

// Store offers value as the only representation of selection and takes
// ownership of it.
func (c *Clipboard) Store(selection, target xconn.Atom, value []byte) error {
	return c.StoreBatch(selection, []Offer{{Target: target, Data: value}})
}

// StoreMany offers every target in values for selection.
func (c *Clipboard) StoreMany(selection xconn.Atom, values map[xconn.Atom][]byte) error {
	batch := make([]Offer, 0, len(values))
	for target, data := range values {
		batch = append(batch, Offer{Target: target, Data: data})
	}
	return c.StoreBatch(selection, batch)
}

// StoreBatch replaces everything offered for selection with batch and takes
// ownership of it. Payloads are copied.
func (c *Clipboard) StoreBatch(selection xconn.Atom, batch []Offer) error {
	offers := make([]Offer, len(batch))
	for i, o := range batch {
		offers[i] = Offer{Target: o.Target, Data: bytes.Clone(o.Data)}
		if offers[i].Data == nil {
			offers[i].Data = []byte{}
		}
	}

	gen, err := c.store.Replace(selection, offers)
	if err != nil {
		return err
	}
	if err := c.notes.send(selection); err != nil {
		_ = c.store.Discard(selection, gen)
		return err
	}

	conn := c.Setter.Conn
	if err := conn.SetSelectionOwner(c.Setter.Window, selection, xconn.CurrentTime); err != nil {
		return protocolErr("set selection owner", err)
	}
	if err := conn.Flush(); err != nil {
		return protocolErr("flush", err)
	}
	if err := c.verifyOwner(selection); err != nil {
		_ = c.store.Discard(selection, gen)
		return err
	}

	// A SelectionClear from an earlier takeover can be handled between
	// Replace and SetSelectionOwner, while the other client still owned the
	// selection; the worker then dropped this entry.
	restored, err := c.store.Restore(selection, gen, offers)
	if err != nil {
		return err
	}
	if restored {
		slog.Debug("reinstalled selection dropped by a stale clear",
			"selection", c.Setter.nameOrNumber(selection))
		// Ownership may have moved again before the entry came back.
		if err := c.verifyOwner(selection); err != nil {
			_ = c.store.Discard(selection, gen)
			return err
		}
	}
	return nil
}

func (c *Clipboard) verifyOwner(selection xconn.Atom) error {
	owner, err := c.Setter.Conn.SelectionOwner(selection)
	if err != nil {
		return protocolErr("get selection owner", err)
	}
	if owner != c.Setter.Window {
		return fmt.Errorf("%w: %s is owned by window 0x%x",
			ErrOwner, c.Setter.nameOrNumber(selection), uint32(owner))
	}
	return nil
}

// Owns reports whether selection is still offered, i.e. was stored and has
// not been claimed by another client since.
func (c *Clipboard) Owns(selection xconn.Atom) (bool, error) {
	return c.store.Has(selection)
}

// Close stops the owner worker and closes both connections. A blocked
// LoadWait returns with an ErrProtocolIO error.
func (c *Clipboard) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.stopped
		c.closeErr = errors.Join(c.Getter.Conn.Close(), c.Setter.Conn.Close())
	})
	return c.closeErr
}
