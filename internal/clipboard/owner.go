package clipboard

import (
	"log/slog"

	"go.klb.dev/x11clip/internal/xconn"
)

// incrChunkSize is the number of bytes written per INCR property update.
const incrChunkSize = 4000

// transferKey identifies an in-flight INCR transfer by its destination.
type transferKey struct {
	requestor xconn.Window
	property  xconn.Atom
}

// incrTransfer is the owner-side state of one INCR transfer. data is a
// snapshot of the offered payload; stored payloads are never edited.
type incrTransfer struct {
	selection xconn.Atom
	target    xconn.Atom
	data      []byte
	pos       int
}

// worker answers selection requests for everything in store on behalf of
// the setter context.
type worker struct {
	ctx       *Context
	store     *Store
	notes     *notifier
	maxBytes  int
	transfers map[transferKey]*incrTransfer
}

func newWorker(ctx *Context, store *Store, notes *notifier) *worker {
	return &worker{
		ctx:       ctx,
		store:     store,
		notes:     notes,
		maxBytes:  int(ctx.Conn.MaxRequestLength())*4 - 24,
		transfers: make(map[transferKey]*incrTransfer),
	}
}

// run serves events until done is closed or the connection fails. It
// returns nil on cancellation and the connection error otherwise.
func (w *worker) run(done <-chan struct{}) error {
	events := make(chan xconn.Event)
	errc := make(chan error, 1)
	go w.pump(events, errc, done)

	for {
		select {
		case <-done:
			return nil
		case err := <-errc:
			return err
		case <-w.notes.wake:
			w.invalidate()
		case ev := <-events:
			w.invalidate()
			w.dispatch(ev)
		}
	}
}

// pump turns the blocking event stream into a channel the worker can
// select on alongside done.
func (w *worker) pump(events chan<- xconn.Event, errc chan<- error, done <-chan struct{}) {
	for {
		ev, err := w.ctx.Conn.WaitForEvent()
		if err != nil {
			errc <- err
			return
		}
		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}

// invalidate drops INCR state for every selection changed since the last
// call. Transfers already past the change may still finish with old bytes.
func (w *worker) invalidate() {
	for _, sel := range w.notes.drain() {
		w.dropSelection(sel)
	}
}

func (w *worker) dropSelection(selection xconn.Atom) {
	for key, tr := range w.transfers {
		if tr.selection == selection {
			delete(w.transfers, key)
		}
	}
}

// dropRequestor forgets transfers to a window the server no longer knows.
// Its PropertyNotify events will never come.
func (w *worker) dropRequestor(requestor xconn.Window) {
	for key := range w.transfers {
		if key.requestor == requestor {
			slog.Debug("incremental transfer abandoned", "requestor", requestor)
			delete(w.transfers, key)
		}
	}
}

func (w *worker) dispatch(ev xconn.Event) {
	switch ev := ev.(type) {
	case xconn.SelectionRequestEvent:
		w.selectionRequest(ev)
	case xconn.PropertyNotifyEvent:
		w.propertyNotify(ev)
	case xconn.SelectionClearEvent:
		w.selectionClear(ev)
	case xconn.ErrorEvent:
		// Usually a requestor window that went away mid-transfer.
		slog.Debug("protocol error", "err", ev.Err, "window", ev.Window)
		if ev.Window != xconn.None {
			w.dropRequestor(ev.Window)
		}
	case xconn.SelectionNotifyEvent, xconn.OwnerChangeEvent, xconn.UnknownEvent:
	}
}

func (w *worker) selectionRequest(ev xconn.SelectionRequestEvent) {
	conn := w.ctx.Conn
	atoms := w.ctx.Atoms

	property := ev.Property
	if property == xconn.None {
		// Obsolete requestors name no property; ICCCM says use the target.
		property = ev.Target
	}

	offers, ok, err := w.store.Get(ev.Selection)
	if err != nil {
		slog.Warn("selection store unavailable", "err", err)
		return
	}
	if !ok {
		return
	}

	log := slog.With(
		"selection", w.ctx.nameOrNumber(ev.Selection),
		"target", w.ctx.nameOrNumber(ev.Target),
		"requestor", ev.Requestor,
	)

	switch data, found := findOffer(offers, ev.Target); {
	case ev.Target == atoms.Targets:
		list := make([]xconn.Atom, 0, len(offers)+1)
		list = append(list, atoms.Targets)
		for _, o := range offers {
			list = append(list, o.Target)
		}
		err = conn.ChangeProperty(ev.Requestor, property, xconn.AtomAtom, 32, xconn.EncodeAtoms(list))
		log.Debug("answered targets", "count", len(list))
	case !found:
		log.Debug("refusing conversion")
		property = xconn.None
	case len(data) < w.maxBytes:
		err = conn.ChangeProperty(ev.Requestor, property, ev.Target, 8, data)
		log.Debug("answered selection request", "bytes", len(data))
	default:
		err = w.startIncr(ev, property, data)
		log.Debug("starting incremental transfer", "bytes", len(data))
	}
	if err != nil {
		log.Warn("answering selection request failed", "err", err)
		return
	}

	err = conn.SendSelectionNotify(xconn.SelectionNotifyEvent{
		Time:      ev.Time,
		Requestor: ev.Requestor,
		Selection: ev.Selection,
		Target:    ev.Target,
		Property:  property,
	})
	if err == nil {
		err = conn.Flush()
	}
	if err != nil {
		log.Warn("sending selection notify failed", "err", err)
	}
}

func (w *worker) startIncr(ev xconn.SelectionRequestEvent, property xconn.Atom, data []byte) error {
	conn := w.ctx.Conn
	if err := conn.ChangeWindowEventMask(ev.Requestor, xconn.EventMaskPropertyChange); err != nil {
		return err
	}
	err := conn.ChangeProperty(ev.Requestor, property, w.ctx.Atoms.Incr, 32, xconn.EncodeCard32(uint32(len(data))))
	if err != nil {
		return err
	}
	w.transfers[transferKey{ev.Requestor, property}] = &incrTransfer{
		selection: ev.Selection,
		target:    ev.Target,
		data:      data,
	}
	return nil
}

// propertyNotify sends the next chunk once the requestor deleted the
// previous one. The empty chunk ends the transfer.
func (w *worker) propertyNotify(ev xconn.PropertyNotifyEvent) {
	if ev.State != xconn.PropertyDelete {
		return
	}
	key := transferKey{ev.Window, ev.Atom}
	tr, ok := w.transfers[key]
	if !ok {
		return
	}

	n := min(incrChunkSize, len(tr.data)-tr.pos)
	conn := w.ctx.Conn
	err := conn.ChangeProperty(ev.Window, ev.Atom, tr.target, 8, tr.data[tr.pos:tr.pos+n])
	if err == nil {
		err = conn.Flush()
	}
	if err != nil {
		slog.Warn("incremental transfer aborted", "requestor", ev.Window, "err", err)
		delete(w.transfers, key)
		return
	}
	tr.pos += n
	if n == 0 {
		slog.Debug("incremental transfer complete", "requestor", ev.Window, "bytes", tr.pos)
		delete(w.transfers, key)
	}
}

func (w *worker) selectionClear(ev xconn.SelectionClearEvent) {
	w.dropSelection(ev.Selection)

	// A clear can race a Store that has already reclaimed the selection.
	owner, err := w.ctx.Conn.SelectionOwner(ev.Selection)
	if err == nil && owner == w.ctx.Window {
		return
	}
	if err := w.store.Remove(ev.Selection); err != nil {
		slog.Warn("removing lost selection failed", "err", err)
		return
	}
	slog.Info("selection ownership lost", "selection", w.ctx.nameOrNumber(ev.Selection))
}

func findOffer(offers []Offer, target xconn.Atom) ([]byte, bool) {
	for _, o := range offers {
		if o.Target == target {
			return o.Data, true
		}
	}
	return nil, false
}
