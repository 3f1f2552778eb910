package clipboard

import (
	"sync"
	"sync/atomic"

	"go.klb.dev/x11clip/internal/xconn"
)

// Offer is one representation of a selection's content.
type Offer struct {
	Target xconn.Atom
	Data   []byte
}

// Store maps each owned selection to the representations offered for it.
// API calls write it; the owner worker reads it and removes entries when
// ownership is lost. Entries are replaced whole and never edited in place.
type Store struct {
	mu      sync.RWMutex
	entries map[xconn.Atom]entry
	// latest is the generation of the most recent Replace per selection; it
	// outlives removal of the entry.
	latest   map[xconn.Atom]uint64
	gen      uint64
	poisoned atomic.Bool
}

type entry struct {
	gen    uint64
	offers []Offer
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[xconn.Atom]entry),
		latest:  make(map[xconn.Atom]uint64),
	}
}

// write runs fn under the write lock. A panic inside fn poisons the store
// before it propagates.
func (s *Store) write(fn func()) error {
	if s.poisoned.Load() {
		return ErrLock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.poisoned.Store(true)
			panic(r)
		}
	}()
	fn()
	return nil
}

// Replace installs offers as the complete entry for selection and returns
// the entry's generation. Offers with a repeated target keep the last value.
func (s *Store) Replace(selection xconn.Atom, offers []Offer) (uint64, error) {
	offers = dedupe(offers)
	var gen uint64
	err := s.write(func() {
		s.gen++
		gen = s.gen
		s.entries[selection] = entry{gen: gen, offers: offers}
		s.latest[selection] = gen
	})
	return gen, err
}

// Restore reinstalls the entry of generation gen if it has been removed and
// no later Replace happened since. It reports whether it did.
func (s *Store) Restore(selection xconn.Atom, gen uint64, offers []Offer) (bool, error) {
	offers = dedupe(offers)
	var restored bool
	err := s.write(func() {
		if _, ok := s.entries[selection]; ok || s.latest[selection] != gen {
			return
		}
		s.entries[selection] = entry{gen: gen, offers: offers}
		restored = true
	})
	return restored, err
}

// Remove drops selection's entry.
func (s *Store) Remove(selection xconn.Atom) error {
	return s.write(func() {
		delete(s.entries, selection)
	})
}

// Discard drops selection's entry only if it is still generation gen.
func (s *Store) Discard(selection xconn.Atom, gen uint64) error {
	return s.write(func() {
		if e, ok := s.entries[selection]; ok && e.gen == gen {
			delete(s.entries, selection)
		}
	})
}

// Get returns the offers for selection.
func (s *Store) Get(selection xconn.Atom) ([]Offer, bool, error) {
	if s.poisoned.Load() {
		return nil, false, ErrLock
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[selection]
	return e.offers, ok, nil
}

// Has reports whether selection has an entry.
func (s *Store) Has(selection xconn.Atom) (bool, error) {
	_, ok, err := s.Get(selection)
	return ok, err
}

func dedupe(offers []Offer) []Offer {
	out := make([]Offer, 0, len(offers))
	index := make(map[xconn.Atom]int, len(offers))
	for _, o := range offers {
		if i, ok := index[o.Target]; ok {
			out[i] = o
			continue
		}
		index[o.Target] = len(out)
		out = append(out, o)
	}
	return out
}

// notifier is an unbounded queue of changed selections. The owner worker
// selects on wake and drains without blocking.
type notifier struct {
	mu      sync.Mutex
	pending []xconn.Atom
	closed  bool
	wake    chan struct{}
}

func newNotifier() *notifier {
	return &notifier{wake: make(chan struct{}, 1)}
}

func (n *notifier) send(selection xconn.Atom) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrChannelClosed
	}
	n.pending = append(n.pending, selection)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
	return nil
}

func (n *notifier) drain() []xconn.Atom {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}

func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}
