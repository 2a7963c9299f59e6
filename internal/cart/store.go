package cart

import (
	"sync"

	"github.com/nikolayk812/storefront-cart/internal/domain"
)

// Op names the transition that produced a Change.
type Op string

const (
	OpAdd            Op = "add"
	OpRemove         Op = "remove"
	OpUpdateQuantity Op = "update_quantity"
	OpClear          Op = "clear"
	OpRestore        Op = "restore"
	OpRebase         Op = "rebase"
)

// Change is delivered to listeners after every committed transition.
type Change struct {
	Op       Op
	Revision uint64
	Cart     domain.Cart
}

// Listener must not block and must not call back into the Store.
type Listener func(Change)

// Store owns the cart state. Transitions are serialized, so a reader never
// observes a half-applied update.
type Store struct {
	mu         sync.Mutex
	state      domain.Cart
	revision   uint64
	normalizer domain.Normalizer

	listeners map[int]Listener
	nextID    int
}

type Option func(*Store)

func WithNormalizer(n domain.Normalizer) Option {
	return func(s *Store) {
		s.normalizer = n
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		normalizer: domain.NewNormalizer(),
		listeners:  make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add normalizes the product and either bumps the quantity of the existing
// line with the same id or appends a new line. An existing line keeps the
// fields captured when it was first added.
func (s *Store) Add(p domain.Product) domain.Cart {
	item := s.normalizer.Normalize(p)

	return s.commit(OpAdd, func(c *domain.Cart) bool {
		if i := c.Find(item.ID); i >= 0 {
			c.Items[i].Quantity++
			return true
		}
		c.Items = append(c.Items, item)
		return true
	})
}

// Remove drops the line with the given id. Unknown ids are ignored.
func (s *Store) Remove(id int64) domain.Cart {
	return s.commit(OpRemove, func(c *domain.Cart) bool {
		i := c.Find(id)
		if i < 0 {
			return false
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	})
}

// UpdateQuantity adds delta to the line's quantity and removes the line
// once the quantity drops to zero or below. Unknown ids are ignored.
func (s *Store) UpdateQuantity(id int64, delta int) domain.Cart {
	return s.commit(OpUpdateQuantity, func(c *domain.Cart) bool {
		i := c.Find(id)
		if i < 0 {
			return false
		}
		c.Items[i].Quantity += delta
		if c.Items[i].Quantity <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		}
		return true
	})
}

func (s *Store) Clear() domain.Cart {
	return s.commit(OpClear, func(c *domain.Cart) bool {
		if c.IsEmpty() {
			return false
		}
		c.Items = nil
		return true
	})
}

// Restore replaces the state with a rehydrated cart. Duplicate ids are
// merged and lines with a non-positive quantity dropped.
func (s *Store) Restore(c domain.Cart, revision uint64) domain.Cart {
	items := sanitize(c.Items)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = domain.Cart{Items: items, Count: domain.SumQuantities(items)}
	if revision > s.revision {
		s.revision = revision
	}
	s.notify(OpRestore)

	return s.state.Clone()
}

// Rebase moves the revision past stored and re-announces the current cart.
// A writer whose snapshots were rejected as older than storage uses it to
// catch up without changing the cart.
func (s *Store) Rebase(stored uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision = max(s.revision, stored) + 1
	s.notify(OpRebase)

	return s.revision
}

func (s *Store) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Clone()
}

func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revision
}

// Subscribe registers l for every following change and returns a function
// removing it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// commit applies fn to a copy of the state. No-op transitions (fn returns
// false) leave the state, the revision and the listeners untouched.
func (s *Store) commit(op Op, fn func(c *domain.Cart) bool) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if !fn(&next) {
		return s.state.Clone()
	}
	next.Count = domain.SumQuantities(next.Items)

	s.state = next
	s.revision++
	s.notify(op)

	return s.state.Clone()
}

// notify runs with s.mu held so listeners see changes in commit order.
func (s *Store) notify(op Op) {
	if len(s.listeners) == 0 {
		return
	}

	change := Change{Op: op, Revision: s.revision, Cart: s.state.Clone()}
	for _, l := range s.listeners {
		l(change)
	}
}

func sanitize(items []domain.CartItem) []domain.CartItem {
	var out []domain.CartItem
	index := make(map[int64]int, len(items))

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i, ok := index[item.ID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}

	return out
}
