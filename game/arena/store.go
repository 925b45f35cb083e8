package arena

// Store is the authoritative mapping from waifu id to record. Only Machine mutates it.
//
// Get returns a copy; changes to it are not visible to the store. Update must apply
// the mutation to all fields together or not at all.
type Store interface {
	Count() (uint64, error)
	Get(id uint64) (*Waifu, error)
	// Create allocates the next sequential id and inserts NewWaifu(id, g).
	Create(g Genesis) (uint64, error)
	Update(id uint64, mutate func(w *Waifu) error) error
}

// MemStore is an in-process Store backed by a dense slice.
// It is not safe for concurrent use; the host serializes actions.
type MemStore struct {
	waifus []*Waifu
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Count() (uint64, error) {
	return uint64(len(s.waifus)), nil
}

func (s *MemStore) Get(id uint64) (*Waifu, error) {
	if id >= uint64(len(s.waifus)) {
		return nil, ErrEntityNotFound
	}
	return s.waifus[id].Clone(), nil
}

func (s *MemStore) Create(g Genesis) (uint64, error) {
	id := uint64(len(s.waifus))
	s.waifus = append(s.waifus, NewWaifu(id, g))
	return id, nil
}

// Update mutates a copy and swaps it in only when mutate succeeds.
func (s *MemStore) Update(id uint64, mutate func(w *Waifu) error) error {
	if id >= uint64(len(s.waifus)) {
		return ErrEntityNotFound
	}
	next := s.waifus[id].Clone()
	if err := mutate(next); err != nil {
		return err
	}
	next.ID = id
	s.waifus[id] = next
	return nil
}

// All returns copies of every record in id order.
func (s *MemStore) All() []*Waifu {
	out := make([]*Waifu, len(s.waifus))
	for i, w := range s.waifus {
		out[i] = w.Clone()
	}
	return out
}
