package routine

import "sync"

// MemoryStore is an in-memory routine store used in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Routine
}

// NewMemoryStore creates an empty in-memory routine store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Routine)}
}

func (s *MemoryStore) Get(id string) (*Routine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	copied := r
	return &copied, nil
}

func (s *MemoryStore) Put(r *Routine) error {
	s.mu.Lock()
	s.items[r.ID] = *r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok, nil
}

func (s *MemoryStore) ListByRoom(roomID string) ([]*Routine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var routines []*Routine
	for _, r := range s.items {
		if r.RoomID == roomID {
			copied := r
			routines = append(routines, &copied)
		}
	}
	return routines, nil
}

func (s *MemoryStore) DeleteByRoom(roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, r := range s.items {
		if r.RoomID == roomID {
			delete(s.items, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) List() ([]*Routine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var routines []*Routine
	for _, r := range s.items {
		copied := r
		routines = append(routines, &copied)
	}
	return routines, nil
}
