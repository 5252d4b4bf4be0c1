package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"spectrald/internal/model"
)

// memoryDocs is a mutex-guarded map of JSON documents. Records round-trip
// through JSON so callers always get independent copies, matching the
// SQLite stores' semantics.
type memoryDocs struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func (m *memoryDocs) get(id string, out any) (bool, error) {
	m.mu.RLock()
	payload, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return true, nil
}

func (m *memoryDocs) put(id string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", id, err)
	}
	m.mu.Lock()
	m.docs[id] = payload
	m.mu.Unlock()
	return nil
}

func (m *memoryDocs) delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[id]
	delete(m.docs, id)
	return ok
}

func (m *memoryDocs) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	return ids
}

// MemoryDevices is an in-memory device store, used in tests and for
// ephemeral sessions.
type MemoryDevices struct {
	docs memoryDocs
}

// NewMemoryDevices creates an empty in-memory device store.
func NewMemoryDevices() *MemoryDevices {
	return &MemoryDevices{docs: memoryDocs{docs: make(map[string][]byte)}}
}

func (s *MemoryDevices) Get(id string) (*model.Device, error) {
	var d model.Device
	ok, err := s.docs.get(id, &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

func (s *MemoryDevices) Put(d *model.Device) error {
	return s.docs.put(d.ID, d)
}

func (s *MemoryDevices) Delete(id string) (bool, error) {
	return s.docs.delete(id), nil
}

func (s *MemoryDevices) List() ([]*model.Device, error) {
	var devices []*model.Device
	for _, id := range s.docs.ids() {
		d, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

func (s *MemoryDevices) ListIDs() ([]string, error) {
	return s.docs.ids(), nil
}

// MemoryRooms is an in-memory room store.
type MemoryRooms struct {
	docs memoryDocs
}

// NewMemoryRooms creates an empty in-memory room store.
func NewMemoryRooms() *MemoryRooms {
	return &MemoryRooms{docs: memoryDocs{docs: make(map[string][]byte)}}
}

func (s *MemoryRooms) Get(id string) (*model.Room, error) {
	var r model.Room
	ok, err := s.docs.get(id, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func (s *MemoryRooms) Put(r *model.Room) error {
	return s.docs.put(r.ID, r)
}

func (s *MemoryRooms) Delete(id string) (bool, error) {
	return s.docs.delete(id), nil
}

func (s *MemoryRooms) List() ([]*model.Room, error) {
	var rooms []*model.Room
	for _, id := range s.docs.ids() {
		r, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

func (s *MemoryRooms) ListIDs() ([]string, error) {
	return s.docs.ids(), nil
}

// MemorySnapshots is an in-memory channel snapshot store.
type MemorySnapshots struct {
	mu    sync.RWMutex
	items map[string][]int
}

// NewMemorySnapshots creates an empty in-memory snapshot store.
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{items: make(map[string][]int)}
}

func (s *MemorySnapshots) Put(deviceID string, values []int) error {
	s.mu.Lock()
	s.items[deviceID] = append([]int(nil), values...)
	s.mu.Unlock()
	return nil
}

func (s *MemorySnapshots) Get(deviceID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.items[deviceID]
	if !ok {
		return nil, nil
	}
	return append([]int(nil), values...), nil
}

func (s *MemorySnapshots) Delete(deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[deviceID]
	delete(s.items, deviceID)
	return ok, nil
}
