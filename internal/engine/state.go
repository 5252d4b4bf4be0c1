// Package engine holds the externally observable session state: the pool
// of connected devices, the last surfaced error and the last computed
// output curve. The container is the single owner of this state; it is
// mutated only through its methods and observed read-only through
// snapshots delivered to subscribers.
package engine

import (
	"sort"
	"sync"

	"spectrald/internal/spectral"
)

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Connected []string         `json:"connected"`
	Err       string           `json:"error,omitempty"`
	Graph     []spectral.Point `json:"graph,omitempty"`
}

// State is the authoritative mutable session state.
type State struct {
	mu        sync.RWMutex
	connected map[string]bool
	lastErr   string
	graph     []spectral.Point

	subs    map[int]chan Snapshot
	nextSub int
}

// NewState creates an empty state container.
func NewState() *State {
	return &State{
		connected: make(map[string]bool),
		subs:      make(map[int]chan Snapshot),
	}
}

// SetConnected adds or removes a device from the connected pool.
func (s *State) SetConnected(deviceID string, connected bool) {
	s.mu.Lock()
	if connected {
		s.connected[deviceID] = true
	} else {
		delete(s.connected, deviceID)
	}
	s.mu.Unlock()
	s.publish()
}

// Connected reports whether the device is in the connected pool.
func (s *State) Connected(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected[deviceID]
}

// SetGraph replaces the last computed output curve.
func (s *State) SetGraph(points []spectral.Point) {
	s.mu.Lock()
	s.graph = append([]spectral.Point(nil), points...)
	s.mu.Unlock()
	s.publish()
}

// SetError records the last surfaced error. A nil error clears it.
func (s *State) SetError(err error) {
	s.mu.Lock()
	if err == nil {
		s.lastErr = ""
	} else {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
	s.publish()
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	connected := make([]string, 0, len(s.connected))
	for id := range s.connected {
		connected = append(connected, id)
	}
	sort.Strings(connected)

	return Snapshot{
		Connected: connected,
		Err:       s.lastErr,
		Graph:     append([]spectral.Point(nil), s.graph...),
	}
}

// Subscribe registers an observer. The returned channel receives a
// snapshot after every state change; slow observers miss intermediate
// snapshots rather than blocking the writer. The cancel function must be
// called exactly once to release the subscription.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *State) publish() {
	s.mu.RLock()
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Observer still holds an older snapshot; replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	s.mu.RUnlock()
}
