package engine

import (
	"errors"
	"testing"
	"time"

	"spectrald/internal/spectral"
)

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestState_ConnectedPool(t *testing.T) {
	s := NewState()
	s.SetConnected("d2", true)
	s.SetConnected("d1", true)

	snap := s.Snapshot()
	if len(snap.Connected) != 2 || snap.Connected[0] != "d1" || snap.Connected[1] != "d2" {
		t.Errorf("Connected = %v, want [d1 d2]", snap.Connected)
	}

	s.SetConnected("d1", false)
	if s.Connected("d1") {
		t.Error("d1 should be disconnected")
	}
	if !s.Connected("d2") {
		t.Error("d2 should remain connected")
	}
}

func TestState_ErrorSetAndClear(t *testing.T) {
	s := NewState()
	s.SetError(errors.New("fixture unreachable"))
	if got := s.Snapshot().Err; got != "fixture unreachable" {
		t.Errorf("Err = %q", got)
	}
	s.SetError(nil)
	if got := s.Snapshot().Err; got != "" {
		t.Errorf("Err = %q, want empty", got)
	}
}

func TestState_SubscribeReceivesChanges(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.SetConnected("d1", true)
	snap := waitSnapshot(t, ch)
	if len(snap.Connected) != 1 || snap.Connected[0] != "d1" {
		t.Errorf("Connected = %v, want [d1]", snap.Connected)
	}

	s.SetGraph([]spectral.Point{{Wavelength: 660, Intensity: 1}})
	snap = waitSnapshot(t, ch)
	if len(snap.Graph) != 1 || snap.Graph[0].Wavelength != 660 {
		t.Errorf("Graph = %v", snap.Graph)
	}
}

func TestState_SlowSubscriberGetsLatest(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	defer cancel()

	// Without draining, consecutive changes must not block the writer.
	s.SetConnected("d1", true)
	s.SetConnected("d2", true)
	s.SetConnected("d3", true)

	var snap Snapshot
	for {
		select {
		case got := <-ch:
			snap = got
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}
	if len(snap.Connected) != 3 {
		t.Errorf("latest snapshot Connected = %v, want 3 devices", snap.Connected)
	}
}

func TestState_CancelStopsDelivery(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	cancel()

	s.SetConnected("d1", true)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestState_SnapshotIsACopy(t *testing.T) {
	s := NewState()
	s.SetGraph([]spectral.Point{{Wavelength: 450, Intensity: 0.5}})

	snap := s.Snapshot()
	snap.Graph[0].Intensity = 99

	if got := s.Snapshot().Graph[0].Intensity; got != 0.5 {
		t.Errorf("container state mutated through snapshot: %v", got)
	}
}
