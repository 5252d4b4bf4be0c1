package link

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"spectrald/internal/eventbus"
	"spectrald/internal/model"
)

// StartMonitor begins polling the device's status. Each snapshot updates
// the stored record while preserving the locally-known room assignment.
// The monitor runs until StopMonitor, Close, or removal of the record;
// a failed poll marks this device offline and nothing else.
func (m *Manager) StartMonitor(deviceID string) error {
	d, err := m.devices.Get(deviceID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("device %s not found", deviceID)
	}

	m.mu.Lock()
	if c, ok := m.conns[deviceID]; ok && c.state == StateMonitoring {
		m.mu.Unlock()
		return nil
	}
	mctx, cancel := context.WithCancel(m.ctx)
	c := &conn{state: StateMonitoring, cancel: cancel, done: make(chan struct{})}
	m.conns[deviceID] = c
	m.mu.Unlock()

	go m.monitorLoop(mctx, d, c)
	return nil
}

// StopMonitor cancels the device's monitor, if any, and waits for it to
// exit. Other devices' monitors are unaffected.
func (m *Manager) StopMonitor(deviceID string) {
	m.mu.Lock()
	c, ok := m.conns[deviceID]
	if !ok || c.state != StateMonitoring {
		m.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Manager) monitorLoop(ctx context.Context, d *model.Device, c *conn) {
	defer close(c.done)
	defer m.setState(d.ID, StateDisconnected)

	log.Debug().Str("device", d.ID).Msg("Monitor started")

	stream, err := m.tr.StreamStatus(ctx, d)
	if err != nil {
		log.Warn().Err(err).Str("device", d.ID).Msg("Failed to start status stream")
		m.markOffline(d.ID)
		return
	}

	wasOnline := d.Online
	for st := range stream {
		// Re-read the record each cycle: room assignment may have changed
		// since the stream started, and the fixture is never authoritative
		// for it.
		fresh, err := m.devices.Get(d.ID)
		if err != nil {
			log.Warn().Err(err).Str("device", d.ID).Msg("Failed to load device record")
			continue
		}
		if fresh == nil {
			// Record removed; monitoring ends with it.
			log.Debug().Str("device", d.ID).Msg("Device record removed, stopping monitor")
			m.state.SetConnected(d.ID, false)
			return
		}

		applyStatus(fresh, &st)
		if err := m.devices.Put(fresh); err != nil {
			log.Warn().Err(err).Str("device", d.ID).Msg("Failed to persist device snapshot")
			continue
		}

		m.state.SetConnected(d.ID, st.Online)
		switch {
		case st.Online && !wasOnline:
			m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceOnline, DeviceID: d.ID, RoomID: fresh.RoomID})
		case !st.Online && wasOnline:
			m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceOffline, DeviceID: d.ID, RoomID: fresh.RoomID})
		default:
			m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceUpdated, DeviceID: d.ID, RoomID: fresh.RoomID})
		}
		wasOnline = st.Online
	}

	log.Debug().Str("device", d.ID).Msg("Monitor stopped")
}

// markOffline flips the stored record and the connected pool for one
// device.
func (m *Manager) markOffline(deviceID string) {
	d, err := m.devices.Get(deviceID)
	if err == nil && d != nil && d.Online {
		d.Online = false
		if err := m.devices.Put(d); err != nil {
			log.Warn().Err(err).Str("device", deviceID).Msg("Failed to persist offline flag")
		}
	}
	m.state.SetConnected(deviceID, false)
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceOffline, DeviceID: deviceID})
}
