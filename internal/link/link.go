// Package link drives communication with physical fixtures: per-device
// connection and monitoring state, debounced slider dispatch, batch
// updates and the two-phase power protocol. Each device moves through its
// states independently; one fixture failing never blocks or rolls back
// another.
package link

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"spectrald/internal/engine"
	"spectrald/internal/eventbus"
	"spectrald/internal/model"
	"spectrald/internal/store"
	"spectrald/internal/transport"
)

// ConnState is the per-device connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateMonitoring
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateMonitoring:
		return "monitoring"
	default:
		return "disconnected"
	}
}

// Config carries the link tunables.
type Config struct {
	DebounceWindow time.Duration // quiescence window for slider edits
	RateLimitRPS   float64       // outbound command budget across all devices
}

type conn struct {
	state  ConnState
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns every device connection.
type Manager struct {
	tr        transport.Transport
	devices   store.Devices
	snapshots store.Snapshots
	state     *engine.State
	bus       *eventbus.Bus
	limiter   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*conn

	// Spectral profiles of rooms with active configurations, keyed by
	// room id. The debounced flush resolves channel mappings against the
	// profile of the room each edit belongs to.
	profiles map[string]*model.SpectralProfile

	deb *debouncer
}

// NewManager creates a link manager. Close must be called to release the
// monitor goroutines and the debounce timer.
func NewManager(
	tr transport.Transport,
	devices store.Devices,
	snapshots store.Snapshots,
	state *engine.State,
	bus *eventbus.Bus,
	cfg Config,
) *Manager {
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = DebounceWindow
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 10.0
	}
	// Fractional rates must still allow single commands through.
	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		tr:        tr,
		devices:   devices,
		snapshots: snapshots,
		state:     state,
		bus:       bus,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[string]*conn),
		profiles:  make(map[string]*model.SpectralProfile),
	}
	m.deb = newDebouncer(cfg.DebounceWindow, m.flushSliders)
	return m
}

// State returns the connection state for a device.
func (m *Manager) State(deviceID string) ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[deviceID]; ok {
		return c.state
	}
	return StateDisconnected
}

func (m *Manager) setState(deviceID string, st ConnState) {
	m.mu.Lock()
	c, ok := m.conns[deviceID]
	if !ok {
		c = &conn{}
		m.conns[deviceID] = c
	}
	c.state = st
	m.mu.Unlock()
}

// Connect probes the device and, on success, admits it to the connected
// pool with a fresh status merged into its record. Failure surfaces an
// error for this device only.
func (m *Manager) Connect(ctx context.Context, d *model.Device) error {
	m.setState(d.ID, StateConnecting)

	if err := m.tr.TestConnection(ctx, d); err != nil {
		m.setState(d.ID, StateDisconnected)
		m.state.SetError(err)
		return err
	}

	st, err := m.tr.GetStatus(ctx, d)
	if err != nil {
		m.setState(d.ID, StateDisconnected)
		m.state.SetError(err)
		return err
	}

	applyStatus(d, st)
	if err := m.devices.Put(d); err != nil {
		m.setState(d.ID, StateDisconnected)
		return err
	}

	m.setState(d.ID, StateConnected)
	m.state.SetConnected(d.ID, true)
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceOnline, DeviceID: d.ID})

	log.Info().Str("device", d.ID).Str("model", d.Model).Msg("Device connected")
	return nil
}

// Bind records the room's spectral profile for debounced slider
// dispatch. A room without a configuration is unbound.
func (m *Manager) Bind(room *model.Room) {
	if room == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room.Spectral == nil {
		delete(m.profiles, room.ID)
		return
	}
	profile := room.Spectral.Profile
	m.profiles[room.ID] = &profile
}

// Unbind drops the room's profile binding, ending slider dispatch for it.
func (m *Manager) Unbind(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, roomID)
}

// Close cancels every monitor and pending debounce flush.
func (m *Manager) Close() {
	m.cancel()
	m.deb.close()

	m.mu.Lock()
	conns := make([]*conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		if c.done != nil {
			<-c.done
		}
	}
}

// applyStatus merges a fixture status into the local record. The fixture
// is not authoritative for room membership, so the room back-reference is
// left untouched.
func applyStatus(d *model.Device, st *transport.Status) {
	d.Online = st.Online
	if !st.Online {
		return
	}
	if st.Model != "" {
		d.Model = st.Model
	}
	if st.Firmware != "" {
		d.Firmware = st.Firmware
	}
	if st.ChannelCount > 0 {
		d.ChannelCount = st.ChannelCount
	}
	if len(st.ChannelNames) > 0 {
		d.ChannelNames = append([]string(nil), st.ChannelNames...)
	}
	if st.Values != nil {
		d.Channels = append([]int(nil), st.Values...)
	}
	d.On = st.On
	d.ClampChannels()
}
