package link

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"spectrald/internal/eventbus"
	"spectrald/internal/model"
	"spectrald/internal/spectral"
)

// FanOut runs fn once per device concurrently and returns per-device
// failures. A failing device never cancels or delays its siblings, and
// no ordering across devices is guaranteed.
func (m *Manager) FanOut(ctx context.Context, devices []*model.Device, fn func(context.Context, *model.Device) error) map[string]error {
	type result struct {
		deviceID string
		err      error
	}

	results := make(chan result, len(devices))
	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func(d *model.Device) {
			defer wg.Done()
			results <- result{deviceID: d.ID, err: fn(ctx, d)}
		}(d)
	}
	wg.Wait()
	close(results)

	failures := make(map[string]error)
	for r := range results {
		if r.err != nil {
			failures[r.deviceID] = r.err
		}
	}
	return failures
}

// BatchUpdate sends all channel changes for one device as a single
// logical operation, bypassing the debounce path. The stored record is
// updated to match on success.
func (m *Manager) BatchUpdate(ctx context.Context, d *model.Device, values map[int]int) error {
	if len(values) == 0 {
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := m.tr.SetChannels(ctx, d, values); err != nil {
		return err
	}

	fresh, err := m.devices.Get(d.ID)
	if err != nil || fresh == nil {
		return err
	}
	applyChannelValues(fresh, values)
	if err := m.devices.Put(fresh); err != nil {
		return err
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceUpdated, DeviceID: d.ID, RoomID: fresh.RoomID})
	return nil
}

// SliderChanged records a slider edit for one room. The edit is
// coalesced: commands reach hardware only after the stream has been
// quiet for the debounce window, and only the edited room's devices
// receive them.
func (m *Manager) SliderChanged(roomID, source string, value float64) {
	m.deb.edit(roomID, source, spectral.Clamp01(value))
}

// FetchProfile downloads the calibration document a fixture serves,
// subject to the same outbound rate limit as commands.
func (m *Manager) FetchProfile(ctx context.Context, d *model.Device) ([]byte, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return m.tr.FetchProfileFile(ctx, d)
}

// flushSliders translates the coalesced edits into per-device PWM batches
// and fans them out to every online device bound to the session room.
func (m *Manager) flushSliders(roomID string, pending map[string]float64) {
	m.mu.Lock()
	profile := m.profiles[roomID]
	m.mu.Unlock()
	if profile == nil {
		log.Debug().Str("room", roomID).Msg("No profile bound for room, dropping slider flush")
		return
	}

	all, err := m.devices.List()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices for slider flush")
		return
	}

	var targets []*model.Device
	for _, d := range all {
		if d.RoomID == roomID && d.Online {
			targets = append(targets, d)
		}
	}
	if len(targets) == 0 {
		return
	}

	log.Debug().
		Str("room", roomID).
		Int("sources", len(pending)).
		Int("devices", len(targets)).
		Msg("Flushing debounced slider edits")

	failures := m.FanOut(m.ctx, targets, func(ctx context.Context, d *model.Device) error {
		return m.BatchUpdate(ctx, d, BuildChannelValues(profile, pending, d))
	})

	for deviceID, err := range failures {
		log.Warn().Err(err).Str("device", deviceID).Msg("Slider dispatch failed")
		m.state.SetError(err)
	}
}

// applyChannelValues writes the batched values into the record's channel
// vector, growing it up to the declared channel count where needed.
func applyChannelValues(d *model.Device, values map[int]int) {
	for idx, pwm := range values {
		if idx < 0 || idx >= d.ChannelCount || idx >= model.MaxChannels {
			continue
		}
		for len(d.Channels) <= idx {
			d.Channels = append(d.Channels, 0)
		}
		d.Channels[idx] = pwm
	}
	d.ClampChannels()
}
