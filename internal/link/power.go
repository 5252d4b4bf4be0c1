package link

import (
	"context"

	"github.com/rs/zerolog/log"

	"spectrald/internal/eventbus"
	"spectrald/internal/model"
)

// PowerOff runs the off half of the two-phase power protocol: snapshot
// the current channel values into durable storage, zero every channel,
// then send the explicit power-off command.
func (m *Manager) PowerOff(ctx context.Context, d *model.Device) error {
	snapshot := channelSnapshot(d)
	if err := m.snapshots.Put(d.ID, snapshot); err != nil {
		return err
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	zeros := make(map[int]int, len(snapshot))
	for i := range snapshot {
		zeros[i] = 0
	}
	if len(zeros) > 0 {
		if err := m.tr.SetChannels(ctx, d, zeros); err != nil {
			return err
		}
	}
	if err := m.tr.SetPower(ctx, d, false); err != nil {
		return err
	}

	fresh, err := m.devices.Get(d.ID)
	if err != nil || fresh == nil {
		return err
	}
	fresh.On = false
	for i := range fresh.Channels {
		fresh.Channels[i] = 0
	}
	if err := m.devices.Put(fresh); err != nil {
		return err
	}

	m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceUpdated, DeviceID: d.ID, RoomID: fresh.RoomID})
	log.Debug().Str("device", d.ID).Int("snapshot", len(snapshot)).Msg("Device powered off")
	return nil
}

// PowerOn runs the on half: send the explicit power-on command first,
// then restore the stored snapshot filtered to the channel count the
// device reports right now — never raw stale values — or mid-scale
// defaults when no snapshot exists.
func (m *Manager) PowerOn(ctx context.Context, d *model.Device) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := m.tr.SetPower(ctx, d, true); err != nil {
		return err
	}

	// The channel count is authoritative only from the latest status
	// fetch; a snapshot taken under an older firmware or layout must not
	// leak past it.
	count := d.ChannelCount
	if st, err := m.tr.GetStatus(ctx, d); err == nil && st.ChannelCount > 0 {
		count = st.ChannelCount
	}
	if count > model.MaxChannels {
		count = model.MaxChannels
	}

	stored, err := m.snapshots.Get(d.ID)
	if err != nil {
		return err
	}

	values := make(map[int]int, count)
	if stored != nil {
		for i := 0; i < count && i < len(stored); i++ {
			values[i] = stored[i]
		}
	} else {
		for i := 0; i < count; i++ {
			values[i] = model.DefaultPWM
		}
	}

	if len(values) > 0 {
		if err := m.tr.SetChannels(ctx, d, values); err != nil {
			return err
		}
	}

	fresh, err := m.devices.Get(d.ID)
	if err != nil || fresh == nil {
		return err
	}
	fresh.On = true
	fresh.ChannelCount = count
	fresh.Channels = make([]int, 0, count)
	for i := 0; i < count; i++ {
		fresh.Channels = append(fresh.Channels, values[i])
	}
	fresh.ClampChannels()
	if err := m.devices.Put(fresh); err != nil {
		return err
	}

	m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceUpdated, DeviceID: d.ID, RoomID: fresh.RoomID})
	log.Debug().Str("device", d.ID).Int("channels", count).Bool("from_snapshot", stored != nil).Msg("Device powered on")
	return nil
}

// channelSnapshot copies the device's current per-channel values,
// truncated to its declared channel count.
func channelSnapshot(d *model.Device) []int {
	limit := d.ChannelCount
	if limit > model.MaxChannels {
		limit = model.MaxChannels
	}
	if limit > len(d.Channels) {
		limit = len(d.Channels)
	}
	return append([]int(nil), d.Channels[:limit]...)
}
