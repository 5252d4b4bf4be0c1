// Package model defines the denormalized device and room records shared
// across the control core. Device and room records are persisted
// independently with no transactional guarantee; the repair package keeps
// their cross-references consistent.
package model

// MaxChannels is the hard upper bound on PWM channels per fixture.
const MaxChannels = 6

// DefaultPWM is the mid-scale duty cycle restored on power-on when no
// snapshot exists for the device.
const DefaultPWM = 128

// Device is a single networked multi-channel LED fixture.
type Device struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address,omitempty"`
	Online       bool     `json:"online"`
	Model        string   `json:"model,omitempty"`
	Firmware     string   `json:"firmware,omitempty"`
	ChannelCount int      `json:"channel_count"`
	ChannelNames []string `json:"channel_names,omitempty"`
	Channels     []int    `json:"channels,omitempty"`
	On           bool     `json:"on"`

	// Denormalized room back-reference. The device record, not the
	// fixture, is authoritative for room membership.
	RoomID   string `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`
}

// Assigned reports whether the device carries a room reference.
func (d *Device) Assigned() bool {
	return d.RoomID != ""
}

// ClearRoom removes the denormalized room reference.
func (d *Device) ClearRoom() {
	d.RoomID = ""
	d.RoomName = ""
}

// ClampChannels truncates the PWM vector to the declared channel count and
// the global maximum, and clamps every value into [0,255].
func (d *Device) ClampChannels() {
	limit := d.ChannelCount
	if limit > MaxChannels || limit <= 0 {
		limit = MaxChannels
	}
	if len(d.Channels) > limit {
		d.Channels = d.Channels[:limit]
	}
	for i, v := range d.Channels {
		if v < 0 {
			d.Channels[i] = 0
		} else if v > 255 {
			d.Channels[i] = 255
		}
	}
}
