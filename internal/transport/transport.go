// Package transport speaks the fixture's local HTTP control protocol.
// Every operation is bounded by the client timeout and fails for that
// device only; callers are expected to treat failures as per-device and
// never let one fixture's outage block the rest of a fan-out.
package transport

import (
	"context"
	"fmt"

	"spectrald/internal/model"
)

// Status is one snapshot of a fixture's reported state. The fixture is
// authoritative for its channel layout and values, but never for room
// membership.
type Status struct {
	Online       bool     `json:"online"`
	Model        string   `json:"model,omitempty"`
	Firmware     string   `json:"firmware,omitempty"`
	ChannelCount int      `json:"channel_count"`
	ChannelNames []string `json:"channel_names,omitempty"`
	Values       []int    `json:"values,omitempty"`
	On           bool     `json:"on"`
}

// Error is a per-device transport failure with an attributable cause.
type Error struct {
	DeviceID string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.DeviceID, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps a low-level failure with device and operation context.
func NewError(deviceID, op string, err error) *Error {
	return &Error{DeviceID: deviceID, Op: op, Err: err}
}

// Transport is the device communication contract. Implementations must
// bound every call with a timeout; a timed-out call is a failure for that
// device only.
type Transport interface {
	// TestConnection probes reachability without mutating anything.
	TestConnection(ctx context.Context, d *model.Device) error

	// GetStatus fetches the fixture's current status document.
	GetStatus(ctx context.Context, d *model.Device) (*Status, error)

	// SetPower sends an explicit power command.
	SetPower(ctx context.Context, d *model.Device, on bool) error

	// SetChannel sets a single channel's duty cycle.
	SetChannel(ctx context.Context, d *model.Device, index, pwm int) error

	// SetChannels sets several channels as one logical operation.
	SetChannels(ctx context.Context, d *model.Device, values map[int]int) error

	// FetchProfileFile downloads the spectral profile document the
	// fixture serves, if any.
	FetchProfileFile(ctx context.Context, d *model.Device) ([]byte, error)

	// StreamStatus returns a sequence of status snapshots that runs until
	// ctx is cancelled. A failed poll yields an offline snapshot and the
	// stream keeps polling; the channel is closed only on cancellation.
	StreamStatus(ctx context.Context, d *model.Device) (<-chan Status, error)
}
