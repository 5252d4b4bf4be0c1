// Package room coordinates multi-device operations: assignment, power
// toggling and spectral edits across a room's device set. Every mutating
// operation either commits and triggers a repair pass, or rejects with an
// attributable error and leaves prior state intact. Record writes are
// serialized through the orchestrator; hardware fan-outs run concurrently
// with independent per-device failures.
package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"spectrald/internal/engine"
	"spectrald/internal/eventbus"
	"spectrald/internal/link"
	"spectrald/internal/model"
	"spectrald/internal/repair"
	"spectrald/internal/routine"
	"spectrald/internal/store"
)

// Orchestrator owns all room-level mutations.
type Orchestrator struct {
	devices  store.Devices
	rooms    store.Rooms
	routines routine.Store
	link     *link.Manager
	state    *engine.State
	bus      *eventbus.Bus

	// Serializes read-modify-write sequences over the record stores.
	mu sync.Mutex
}

// New creates an orchestrator over the given collaborators.
func New(
	devices store.Devices,
	rooms store.Rooms,
	routines routine.Store,
	lm *link.Manager,
	state *engine.State,
	bus *eventbus.Bus,
) *Orchestrator {
	return &Orchestrator{
		devices:  devices,
		rooms:    rooms,
		routines: routines,
		link:     lm,
		state:    state,
		bus:      bus,
	}
}

// CreateRoom creates an empty, unconstrained room. Names are unique
// case-insensitively.
func (o *Orchestrator) CreateRoom(name string) (*model.Room, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Validationf("room name must not be empty")
	}
	existing, err := o.rooms.List()
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if strings.EqualFold(r.Name, name) {
			return nil, Validationf("room name %q is already taken", name)
		}
	}

	now := time.Now().UTC()
	r := &model.Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.rooms.Put(r); err != nil {
		return nil, err
	}

	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: r.ID})
	log.Info().Str("room", r.ID).Str("name", name).Msg("Room created")
	return r, nil
}

// RenameRoom changes a room's name, keeping the case-insensitive
// uniqueness guarantee. Member devices' denormalized room names are
// healed by the repair pass.
func (o *Orchestrator) RenameRoom(roomID, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return Validationf("room name must not be empty")
	}
	r, err := o.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if r == nil {
		return Validationf("room %s not found", roomID)
	}
	existing, err := o.rooms.List()
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != roomID && strings.EqualFold(other.Name, name) {
			return Validationf("room name %q is already taken", name)
		}
	}

	r.Name = name
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}

	o.repairLocked()
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
	return nil
}

// DeleteRoom removes a room, unassigns its members and cascades the
// room's routines.
func (o *Orchestrator) DeleteRoom(roomID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, err := o.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if r == nil {
		return Validationf("room %s not found", roomID)
	}

	devices, err := o.devices.List()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.RoomID != roomID {
			continue
		}
		d.ClearRoom()
		if err := o.devices.Put(d); err != nil {
			log.Warn().Err(err).Str("device", d.ID).Msg("Failed to unassign device from deleted room")
		}
	}

	if n, err := o.routines.DeleteByRoom(roomID); err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("Failed to cascade routines")
	} else if n > 0 {
		log.Debug().Str("room", roomID).Int("routines", n).Msg("Cascaded room routines")
	}

	if _, err := o.rooms.Delete(roomID); err != nil {
		return err
	}

	o.link.Unbind(roomID)
	o.repairLocked()
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
	log.Info().Str("room", roomID).Msg("Room deleted")
	return nil
}

// AssignDevice puts a device into a room after validating the room's
// model constraint and, when the room carries spectral data, its bound
// model. Validation failures mutate nothing.
func (o *Orchestrator) AssignDevice(deviceID, roomID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	d, err := o.devices.Get(deviceID)
	if err != nil {
		return err
	}
	if d == nil {
		return Validationf("device %s not found", deviceID)
	}

	// Always validate against the current record, never a cached one.
	r, err := o.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if r == nil {
		return Validationf("room %s not found", roomID)
	}

	if r.Model != "" && d.Model != r.Model {
		return Validationf("device model %q does not match room %q allowed model %q",
			d.Model, r.Name, r.Model)
	}
	if r.Spectral != nil && r.Spectral.Profile.Model != "" && d.Model != r.Spectral.Profile.Model {
		return Validationf("device model %q does not match the room's spectral data model %q",
			d.Model, r.Spectral.Profile.Model)
	}

	d.RoomID = r.ID
	d.RoomName = r.Name
	if err := o.devices.Put(d); err != nil {
		return err
	}

	if !r.HasDevice(d.ID) {
		r.DeviceIDs = append(r.DeviceIDs, d.ID)
		r.DeviceCount = len(r.DeviceIDs)
	}
	if r.Model == "" {
		r.Model = d.Model
	}
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}

	o.repairLocked()
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID, DeviceID: deviceID})
	log.Info().Str("device", deviceID).Str("room", roomID).Msg("Device assigned")
	return nil
}

// UnassignDevice clears a device's room reference. A room emptied this
// way loses its spectral configuration entirely along with its model
// constraint.
func (o *Orchestrator) UnassignDevice(deviceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	d, err := o.devices.Get(deviceID)
	if err != nil {
		return err
	}
	if d == nil {
		return Validationf("device %s not found", deviceID)
	}
	if !d.Assigned() {
		return nil
	}

	roomID := d.RoomID
	d.ClearRoom()
	if err := o.devices.Put(d); err != nil {
		return err
	}

	r, err := o.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if r != nil {
		devices, err := o.devices.List()
		if err != nil {
			return err
		}
		repair.RoomMembership(r, devices)
		repair.RoomPowerFlag(r, devices)
		if r.DeviceCount == 0 {
			o.link.Unbind(r.ID)
		}
		r.Touch()
		if err := o.rooms.Put(r); err != nil {
			return err
		}
	}

	o.repairLocked()
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID, DeviceID: deviceID})
	log.Info().Str("device", deviceID).Str("room", roomID).Msg("Device unassigned")
	return nil
}

// RemoveDevice deletes the device record outright, stopping its monitor
// and healing whatever room referenced it.
func (o *Orchestrator) RemoveDevice(deviceID string) error {
	o.link.StopMonitor(deviceID)

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.devices.Delete(deviceID); err != nil {
		return err
	}
	o.state.SetConnected(deviceID, false)
	o.repairLocked()
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeDeviceOffline, DeviceID: deviceID})
	return nil
}

// ToggleRoomPower flips every member concurrently. The intended
// aggregate state is persisted first; afterwards the flag is reconciled
// against what the members actually report, so a transport failure shows
// up as a flag correction on the next repair rather than a stuck room.
func (o *Orchestrator) ToggleRoomPower(ctx context.Context, roomID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, err := o.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if r == nil {
		return Validationf("room %s not found", roomID)
	}

	target := !r.On
	r.On = target
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}

	members, err := o.roomMembers(roomID)
	if err != nil {
		return err
	}

	failures := o.link.FanOut(ctx, members, func(ctx context.Context, d *model.Device) error {
		if target {
			return o.link.PowerOn(ctx, d)
		}
		return o.link.PowerOff(ctx, d)
	})

	var errs []error
	for deviceID, ferr := range failures {
		log.Warn().Err(ferr).Str("device", deviceID).Str("room", roomID).Msg("Power toggle failed")
		o.state.SetError(ferr)
		errs = append(errs, ferr)
	}

	// Reconcile the persisted intent against reality.
	devices, err := o.devices.List()
	if err == nil {
		if repair.RoomPowerFlag(r, devices) {
			r.Touch()
			if perr := o.rooms.Put(r); perr != nil {
				log.Warn().Err(perr).Str("room", roomID).Msg("Failed to persist reconciled power flag")
			}
		}
	}

	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
	return errors.Join(errs...)
}

// RepairAll loads every record and runs the full consistency pass,
// persisting only what moved. Called on startup and after every
// multi-record mutation.
func (o *Orchestrator) RepairAll() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.repairLocked()
}

func (o *Orchestrator) repairLocked() error {
	rooms, err := o.rooms.List()
	if err != nil {
		return err
	}
	devices, err := o.devices.List()
	if err != nil {
		return err
	}

	res := repair.All(rooms, devices)
	for _, r := range res.Rooms {
		if err := o.rooms.Put(r); err != nil {
			log.Warn().Err(err).Str("room", r.ID).Msg("Failed to persist repaired room")
		}
	}
	for _, d := range res.Devices {
		if err := o.devices.Put(d); err != nil {
			log.Warn().Err(err).Str("device", d.ID).Msg("Failed to persist repaired device")
		}
	}

	if res.Dirty() {
		o.bus.Publish(eventbus.Event{Type: eventbus.TypeRepairDone})
	}
	return nil
}

func (o *Orchestrator) roomMembers(roomID string) ([]*model.Device, error) {
	devices, err := o.devices.List()
	if err != nil {
		return nil, err
	}
	var members []*model.Device
	for _, d := range devices {
		if d.RoomID == roomID {
			members = append(members, d)
		}
	}
	return members, nil
}

func (o *Orchestrator) onlineMembers(roomID string) ([]*model.Device, error) {
	members, err := o.roomMembers(roomID)
	if err != nil {
		return nil, err
	}
	var online []*model.Device
	for _, d := range members {
		if d.Online {
			online = append(online, d)
		}
	}
	return online, nil
}
