// Package repair reconciles the denormalized device/room records against
// the authoritative device list. Device and room records are written
// independently with no transactions, so partial failures leave drift:
// stale member lists, wrong counts, references to deleted rooms. Every
// function here is idempotent and safe to run on every load and after
// every mutating operation; drift is healed silently, never surfaced as
// an error.
package repair

import (
	"sort"

	"github.com/rs/zerolog/log"

	"spectrald/internal/model"
)

// OrphanedDevices clears the room reference of any device pointing at a
// room id that no longer exists. Returns the devices it changed.
func OrphanedDevices(devices []*model.Device, roomIDs map[string]struct{}) []*model.Device {
	var changed []*model.Device
	for _, d := range devices {
		if d.RoomID == "" {
			continue
		}
		if _, ok := roomIDs[d.RoomID]; ok {
			continue
		}
		log.Debug().Str("device", d.ID).Str("room", d.RoomID).Msg("Healing orphaned room reference")
		d.ClearRoom()
		changed = append(changed, d)
	}
	return changed
}

// RoomMembership recomputes the room's member list, count and allowed
// model from the authoritative device list. The allowed model becomes the
// first member's model; a room that ends up empty is unconstrained in
// both model and spectrum, so its spectral configuration is discarded
// along with the constraint. Reports whether the room record was
// modified.
func RoomMembership(room *model.Room, devices []*model.Device) bool {
	var memberIDs []string
	allowedModel := ""
	for _, d := range devices {
		if d.RoomID != room.ID {
			continue
		}
		memberIDs = append(memberIDs, d.ID)
		if allowedModel == "" {
			allowedModel = d.Model
		}
	}

	changed := room.DeviceCount != len(memberIDs) ||
		room.Model != allowedModel ||
		!sameIDSet(room.DeviceIDs, memberIDs)

	if len(memberIDs) == 0 && room.Spectral != nil {
		log.Debug().Str("room", room.ID).Msg("Discarding spectral configuration of emptied room")
		room.Spectral = nil
		changed = true
	}
	if !changed {
		return false
	}

	room.DeviceIDs = memberIDs
	room.DeviceCount = len(memberIDs)
	room.Model = allowedModel
	return true
}

// RoomPowerFlag recomputes the aggregate power flag: logical AND over
// every member, false for an empty room. Reports whether the flag
// changed.
func RoomPowerFlag(room *model.Room, devices []*model.Device) bool {
	on := false
	members := 0
	for _, d := range devices {
		if d.RoomID != room.ID {
			continue
		}
		if members == 0 {
			on = true
		}
		members++
		on = on && d.On
	}

	if room.On == on {
		return false
	}
	room.On = on
	return true
}

// Result lists the records a repair pass modified. Unchanged records are
// omitted so callers persist only what actually moved.
type Result struct {
	Rooms   []*model.Room
	Devices []*model.Device
}

// Dirty reports whether the pass modified anything.
func (r *Result) Dirty() bool {
	return len(r.Rooms) > 0 || len(r.Devices) > 0
}

// All runs the full repair pass over every room and device: orphaned
// references first, then per-room membership, power flag and the
// denormalized room name carried on each member.
func All(rooms []*model.Room, devices []*model.Device) Result {
	roomIDs := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		roomIDs[r.ID] = struct{}{}
	}

	var res Result
	changedDevices := make(map[string]*model.Device)
	for _, d := range OrphanedDevices(devices, roomIDs) {
		changedDevices[d.ID] = d
	}

	for _, room := range rooms {
		dirty := RoomMembership(room, devices)
		if RoomPowerFlag(room, devices) {
			dirty = true
		}
		if dirty {
			room.Touch()
			res.Rooms = append(res.Rooms, room)
		}

		for _, d := range devices {
			if d.RoomID == room.ID && d.RoomName != room.Name {
				d.RoomName = room.Name
				changedDevices[d.ID] = d
			}
		}
	}

	for _, d := range devices {
		if cd, ok := changedDevices[d.ID]; ok {
			res.Devices = append(res.Devices, cd)
			delete(changedDevices, d.ID)
		}
	}

	if res.Dirty() {
		log.Debug().
			Int("rooms", len(res.Rooms)).
			Int("devices", len(res.Devices)).
			Msg("Repair pass healed records")
	}
	return res
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
