// Package routine stores scheduled room actions. Dispatch lives outside
// this core; the store only offers CRUD keyed by target room, and room
// deletion cascades here.
package routine

import "time"

// Action is what a routine does when it fires.
type Action string

const (
	ActionPowerOff      Action = "power_off"
	ActionPowerOnPreset Action = "power_on_preset"
)

// Routine is one scheduled action against a room.
type Routine struct {
	ID        string         `json:"id"`
	RoomID    string         `json:"room_id"`
	TimeOfDay string         `json:"time_of_day"` // "HH:MM", 24-hour
	Weekdays  []time.Weekday `json:"weekdays"`
	Action    Action         `json:"action"`
	PresetID  string         `json:"preset_id,omitempty"` // only for ActionPowerOnPreset
}

// Store is the schedule persistence contract.
type Store interface {
	Get(id string) (*Routine, error)
	Put(r *Routine) error
	Delete(id string) (bool, error)
	ListByRoom(roomID string) ([]*Routine, error)
	DeleteByRoom(roomID string) (int, error)
	List() ([]*Routine, error)
}
