package model

import "time"

// Room groups devices for joint control. Membership is stored twice (the
// room's id list and each member's back-reference); the two sides converge
// through repair passes rather than transactions.
type Room struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DeviceIDs   []string `json:"device_ids,omitempty"`
	DeviceCount int      `json:"device_count"`

	// Model is the allowed-model constraint. Empty means unconstrained
	// (which is always the case for an empty room).
	Model string `json:"model,omitempty"`

	// On is the aggregate power flag: logical AND over every member.
	On bool `json:"on"`

	Spectral *SpectralConfig `json:"spectral,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDevice reports whether id appears in the member list.
func (r *Room) HasDevice(id string) bool {
	for _, existing := range r.DeviceIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// Touch updates the modification timestamp.
func (r *Room) Touch() {
	r.UpdatedAt = time.Now().UTC()
}
