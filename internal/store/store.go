// Package store persists device and room records as independent JSON
// documents with single-record get/put semantics. No multi-record
// transaction is offered or assumed; callers follow multi-record
// mutations with a repair pass instead.
package store

import "spectrald/internal/model"

// Devices is the device record store. Get returns (nil, nil) when the
// record does not exist.
type Devices interface {
	Get(id string) (*model.Device, error)
	Put(d *model.Device) error
	Delete(id string) (bool, error)
	List() ([]*model.Device, error)
	ListIDs() ([]string, error)
}

// Rooms is the room record store. Get returns (nil, nil) when the record
// does not exist.
type Rooms interface {
	Get(id string) (*model.Room, error)
	Put(r *model.Room) error
	Delete(id string) (bool, error)
	List() ([]*model.Room, error)
	ListIDs() ([]string, error)
}

// Snapshots holds per-device channel snapshots captured on power-off.
// Get returns (nil, nil) when no snapshot exists.
type Snapshots interface {
	Put(deviceID string, values []int) error
	Get(deviceID string) ([]int, error)
	Delete(deviceID string) (bool, error)
}
