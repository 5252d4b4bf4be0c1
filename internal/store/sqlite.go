package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"spectrald/internal/model"
)

// SQLiteDevices is the SQLite-backed device store.
type SQLiteDevices struct {
	db *sql.DB
}

// NewSQLiteDevices creates a device store on the given connection.
func NewSQLiteDevices(db *sql.DB) *SQLiteDevices {
	return &SQLiteDevices{db: db}
}

// Get retrieves a device record, or (nil, nil) when absent.
func (s *SQLiteDevices) Get(id string) (*model.Device, error) {
	payload, err := getPayload(s.db, "devices", "id", id)
	if err != nil || payload == nil {
		return nil, err
	}

	var d model.Device
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device %s: %w", id, err)
	}
	return &d, nil
}

// Put stores a device record, replacing any existing one.
func (s *SQLiteDevices) Put(d *model.Device) error {
	return putPayload(s.db, "devices", "id", d.ID, d)
}

// Delete removes a device record. Returns true if it existed.
func (s *SQLiteDevices) Delete(id string) (bool, error) {
	return deleteRow(s.db, "devices", "id", id)
}

// List returns every device record.
func (s *SQLiteDevices) List() ([]*model.Device, error) {
	payloads, err := listPayloads(s.db, "devices")
	if err != nil {
		return nil, err
	}

	devices := make([]*model.Device, 0, len(payloads))
	for _, payload := range payloads {
		var d model.Device
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal device record: %w", err)
		}
		devices = append(devices, &d)
	}
	return devices, nil
}

// ListIDs returns every stored device id.
func (s *SQLiteDevices) ListIDs() ([]string, error) {
	return listIDs(s.db, "devices", "id")
}

// SQLiteRooms is the SQLite-backed room store.
type SQLiteRooms struct {
	db *sql.DB
}

// NewSQLiteRooms creates a room store on the given connection.
func NewSQLiteRooms(db *sql.DB) *SQLiteRooms {
	return &SQLiteRooms{db: db}
}

// Get retrieves a room record, or (nil, nil) when absent.
func (s *SQLiteRooms) Get(id string) (*model.Room, error) {
	payload, err := getPayload(s.db, "rooms", "id", id)
	if err != nil || payload == nil {
		return nil, err
	}

	var r model.Room
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room %s: %w", id, err)
	}
	return &r, nil
}

// Put stores a room record, replacing any existing one.
func (s *SQLiteRooms) Put(r *model.Room) error {
	return putPayload(s.db, "rooms", "id", r.ID, r)
}

// Delete removes a room record. Returns true if it existed.
func (s *SQLiteRooms) Delete(id string) (bool, error) {
	return deleteRow(s.db, "rooms", "id", id)
}

// List returns every room record.
func (s *SQLiteRooms) List() ([]*model.Room, error) {
	payloads, err := listPayloads(s.db, "rooms")
	if err != nil {
		return nil, err
	}

	rooms := make([]*model.Room, 0, len(payloads))
	for _, payload := range payloads {
		var r model.Room
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal room record: %w", err)
		}
		rooms = append(rooms, &r)
	}
	return rooms, nil
}

// ListIDs returns every stored room id.
func (s *SQLiteRooms) ListIDs() ([]string, error) {
	return listIDs(s.db, "rooms", "id")
}

// SQLiteSnapshots is the SQLite-backed channel snapshot store.
type SQLiteSnapshots struct {
	db *sql.DB
}

// NewSQLiteSnapshots creates a snapshot store on the given connection.
func NewSQLiteSnapshots(db *sql.DB) *SQLiteSnapshots {
	return &SQLiteSnapshots{db: db}
}

// Put stores the channel snapshot for a device.
func (s *SQLiteSnapshots) Put(deviceID string, values []int) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	now := time.Now().UTC().Unix()
	_, err = s.db.Exec(`
		INSERT INTO channel_snapshots (device_id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at
	`, deviceID, string(data), now)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Get retrieves the channel snapshot for a device, or (nil, nil).
func (s *SQLiteSnapshots) Get(deviceID string) ([]int, error) {
	var payload string
	err := s.db.QueryRow(`
		SELECT payload FROM channel_snapshots WHERE device_id = ?
	`, deviceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var values []int
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return values, nil
}

// Delete removes the snapshot for a device. Returns true if it existed.
func (s *SQLiteSnapshots) Delete(deviceID string) (bool, error) {
	return deleteRow(s.db, "channel_snapshots", "device_id", deviceID)
}

func getPayload(db *sql.DB, table, keyCol, id string) ([]byte, error) {
	var payload string
	err := db.QueryRow(
		fmt.Sprintf(`SELECT payload FROM %s WHERE %s = ?`, table, keyCol), id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s record: %w", table, err)
	}
	return []byte(payload), nil
}

func putPayload(db *sql.DB, table, keyCol, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", table, err)
	}

	now := time.Now().UTC().Unix()
	_, err = db.Exec(fmt.Sprintf(`
		INSERT INTO %s (%s, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(%s) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, table, keyCol, keyCol), id, string(data), now)
	if err != nil {
		return fmt.Errorf("failed to store %s record: %w", table, err)
	}
	return nil
}

func deleteRow(db *sql.DB, table, keyCol, id string) (bool, error) {
	result, err := db.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, keyCol), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s record: %w", table, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func listPayloads(db *sql.DB, table string) ([][]byte, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT payload FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", table, err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", table, err)
		}
		payloads = append(payloads, []byte(payload))
	}
	return payloads, rows.Err()
}

func listIDs(db *sql.DB, table, keyCol string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM %s`, keyCol, table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
