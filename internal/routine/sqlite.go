package routine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore is the SQLite-backed routine store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a routine store on the given connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get retrieves a routine, or (nil, nil) when absent.
func (s *SQLiteStore) Get(id string) (*Routine, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM routines WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get routine: %w", err)
	}
	return unmarshalRoutine([]byte(payload))
}

// Put stores a routine, replacing any existing one.
func (s *SQLiteStore) Put(r *Routine) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal routine: %w", err)
	}

	now := time.Now().UTC().Unix()
	_, err = s.db.Exec(`
		INSERT INTO routines (id, room_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			room_id = excluded.room_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, r.ID, r.RoomID, string(data), now)
	if err != nil {
		return fmt.Errorf("failed to store routine: %w", err)
	}
	return nil
}

// Delete removes a routine. Returns true if it existed.
func (s *SQLiteStore) Delete(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete routine: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ListByRoom returns every routine targeting the given room.
func (s *SQLiteStore) ListByRoom(roomID string) ([]*Routine, error) {
	rows, err := s.db.Query(`SELECT payload FROM routines WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	defer rows.Close()
	return scanRoutines(rows)
}

// DeleteByRoom removes every routine targeting the given room. Returns
// how many were removed.
func (s *SQLiteStore) DeleteByRoom(roomID string) (int, error) {
	result, err := s.db.Exec(`DELETE FROM routines WHERE room_id = ?`, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete room routines: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// List returns every routine.
func (s *SQLiteStore) List() ([]*Routine, error) {
	rows, err := s.db.Query(`SELECT payload FROM routines`)
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	defer rows.Close()
	return scanRoutines(rows)
}

func scanRoutines(rows *sql.Rows) ([]*Routine, error) {
	var routines []*Routine
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan routine: %w", err)
		}
		r, err := unmarshalRoutine([]byte(payload))
		if err != nil {
			return nil, err
		}
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

func unmarshalRoutine(payload []byte) (*Routine, error) {
	var r Routine
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal routine: %w", err)
	}
	return &r, nil
}
