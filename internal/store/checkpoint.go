package store

import (
	"database/sql"
	"strconv"
	"time"
)

// RoomIndexCheckpoint is the sync_state key under which the room index
// persists its processed-id high-water mark across restarts.
const RoomIndexCheckpoint = "room_index.high_water"

// SetCheckpoint upserts a sync checkpoint value.
func (db *DB) SetCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value; empty when unset.
func (db *DB) GetCheckpoint(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// HighWaterCheckpoint reads the persisted room-index high-water mark.
func (db *DB) HighWaterCheckpoint() (int64, error) {
	v, err := db.GetCheckpoint(RoomIndexCheckpoint)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// SaveHighWaterCheckpoint persists the room-index high-water mark.
func (db *DB) SaveHighWaterCheckpoint(v int64) error {
	return db.SetCheckpoint(RoomIndexCheckpoint, strconv.FormatInt(v, 10))
}
