package store

import (
	"database/sql"
	"time"

	"github.com/mfadhil/qchat/internal/chat"
)

// UpsertRoom inserts or replaces a room summary. The caller (the
// dispatch engine) has already reconciled the values; this is a plain
// mirror write.
func (db *DB) UpsertRoom(r *chat.RoomSummary) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO rooms (id, name, avatar_url, unread_count, last_message_id, last_message_preview, last_activity_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar_url = excluded.avatar_url,
			unread_count = excluded.unread_count,
			last_message_id = MAX(rooms.last_message_id, excluded.last_message_id),
			last_message_preview = excluded.last_message_preview,
			last_activity_at = MAX(rooms.last_activity_at, excluded.last_activity_at),
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.AvatarURL, r.UnreadCount, r.LastMessageID, r.LastMessagePreview, r.LastActivityAt, now)
	return err
}

// ListRooms returns cached rooms by recency of activity.
func (db *DB) ListRooms(limit int) ([]chat.RoomSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, name, avatar_url, unread_count, last_message_id, last_message_preview, last_activity_at
		FROM rooms
		ORDER BY last_activity_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []chat.RoomSummary
	for rows.Next() {
		var r chat.RoomSummary
		if err := rows.Scan(&r.ID, &r.Name, &r.AvatarURL, &r.UnreadCount, &r.LastMessageID, &r.LastMessagePreview, &r.LastActivityAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom returns a single cached room, or nil when absent.
func (db *DB) GetRoom(id int64) (*chat.RoomSummary, error) {
	var r chat.RoomSummary
	err := db.QueryRow(`
		SELECT id, name, avatar_url, unread_count, last_message_id, last_message_preview, last_activity_at
		FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.AvatarURL, &r.UnreadCount, &r.LastMessageID, &r.LastMessagePreview, &r.LastActivityAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ResetUnread zeroes a room's cached unread count.
func (db *DB) ResetUnread(roomID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE rooms SET unread_count = 0, updated_at = ? WHERE id = ?`, now, roomID)
	return err
}
