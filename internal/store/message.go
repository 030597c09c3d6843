package store

import (
	"time"

	"github.com/mfadhil/qchat/internal/chat"
)

// UpsertMessage inserts or updates a message, idempotent on
// (room_id, msg_key). Mutable fields are overwritten; status only moves
// forward, with failed reachable from sending or sent only.
func (db *DB) UpsertMessage(m *chat.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (room_id, msg_key, local_id, server_id, sender_id, sender_name,
			body, payload_kind, custom_type, custom_content, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, msg_key) DO UPDATE SET
			server_id = CASE WHEN excluded.server_id != 0 THEN excluded.server_id ELSE messages.server_id END,
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			body = excluded.body,
			payload_kind = excluded.payload_kind,
			custom_type = excluded.custom_type,
			custom_content = excluded.custom_content,
			status = CASE
				WHEN messages.status = 'failed' THEN 'failed'
				WHEN excluded.status = 'failed' THEN
					CASE WHEN messages.status IN ('sending', 'sent') THEN 'failed' ELSE messages.status END
				WHEN (CASE excluded.status WHEN 'sending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE -1 END)
				   > (CASE messages.status WHEN 'sending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE -1 END)
					THEN excluded.status
				ELSE messages.status
			END`,
		m.RoomID, m.Key(), m.LocalID, m.ServerID, m.SenderID, m.SenderName,
		m.Payload.Text, string(m.Payload.Kind), m.Payload.CustomType, string(m.Payload.Content),
		string(m.Status), m.Timestamp, now)
	return err
}

// ListMessages returns cached messages for a room, ascending by
// timestamp, using keyset pagination when beforeTs is set.
func (db *DB) ListMessages(roomID int64, beforeTs int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT local_id, server_id, room_id, sender_id, sender_name,
			body, payload_kind, custom_type, custom_content, status, timestamp
		FROM (
			SELECT * FROM messages
			WHERE room_id = ? AND timestamp < ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`, roomID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var kind, content, status string
		if err := rows.Scan(&m.LocalID, &m.ServerID, &m.RoomID, &m.SenderID, &m.SenderName,
			&m.Payload.Text, &kind, &m.Payload.CustomType, &content, &status, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Payload.Kind = chat.PayloadKind(kind)
		if content != "" {
			m.Payload.Content = []byte(content)
		}
		m.Status = chat.Status(status)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkDeliveredBefore advances sending/sent messages of a room at or
// before the cutoff to delivered.
func (db *DB) MarkDeliveredBefore(roomID, cutoff int64) error {
	_, err := db.Exec(`
		UPDATE messages SET status = 'delivered'
		WHERE room_id = ? AND timestamp <= ? AND status IN ('sending', 'sent')`,
		roomID, cutoff)
	return err
}

// MarkReadBefore advances messages of a room at or before the cutoff to
// read. Failed records stay failed.
func (db *DB) MarkReadBefore(roomID, cutoff int64) error {
	_, err := db.Exec(`
		UPDATE messages SET status = 'read'
		WHERE room_id = ? AND timestamp <= ? AND status NOT IN ('read', 'failed')`,
		roomID, cutoff)
	return err
}
