package store

import "time"

// OutboxEntry is a pending outgoing message. Kind is "text" or "file";
// file entries carry the local path and content type for the upload.
type OutboxEntry struct {
	ID           int64
	LocalID      string
	RoomID       int64
	Kind         string
	Body         string
	FilePath     string
	FileType     string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerID     int64
}

// QueueOutbox adds an entry to the send outbox.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (local_id, room_id, kind, body, file_path, file_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.LocalID, e.RoomID, e.Kind, e.Body, e.FilePath, e.FileType, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending'.
func (db *DB) MarkOutboxSending(localID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE local_id = ?`, now, localID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server id.
func (db *DB) MarkOutboxSent(localID string, serverID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_id = ?, updated_at = ? WHERE local_id = ?`, serverID, now, localID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error.
func (db *DB) MarkOutboxFailed(localID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE local_id = ?`, errMsg, now, localID)
	return err
}

// PendingOutbox returns entries still queued, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, local_id, room_id, kind, body, file_path, file_type, status, error_message, server_id
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.LocalID, &e.RoomID, &e.Kind, &e.Body, &e.FilePath, &e.FileType, &e.Status, &e.ErrorMessage, &e.ServerID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
