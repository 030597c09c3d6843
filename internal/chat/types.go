package chat

import (
	"encoding/json"
	"strconv"
)

// PayloadKind discriminates the message payload union.
type PayloadKind string

const (
	PayloadText   PayloadKind = "text"
	PayloadUpload PayloadKind = "upload" // attachment still uploading, local only
	PayloadCustom PayloadKind = "custom"
)

// Payload is the message body. Text is set for all kinds (it doubles as
// the caption for custom messages). FileURI is only meaningful while
// Kind is PayloadUpload; CustomType/Content only when Kind is PayloadCustom.
type Payload struct {
	Kind       PayloadKind
	Text       string
	FileURI    string
	CustomType string
	Content    json.RawMessage
}

// Message is one reconciled message record.
//
// LocalID is the client-generated temporary id assigned at creation and
// never reused. ServerID is zero until the server has persisted the
// message. Identity: two records are the same logical message iff their
// LocalIDs match, or both ServerIDs are set and equal.
type Message struct {
	LocalID    string
	ServerID   int64
	RoomID     int64
	SenderID   string
	SenderName string
	Timestamp  int64 // epoch millis
	Status     Status
	Payload    Payload
}

// Key returns the internal identity key: the local id when present,
// falling back to the server id.
func (m *Message) Key() string {
	if m.LocalID != "" {
		return m.LocalID
	}
	return "s:" + strconv.FormatInt(m.ServerID, 10)
}

// RoomSummary is the denormalized room view held by the room index.
// LastMessageID is the server's last_comment_id high-water mark: every
// message id at or below it is considered already counted.
type RoomSummary struct {
	ID                 int64
	Name               string
	AvatarURL          string
	UnreadCount        int
	LastMessageID      int64
	LastMessagePreview string
	LastActivityAt     int64
}
