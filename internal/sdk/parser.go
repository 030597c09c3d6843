package sdk

import (
	"encoding/json"
	"fmt"

	"github.com/mfadhil/qchat/internal/chat"
)

// wireComment is a message record as the service serializes it, shared
// by the REST endpoints and the feed's new_message frames.
type wireComment struct {
	ID              int64           `json:"id"`
	RoomID          int64           `json:"room_id"`
	UniqueTempID    string          `json:"unique_temp_id"`
	CommentBeforeID int64           `json:"comment_before_id"`
	Timestamp       int64           `json:"timestamp"`
	Type            string          `json:"type"`
	Message         string          `json:"message"`
	Payload         json.RawMessage `json:"payload"`
	Email           string          `json:"email"`
	Username        string          `json:"username"`
	Status          string          `json:"status"`
}

// toMessage normalizes a wire comment into a domain record. Unknown
// statuses map to sent: the server would not echo a comment it has not
// persisted.
func (w *wireComment) toMessage() chat.Message {
	payload := chat.Payload{Kind: chat.PayloadText, Text: w.Message}
	if w.Type != "" && w.Type != "text" {
		payload.Kind = chat.PayloadCustom
		payload.CustomType = w.Type
		payload.Content = w.Payload
	}
	status := chat.Status(w.Status)
	if _, ok := map[chat.Status]bool{
		chat.StatusSent:      true,
		chat.StatusDelivered: true,
		chat.StatusRead:      true,
	}[status]; !ok {
		status = chat.StatusSent
	}
	return chat.Message{
		LocalID:    w.UniqueTempID,
		ServerID:   w.ID,
		RoomID:     w.RoomID,
		SenderID:   w.Email,
		SenderName: w.Username,
		Timestamp:  w.Timestamp,
		Status:     status,
		Payload:    payload,
	}
}

type wireRoom struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"room_name"`
	AvatarURL            string `json:"avatar_url"`
	UnreadCount          int    `json:"unread_count"`
	LastCommentID        int64  `json:"last_comment_id"`
	LastCommentMessage   string `json:"last_comment_message"`
	LastCommentTimestamp int64  `json:"last_comment_timestamp"`
}

func (w *wireRoom) toSummary() chat.RoomSummary {
	return chat.RoomSummary{
		ID:                 w.ID,
		Name:               w.Name,
		AvatarURL:          w.AvatarURL,
		UnreadCount:        w.UnreadCount,
		LastMessageID:      w.LastCommentID,
		LastMessagePreview: w.LastCommentMessage,
		LastActivityAt:     w.LastCommentTimestamp,
	}
}

// feedFrame is the envelope of every websocket frame.
type feedFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireReceipt struct {
	RoomID           int64 `json:"room_id"`
	CommentTimestamp int64 `json:"comment_timestamp"`
}

type wirePresence struct {
	UserID     string `json:"user_id"`
	IsOnline   bool   `json:"is_online"`
	LastOnline int64  `json:"last_online"`
}

type wireTyping struct {
	RoomID   int64  `json:"room_id"`
	Username string `json:"username"`
}

// ParseFrame decodes one feed frame into the bus event kind it should be
// published under and its payload: *chat.Message for "sdk.message",
// Receipt for "sdk.delivered"/"sdk.read", PresenceUpdate for
// "sdk.presence", TypingUpdate for "sdk.typing".
func ParseFrame(data []byte) (string, any, error) {
	var frame feedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", nil, fmt.Errorf("decode frame: %w", err)
	}
	switch frame.Type {
	case "new_message":
		var w wireComment
		if err := json.Unmarshal(frame.Payload, &w); err != nil {
			return "", nil, fmt.Errorf("decode new_message: %w", err)
		}
		msg := w.toMessage()
		return "sdk.message", &msg, nil
	case "delivered", "read":
		var w wireReceipt
		if err := json.Unmarshal(frame.Payload, &w); err != nil {
			return "", nil, fmt.Errorf("decode %s: %w", frame.Type, err)
		}
		return "sdk." + frame.Type, Receipt{RoomID: w.RoomID, CutoffTimestamp: w.CommentTimestamp}, nil
	case "presence":
		var w wirePresence
		if err := json.Unmarshal(frame.Payload, &w); err != nil {
			return "", nil, fmt.Errorf("decode presence: %w", err)
		}
		return "sdk.presence", PresenceUpdate{UserID: w.UserID, IsOnline: w.IsOnline, LastOnline: w.LastOnline}, nil
	case "typing":
		var w wireTyping
		if err := json.Unmarshal(frame.Payload, &w); err != nil {
			return "", nil, fmt.Errorf("decode typing: %w", err)
		}
		return "sdk.typing", TypingUpdate{RoomID: w.RoomID, Username: w.Username}, nil
	default:
		return "", nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}
