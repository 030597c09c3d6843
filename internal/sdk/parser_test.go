package sdk

import (
	"testing"

	"github.com/mfadhil/qchat/internal/chat"
)

func TestParseFrameNewMessage(t *testing.T) {
	data := []byte(`{
		"type": "new_message",
		"payload": {
			"id": 501,
			"room_id": 7,
			"unique_temp_id": "L1",
			"comment_before_id": 500,
			"timestamp": 1100,
			"type": "text",
			"message": "hello",
			"email": "alice@x",
			"username": "Alice",
			"status": "sent"
		}
	}`)

	kind, payload, err := ParseFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if kind != "sdk.message" {
		t.Errorf("kind = %q, want sdk.message", kind)
	}
	msg, ok := payload.(*chat.Message)
	if !ok {
		t.Fatalf("payload type = %T, want *chat.Message", payload)
	}
	if msg.ServerID != 501 || msg.RoomID != 7 || msg.LocalID != "L1" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Payload.Kind != chat.PayloadText || msg.Payload.Text != "hello" {
		t.Errorf("payload = %+v", msg.Payload)
	}
	if msg.SenderID != "alice@x" || msg.SenderName != "Alice" {
		t.Errorf("sender = %s/%s", msg.SenderID, msg.SenderName)
	}
}

func TestParseFrameCustomMessage(t *testing.T) {
	data := []byte(`{
		"type": "new_message",
		"payload": {
			"id": 502,
			"room_id": 7,
			"timestamp": 1200,
			"type": "file_attachment",
			"message": "File attachment",
			"payload": {"url": "https://cdn.example/f.pdf"}
		}
	}`)

	_, payload, err := ParseFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	msg := payload.(*chat.Message)
	if msg.Payload.Kind != chat.PayloadCustom || msg.Payload.CustomType != "file_attachment" {
		t.Errorf("payload = %+v, want custom file_attachment", msg.Payload)
	}
	if len(msg.Payload.Content) == 0 {
		t.Error("custom content not carried through")
	}
}

func TestParseFrameUnknownStatusMapsToSent(t *testing.T) {
	data := []byte(`{
		"type": "new_message",
		"payload": {"id": 1, "room_id": 7, "timestamp": 1, "type": "text", "message": "x", "status": "pending"}
	}`)

	_, payload, err := ParseFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	msg := payload.(*chat.Message)
	if msg.Status != chat.StatusSent {
		t.Errorf("status = %s, want sent for unknown wire status", msg.Status)
	}
}

func TestParseFrameReceipts(t *testing.T) {
	tests := []struct {
		frameType string
		wantKind  string
	}{
		{"delivered", "sdk.delivered"},
		{"read", "sdk.read"},
	}
	for _, tt := range tests {
		data := []byte(`{"type": "` + tt.frameType + `", "payload": {"room_id": 7, "comment_timestamp": 1100}}`)
		kind, payload, err := ParseFrame(data)
		if err != nil {
			t.Fatal(err)
		}
		if kind != tt.wantKind {
			t.Errorf("kind = %q, want %q", kind, tt.wantKind)
		}
		r, ok := payload.(Receipt)
		if !ok {
			t.Fatalf("payload type = %T, want Receipt", payload)
		}
		if r.RoomID != 7 || r.CutoffTimestamp != 1100 {
			t.Errorf("receipt = %+v", r)
		}
	}
}

func TestParseFramePresence(t *testing.T) {
	data := []byte(`{"type": "presence", "payload": {"user_id": "alice@x", "is_online": true, "last_online": 999}}`)
	kind, payload, err := ParseFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if kind != "sdk.presence" {
		t.Errorf("kind = %q", kind)
	}
	p := payload.(PresenceUpdate)
	if p.UserID != "alice@x" || !p.IsOnline || p.LastOnline != 999 {
		t.Errorf("presence = %+v", p)
	}
}

func TestParseFrameTyping(t *testing.T) {
	data := []byte(`{"type": "typing", "payload": {"room_id": 7, "username": "Alice"}}`)
	kind, payload, err := ParseFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if kind != "sdk.typing" {
		t.Errorf("kind = %q", kind)
	}
	u := payload.(TypingUpdate)
	if u.RoomID != 7 || u.Username != "Alice" {
		t.Errorf("typing = %+v", u)
	}
}

func TestParseFrameErrors(t *testing.T) {
	if _, _, err := ParseFrame([]byte(`not json`)); err == nil {
		t.Error("want error for malformed frame")
	}
	if _, _, err := ParseFrame([]byte(`{"type": "mystery", "payload": {}}`)); err == nil {
		t.Error("want error for unknown frame type")
	}
}
