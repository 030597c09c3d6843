package store

import (
	"path/filepath"
	"testing"

	"github.com/mfadhil/qchat/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	first, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !first.Changed {
		t.Error("first migration reported no change")
	}
	second, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed {
		t.Error("second migration reported a change")
	}
}

func TestUpsertRoomAndList(t *testing.T) {
	db := testDB(t)

	rooms := []chat.RoomSummary{
		{ID: 1, Name: "general", LastActivityAt: 100},
		{ID: 2, Name: "random", LastActivityAt: 300},
		{ID: 3, Name: "dev", LastActivityAt: 200},
	}
	for i := range rooms {
		if err := db.UpsertRoom(&rooms[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListRooms(10)
	if err != nil {
		t.Fatal(err)
	}
	wantIDs := []int64{2, 3, 1}
	if len(got) != 3 {
		t.Fatalf("got %d rooms, want 3", len(got))
	}
	for i, r := range got {
		if r.ID != wantIDs[i] {
			t.Errorf("position %d: id = %d, want %d", i, r.ID, wantIDs[i])
		}
	}
}

func TestUpsertRoomKeepsMaxActivity(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertRoom(&chat.RoomSummary{ID: 1, Name: "general", LastMessageID: 50, LastActivityAt: 500}); err != nil {
		t.Fatal(err)
	}
	// A stale mirror write must not move the room backwards.
	if err := db.UpsertRoom(&chat.RoomSummary{ID: 1, Name: "general", LastMessageID: 40, LastActivityAt: 400}); err != nil {
		t.Fatal(err)
	}

	r, err := db.GetRoom(1)
	if err != nil {
		t.Fatal(err)
	}
	if r.LastMessageID != 50 || r.LastActivityAt != 500 {
		t.Errorf("room = %+v, want last_message_id=50 last_activity_at=500", r)
	}
}

func TestGetRoomAbsent(t *testing.T) {
	db := testDB(t)
	r, err := db.GetRoom(99)
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Errorf("got %+v, want nil for absent room", r)
	}
}

func TestResetUnread(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertRoom(&chat.RoomSummary{ID: 1, UnreadCount: 5}); err != nil {
		t.Fatal(err)
	}
	if err := db.ResetUnread(1); err != nil {
		t.Fatal(err)
	}
	r, _ := db.GetRoom(1)
	if r.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", r.UnreadCount)
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := &chat.Message{
		ServerID:  42,
		RoomID:    1,
		SenderID:  "alice@x",
		Timestamp: 1000,
		Status:    chat.StatusSent,
		Payload:   chat.Payload{Kind: chat.PayloadText, Text: "hello"},
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Payload.Text != "hello" || msgs[0].Status != chat.StatusSent {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestUpsertMessageStatusForwardOnly(t *testing.T) {
	db := testDB(t)

	m := &chat.Message{ServerID: 42, RoomID: 1, Timestamp: 1000, Status: chat.StatusRead}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	// Stale replay with an earlier status.
	m.Status = chat.StatusSent
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListMessages(1, 0, 10)
	if msgs[0].Status != chat.StatusRead {
		t.Errorf("status = %s, want read", msgs[0].Status)
	}
}

func TestUpsertMessageFailedOnlyFromSendStates(t *testing.T) {
	db := testDB(t)

	m := &chat.Message{LocalID: "L1", RoomID: 1, Timestamp: 1000, Status: chat.StatusDelivered}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Status = chat.StatusFailed
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListMessages(1, 0, 10)
	if msgs[0].Status != chat.StatusDelivered {
		t.Errorf("status = %s, want delivered (failed not allowed past sent)", msgs[0].Status)
	}
}

func TestUpsertMessageKeepsServerID(t *testing.T) {
	db := testDB(t)

	m := &chat.Message{LocalID: "L1", ServerID: 42, RoomID: 1, Timestamp: 1000, Status: chat.StatusSent}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	// A later write without the server id must not erase it.
	m2 := &chat.Message{LocalID: "L1", RoomID: 1, Timestamp: 1000, Status: chat.StatusDelivered}
	if err := db.UpsertMessage(m2); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListMessages(1, 0, 10)
	if msgs[0].ServerID != 42 {
		t.Errorf("server_id = %d, want 42 preserved", msgs[0].ServerID)
	}
}

func TestListMessagesPagination(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 5; i++ {
		m := &chat.Message{ServerID: i, RoomID: 1, Timestamp: i * 100, Status: chat.StatusSent}
		if err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	// Newest page of 2.
	page, err := db.ListMessages(1, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ServerID != 4 || page[1].ServerID != 5 {
		t.Fatalf("newest page = %+v, want servers 4,5 ascending", page)
	}

	// Older page before the earliest shown.
	older, err := db.ListMessages(1, page[0].Timestamp, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 || older[0].ServerID != 2 || older[1].ServerID != 3 {
		t.Fatalf("older page = %+v, want servers 2,3 ascending", older)
	}
}

func TestMarkDeliveredAndReadBefore(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 3; i++ {
		m := &chat.Message{ServerID: i, RoomID: 1, Timestamp: i * 100, Status: chat.StatusSent}
		if err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.MarkDeliveredBefore(1, 200); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkReadBefore(1, 100); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListMessages(1, 0, 10)
	want := []chat.Status{chat.StatusRead, chat.StatusDelivered, chat.StatusSent}
	for i, m := range msgs {
		if m.Status != want[i] {
			t.Errorf("server %d: status = %s, want %s", m.ServerID, m.Status, want[i])
		}
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox(&OutboxEntry{LocalID: "L1", RoomID: 1, Kind: "text", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(&OutboxEntry{LocalID: "L2", RoomID: 1, Kind: "text", Body: "there"}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].LocalID != "L1" {
		t.Fatalf("pending = %+v, want L1 first", pending)
	}

	if err := db.MarkOutboxSending("L1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("L1", 42); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed("L2", "network error"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0", len(pending))
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	db := testDB(t)

	v, err := db.HighWaterCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("unset checkpoint = %d, want 0", v)
	}

	if err := db.SaveHighWaterCheckpoint(600); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveHighWaterCheckpoint(700); err != nil {
		t.Fatal(err)
	}

	v, err = db.HighWaterCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if v != 700 {
		t.Errorf("checkpoint = %d, want 700", v)
	}
}
