package roomlist

import (
	"errors"
	"testing"

	"github.com/mfadhil/qchat/internal/chat"
)

func loadTwoRooms(t *testing.T) *Index {
	t.Helper()
	x := New()
	x.LoadAll([]chat.RoomSummary{
		{ID: 1, Name: "general", UnreadCount: 0, LastMessageID: 500, LastActivityAt: 1000},
		{ID: 2, Name: "random", UnreadCount: 2, LastMessageID: 400, LastActivityAt: 900},
	})
	return x
}

func TestApplyInboundIncrementsAndReorders(t *testing.T) {
	x := loadTwoRooms(t)

	err := x.ApplyInbound(InboundMessage{RoomID: 2, MessageID: 501, Preview: "yo", Timestamp: 1100})
	if err != nil {
		t.Fatal(err)
	}

	rooms := x.Ordered()
	if rooms[0].ID != 2 || rooms[1].ID != 1 {
		t.Errorf("order = [%d %d], want [2 1]", rooms[0].ID, rooms[1].ID)
	}
	if rooms[0].UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", rooms[0].UnreadCount)
	}
	if rooms[0].LastMessagePreview != "yo" || rooms[0].LastActivityAt != 1100 {
		t.Errorf("preview/activity = %q/%d", rooms[0].LastMessagePreview, rooms[0].LastActivityAt)
	}
}

func TestApplyInboundDuplicateIgnored(t *testing.T) {
	x := loadTwoRooms(t)

	msg := InboundMessage{RoomID: 2, MessageID: 501, Preview: "yo", Timestamp: 1100}
	for i := 0; i < 3; i++ {
		if err := x.ApplyInbound(msg); err != nil {
			t.Fatal(err)
		}
	}

	room, _ := x.Get(2)
	if room.UnreadCount != 3 {
		t.Errorf("unread = %d, want 3 after duplicate pushes", room.UnreadCount)
	}
}

func TestApplyInboundStaleIDIgnored(t *testing.T) {
	x := loadTwoRooms(t)

	// 500 was already the newest id at load time.
	if err := x.ApplyInbound(InboundMessage{RoomID: 1, MessageID: 500}); err != nil {
		t.Fatal(err)
	}
	room, _ := x.Get(1)
	if room.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for stale id", room.UnreadCount)
	}
}

func TestApplyInboundUnknownRoom(t *testing.T) {
	x := loadTwoRooms(t)

	err := x.ApplyInbound(InboundMessage{RoomID: 99, MessageID: 600})
	if !errors.Is(err, ErrUnknownRoom) {
		t.Fatalf("err = %v, want ErrUnknownRoom", err)
	}

	// The unrecorded event must still count after the reload delivers the room.
	x.LoadAll([]chat.RoomSummary{
		{ID: 99, Name: "new", UnreadCount: 1, LastMessageID: 600},
	})
	room, _ := x.Get(99)
	if room.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 from reload", room.UnreadCount)
	}
}

func TestLoadAllOverridesLocalCounts(t *testing.T) {
	x := loadTwoRooms(t)
	x.ApplyInbound(InboundMessage{RoomID: 1, MessageID: 501, Timestamp: 1100})

	x.LoadAll([]chat.RoomSummary{
		{ID: 1, Name: "general", UnreadCount: 0, LastMessageID: 501},
	})

	room, _ := x.Get(1)
	if room.UnreadCount != 0 {
		t.Errorf("unread = %d, want bulk endpoint value 0", room.UnreadCount)
	}
	if _, ok := x.Get(2); ok {
		t.Error("room 2 survived a full reload that dropped it")
	}
}

func TestHighWaterSurvivesReload(t *testing.T) {
	x := loadTwoRooms(t)
	x.ApplyInbound(InboundMessage{RoomID: 1, MessageID: 600, Timestamp: 1100})

	// Reload reports an older LastMessageID; the mark must not move back.
	x.LoadAll([]chat.RoomSummary{
		{ID: 1, Name: "general", UnreadCount: 1, LastMessageID: 550},
	})
	if got := x.HighWater(); got != 600 {
		t.Fatalf("high water = %d, want 600", got)
	}

	// A replay of the already-counted push is ignored.
	x.ApplyInbound(InboundMessage{RoomID: 1, MessageID: 600, Timestamp: 1100})
	room, _ := x.Get(1)
	if room.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", room.UnreadCount)
	}
}

func TestSeedHighWater(t *testing.T) {
	x := New()
	x.SeedHighWater(700)
	if x.HighWater() != 700 {
		t.Fatalf("high water = %d, want 700", x.HighWater())
	}
	x.SeedHighWater(100)
	if x.HighWater() != 700 {
		t.Errorf("high water = %d, seed must never lower it", x.HighWater())
	}
}

func TestMarkRead(t *testing.T) {
	x := loadTwoRooms(t)
	x.MarkRead(2)
	room, _ := x.Get(2)
	if room.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 after open", room.UnreadCount)
	}

	// Unknown room is a no-op.
	x.MarkRead(99)
}

func TestOrderedKeepsLoadOrder(t *testing.T) {
	x := loadTwoRooms(t)
	rooms := x.Ordered()
	if len(rooms) != 2 || rooms[0].ID != 1 || rooms[1].ID != 2 {
		t.Errorf("order = %+v, want load order", rooms)
	}
}
