// Package roomlist keeps the room list ordered by recency and its unread
// badges consistent under duplicated or replayed push events.
//
// Deduplication uses a single high-water mark over processed message ids
// across all rooms, matching the upstream service's globally-assigned
// comment ids. With a per-room id scheme this guard could suppress a
// legitimate increment in another room; see DESIGN.md.
package roomlist

import (
	"errors"
	"sync"

	"github.com/mfadhil/qchat/internal/chat"
)

// ErrUnknownRoom is returned when a push references a room the index has
// never loaded. The caller is expected to trigger a full reload rather
// than fabricate a room.
var ErrUnknownRoom = errors.New("roomlist: unknown room")

// InboundMessage is the slice of a push event the index cares about.
type InboundMessage struct {
	RoomID    int64
	MessageID int64
	Preview   string
	Timestamp int64
}

// Index is the reconciled room list. Like the timeline stores it has a
// single logical writer; the lock only protects Ordered snapshots.
type Index struct {
	mu        sync.RWMutex
	rooms     map[int64]*entry
	order     []int64 // room ids, most recent activity first
	highWater int64   // largest processed message id across all rooms
}

type entry struct {
	room      chat.RoomSummary
	processed map[int64]struct{} // ids folded into UnreadCount past the mark
}

// New creates an empty index.
func New() *Index {
	return &Index{rooms: make(map[int64]*entry)}
}

// LoadAll replaces the index with a freshly fetched room list. Unread
// counts in the batch are ground truth from the bulk endpoint and
// override any local increments. Each room's processed set is reseeded
// from its LastMessageID mark; the global high-water mark only ever
// moves forward so increments applied before the fetch are not replayed
// after it.
func (x *Index) LoadAll(rooms []chat.RoomSummary) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rooms = make(map[int64]*entry, len(rooms))
	x.order = make([]int64, 0, len(rooms))
	for _, r := range rooms {
		x.rooms[r.ID] = &entry{room: r, processed: make(map[int64]struct{})}
		x.order = append(x.order, r.ID)
		if r.LastMessageID > x.highWater {
			x.highWater = r.LastMessageID
		}
	}
}

// ApplyInbound folds one push event into the index. Stale or duplicate
// deliveries (message id at or below the high-water mark, or already in
// the room's processed set) are ignored. Returns ErrUnknownRoom when the
// room has never been loaded; the event is not recorded so the reloaded
// list can account for it. Otherwise the room's unread count grows by
// one, its preview and activity update, and it moves to the front.
func (x *Index) ApplyInbound(msg InboundMessage) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if msg.MessageID <= x.highWater {
		return nil
	}
	e, ok := x.rooms[msg.RoomID]
	if !ok {
		return ErrUnknownRoom
	}
	if _, done := e.processed[msg.MessageID]; done {
		return nil
	}

	e.room.UnreadCount++
	e.room.LastMessagePreview = msg.Preview
	if msg.Timestamp > e.room.LastActivityAt {
		e.room.LastActivityAt = msg.Timestamp
	}
	e.processed[msg.MessageID] = struct{}{}
	x.highWater = msg.MessageID
	x.moveToFrontLocked(msg.RoomID)
	return nil
}

// MarkRead zeroes the unread count of a room, invoked when the user
// opens it. Unknown rooms are a no-op.
func (x *Index) MarkRead(roomID int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.rooms[roomID]; ok {
		e.room.UnreadCount = 0
	}
}

// Ordered returns a snapshot of the rooms, most recent activity first.
func (x *Index) Ordered() []chat.RoomSummary {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]chat.RoomSummary, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, x.rooms[id].room)
	}
	return out
}

// Get returns a room summary by id.
func (x *Index) Get(roomID int64) (chat.RoomSummary, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if e, ok := x.rooms[roomID]; ok {
		return e.room, true
	}
	return chat.RoomSummary{}, false
}

// HighWater returns the largest processed message id, persisted across
// restarts so already-counted pushes are not counted again.
func (x *Index) HighWater() int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.highWater
}

// SeedHighWater raises the high-water mark, used at startup to restore
// the persisted checkpoint. It never lowers the mark.
func (x *Index) SeedHighWater(v int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if v > x.highWater {
		x.highWater = v
	}
}

func (x *Index) moveToFrontLocked(roomID int64) {
	for i, id := range x.order {
		if id == roomID {
			copy(x.order[1:i+1], x.order[:i])
			x.order[0] = roomID
			return
		}
	}
	x.order = append([]int64{roomID}, x.order...)
}
