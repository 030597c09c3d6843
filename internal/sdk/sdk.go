// Package sdk talks to the hosted chat service: a REST surface for pulls
// (room list, comment pages, sends, bulk room info, uploads) and a
// websocket feed for pushes. Everything downstream of this package only
// sees domain types and bus events.
package sdk

// RoomInfo is one entry of the bulk rooms_info response. Unread counts
// here are authoritative and override local increments.
type RoomInfo struct {
	UnreadCount   int
	LastMessageID int64
}

// Receipt is a delivered or read push: every message in the room at or
// before the cutoff moves to the corresponding status.
type Receipt struct {
	RoomID          int64
	CutoffTimestamp int64
}

// PresenceUpdate reports a peer going online or offline.
type PresenceUpdate struct {
	UserID     string
	IsOnline   bool
	LastOnline int64
}

// TypingUpdate reports a peer typing in a room.
type TypingUpdate struct {
	RoomID   int64
	Username string
}
