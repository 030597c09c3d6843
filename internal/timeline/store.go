// Package timeline reconciles one room's messages into a single ordered
// view. Locally-created optimistic records and server-confirmed records
// merge by stable identity (local id first, server id as fallback), and
// every mutation is either an identity-keyed overwrite or a monotonic
// status advance, so replayed or duplicated feed events converge to the
// same state.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mfadhil/qchat/internal/chat"
)

// ErrNoSuchMessage is returned when a confirm or fail names a local id
// the store has never seen.
var ErrNoSuchMessage = errors.New("timeline: no such message")

// Store holds the reconciled messages of one room. All mutations must be
// funneled through a single writer (the dispatch engine); the lock exists
// so Ordered snapshots can be taken while an apply is in flight.
type Store struct {
	mu       sync.RWMutex
	roomID   int64
	records  map[string]*record
	byServer map[int64]string // server id -> identity key
	seq      int              // insertion counter, breaks timestamp ties
	hasMore  bool             // an older page exists before the earliest record
}

type record struct {
	msg chat.Message
	seq int
}

// New creates an empty store for the given room.
func New(roomID int64) *Store {
	return &Store{
		roomID:   roomID,
		records:  make(map[string]*record),
		byServer: make(map[int64]string),
	}
}

// RoomID returns the owning room.
func (s *Store) RoomID() int64 { return s.roomID }

// Reset replaces all state with the given batch, typically the newest
// page loaded when a room is opened. hasMoreBefore reports whether the
// earliest message in the batch has a predecessor on the server.
func (s *Store) Reset(batch []chat.Message, hasMoreBefore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*record, len(batch))
	s.byServer = make(map[int64]string, len(batch))
	s.seq = 0
	s.hasMore = hasMoreBefore
	for i := range batch {
		s.insertLocked(batch[i])
	}
}

// AddLocal inserts an optimistic record for a message submitted by the
// user. The message must carry a LocalID; its status is forced to
// sending. Returns the local id for the later ConfirmSend or FailSend.
func (s *Store) AddLocal(msg chat.Message) (string, error) {
	if msg.LocalID == "" {
		return "", fmt.Errorf("timeline: local message without local id")
	}
	msg.Status = chat.StatusSending
	msg.RoomID = s.roomID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[msg.LocalID]; !ok {
		s.insertLocked(msg)
	}
	return msg.LocalID, nil
}

// ConfirmSend replaces the record keyed by localID with the server's
// echo. The local id stays the lookup key, so later feed events naming
// either id resolve to this one record.
func (s *Store) ConfirmSend(localID string, server chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[localID]
	if !ok {
		return fmt.Errorf("%w: confirm %q", ErrNoSuchMessage, localID)
	}
	server.LocalID = localID
	server.RoomID = s.roomID
	server.Status = chat.Advance(rec.msg.Status, maxStatus(server.Status, chat.StatusSent))
	rec.msg = server
	if server.ServerID != 0 {
		s.byServer[server.ServerID] = localID
	}
	return nil
}

// FailSend marks the record keyed by localID as failed. The record stays
// visible for manual retry. A no-op if the message already advanced past
// sent.
func (s *Store) FailSend(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[localID]
	if !ok {
		return fmt.Errorf("%w: fail %q", ErrNoSuchMessage, localID)
	}
	rec.msg.Status = chat.Advance(rec.msg.Status, chat.StatusFailed)
	return nil
}

// ApplyInbound merges a message from the feed or a pull. An existing
// record with matching identity is overwritten except that status never
// regresses; otherwise the message is inserted. Applying the same event
// twice is the same as applying it once. Returns the record as held
// after the merge: an echo naming only a server id resolves to the
// optimistic record and comes back carrying its local id.
func (s *Store) ApplyInbound(msg chat.Message) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(msg)
}

// MergeOlder merges a page of history before the current earliest
// message. A historical page never resurrects a record the store already
// holds with a more advanced status.
func (s *Store) MergeOlder(batch []chat.Message, hasMoreBefore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range batch {
		s.mergeLocked(batch[i])
	}
	s.hasMore = hasMoreBefore
}

// MarkDelivered advances every sending or sent record with
// timestamp <= cutoff to delivered.
func (s *Store) MarkDelivered(cutoff int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.msg.Timestamp <= cutoff {
			rec.msg.Status = chat.Advance(rec.msg.Status, chat.StatusDelivered)
		}
	}
}

// MarkRead advances every record with timestamp <= cutoff to read.
func (s *Store) MarkRead(cutoff int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.msg.Timestamp <= cutoff {
			rec.msg.Status = chat.Advance(rec.msg.Status, chat.StatusRead)
		}
	}
}

// Ordered returns a snapshot of all messages ascending by timestamp.
// The sort is stable with ties broken by insertion order, keeping an
// optimistic record and its confirmation adjacent to their neighbors.
func (s *Store) Ordered() []chat.Message {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].msg.Timestamp != recs[j].msg.Timestamp {
			return recs[i].msg.Timestamp < recs[j].msg.Timestamp
		}
		return recs[i].seq < recs[j].seq
	})
	out := make([]chat.Message, len(recs))
	for i, rec := range recs {
		out[i] = rec.msg
	}
	return out
}

// Get returns the record with the given identity key, if present.
func (s *Store) Get(key string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[key]; ok {
		return rec.msg, true
	}
	return chat.Message{}, false
}

// HasMoreBefore reports whether an older page exists before the earliest
// held message.
func (s *Store) HasMoreBefore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// OldestServerID returns the smallest server id held, used as the cursor
// for backward pagination. Zero when no confirmed message is held.
func (s *Store) OldestServerID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest int64
	for id := range s.byServer {
		if oldest == 0 || id < oldest {
			oldest = id
		}
	}
	return oldest
}

// Len returns the number of held records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// lookupLocked resolves a message to an existing record by identity:
// local id match first, then server id.
func (s *Store) lookupLocked(msg *chat.Message) (*record, bool) {
	if msg.LocalID != "" {
		if rec, ok := s.records[msg.LocalID]; ok {
			return rec, true
		}
	}
	if msg.ServerID != 0 {
		if key, ok := s.byServer[msg.ServerID]; ok {
			return s.records[key], true
		}
	}
	return nil, false
}

func (s *Store) mergeLocked(msg chat.Message) chat.Message {
	rec, ok := s.lookupLocked(&msg)
	if !ok {
		return s.insertLocked(msg)
	}
	prev := rec.msg
	msg.LocalID = prev.LocalID
	if msg.ServerID == 0 {
		msg.ServerID = prev.ServerID
	}
	msg.RoomID = s.roomID
	msg.Status = chat.Advance(prev.Status, msg.Status)
	rec.msg = msg
	if msg.ServerID != 0 {
		s.byServer[msg.ServerID] = rec.msg.Key()
	}
	return rec.msg
}

func (s *Store) insertLocked(msg chat.Message) chat.Message {
	msg.RoomID = s.roomID
	key := msg.Key()
	s.records[key] = &record{msg: msg, seq: s.seq}
	s.seq++
	if msg.ServerID != 0 {
		s.byServer[msg.ServerID] = key
	}
	return msg
}

func maxStatus(a, b chat.Status) chat.Status {
	return chat.Advance(b, a)
}
