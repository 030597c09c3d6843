// Package dispatch owns the reconciled client state: one roomlist.Index
// plus a timeline.Store per opened room. It is the single writer
// demanded by both stores; feed events and imperative calls (open room,
// load more, outbox updates) all funnel through the engine's mutex, one
// mutation at a time, and every applied change is mirrored into the
// sqlite cache and republished on the bus.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mfadhil/qchat/internal/bus"
	"github.com/mfadhil/qchat/internal/chat"
	"github.com/mfadhil/qchat/internal/roomlist"
	"github.com/mfadhil/qchat/internal/sdk"
	"github.com/mfadhil/qchat/internal/store"
	"github.com/mfadhil/qchat/internal/timeline"
)

// ErrRoomNotOpen is returned by operations that need an initialized
// timeline for a room nobody has opened.
var ErrRoomNotOpen = errors.New("dispatch: room not open")

// Puller is the slice of the SDK the engine pulls from.
type Puller interface {
	LoadRoomList(ctx context.Context) ([]chat.RoomSummary, error)
	RoomsInfo(ctx context.Context, roomIDs []int64) (map[int64]sdk.RoomInfo, error)
	LoadComments(ctx context.Context, roomID, beforeID int64, limit int) ([]chat.Message, bool, error)
}

// Engine applies feed events and UI actions to the reconciled state.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	client Puller
	logger *zap.Logger

	mu        sync.Mutex // the single-writer serialization point
	rooms     *roomlist.Index
	timelines map[int64]*timeline.Store

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an engine over an empty index.
func NewEngine(db *store.DB, b *bus.Bus, client Puller, logger *zap.Logger) *Engine {
	return &Engine{
		db:        db,
		bus:       b,
		client:    client,
		logger:    logger,
		rooms:     roomlist.New(),
		timelines: make(map[int64]*timeline.Store),
	}
}

// Start restores the persisted high-water checkpoint and subscribes to
// feed events. Events are applied strictly one at a time.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if hw, err := e.db.HighWaterCheckpoint(); err != nil {
		e.logger.Warn("failed to restore high-water checkpoint", zap.Error(err))
	} else if hw > 0 {
		e.rooms.SeedHighWater(hw)
	}

	ch, unsub := e.bus.Subscribe("sdk.", 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-e.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "sdk.message":
		msg, ok := evt.Payload.(*chat.Message)
		if !ok {
			return
		}
		if err := e.ApplyMessage(*msg); err != nil {
			e.logger.Error("failed to apply message", zap.Error(err), zap.Int64("server_id", msg.ServerID))
		}
	case "sdk.delivered":
		if r, ok := evt.Payload.(sdk.Receipt); ok {
			e.ApplyDelivered(r)
		}
	case "sdk.read":
		if r, ok := evt.Payload.(sdk.Receipt); ok {
			e.ApplyRead(r)
		}
	case "sdk.connected":
		// Counts may have drifted while disconnected; the bulk
		// endpoint is ground truth.
		if err := e.Refresh(e.ctx); err != nil {
			e.logger.Error("refresh after reconnect failed", zap.Error(err))
		}
	}
}

// ApplyMessage folds one pushed message into the room index and, when
// the room is open, its timeline. A push for an unknown room triggers a
// full authoritative reload instead of fabricating a room.
func (e *Engine) ApplyMessage(msg chat.Message) error {
	e.mu.Lock()
	// The timeline resolves identity; an echo naming only a server id
	// merges into the optimistic record, and that merged record is what
	// gets persisted and published.
	stored := msg
	if tl, ok := e.timelines[msg.RoomID]; ok {
		stored = tl.ApplyInbound(msg)
	}
	err := e.rooms.ApplyInbound(roomlist.InboundMessage{
		RoomID:    msg.RoomID,
		MessageID: msg.ServerID,
		Preview:   truncate(msg.Payload.Text, 100),
		Timestamp: msg.Timestamp,
	})
	var room chat.RoomSummary
	applied := err == nil
	if applied {
		room, _ = e.rooms.Get(msg.RoomID)
	}
	highWater := e.rooms.HighWater()
	e.mu.Unlock()

	if errors.Is(err, roomlist.ErrUnknownRoom) {
		e.logger.Info("push for unknown room, reloading list", zap.Int64("room_id", msg.RoomID))
		return e.Refresh(e.ctx)
	}

	if err := e.db.UpsertMessage(&stored); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if applied {
		if err := e.db.UpsertRoom(&room); err != nil {
			return fmt.Errorf("persist room: %w", err)
		}
		if err := e.db.SaveHighWaterCheckpoint(highWater); err != nil {
			return fmt.Errorf("persist checkpoint: %w", err)
		}
		e.bus.Publish(bus.Event{Kind: "room.updated", Payload: room})
	}
	e.bus.Publish(bus.Event{Kind: "message.updated", Payload: stored})
	return nil
}

// ApplyDelivered advances every message of the room at or before the
// cutoff to delivered.
func (e *Engine) ApplyDelivered(r sdk.Receipt) {
	e.mu.Lock()
	if tl, ok := e.timelines[r.RoomID]; ok {
		tl.MarkDelivered(r.CutoffTimestamp)
	}
	e.mu.Unlock()
	if err := e.db.MarkDeliveredBefore(r.RoomID, r.CutoffTimestamp); err != nil {
		e.logger.Error("failed to persist delivered cutoff", zap.Error(err), zap.Int64("room_id", r.RoomID))
	}
	e.bus.Publish(bus.Event{Kind: "message.delivered", Payload: r})
}

// ApplyRead advances every message of the room at or before the cutoff
// to read.
func (e *Engine) ApplyRead(r sdk.Receipt) {
	e.mu.Lock()
	if tl, ok := e.timelines[r.RoomID]; ok {
		tl.MarkRead(r.CutoffTimestamp)
	}
	e.mu.Unlock()
	if err := e.db.MarkReadBefore(r.RoomID, r.CutoffTimestamp); err != nil {
		e.logger.Error("failed to persist read cutoff", zap.Error(err), zap.Int64("room_id", r.RoomID))
	}
	e.bus.Publish(bus.Event{Kind: "message.read", Payload: r})
}

// Refresh pulls the room list and bulk unread counts and replaces the
// index with the result. Local state is untouched when either pull
// fails.
func (e *Engine) Refresh(ctx context.Context) error {
	rooms, err := e.client.LoadRoomList(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	ids := make([]int64, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	info, err := e.client.RoomsInfo(ctx, ids)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	for i := range rooms {
		if ri, ok := info[rooms[i].ID]; ok {
			rooms[i].UnreadCount = ri.UnreadCount
			if ri.LastMessageID > rooms[i].LastMessageID {
				rooms[i].LastMessageID = ri.LastMessageID
			}
		}
	}

	e.mu.Lock()
	e.rooms.LoadAll(rooms)
	highWater := e.rooms.HighWater()
	e.mu.Unlock()

	for i := range rooms {
		if err := e.db.UpsertRoom(&rooms[i]); err != nil {
			return fmt.Errorf("refresh: persist room: %w", err)
		}
	}
	if err := e.db.SaveHighWaterCheckpoint(highWater); err != nil {
		return fmt.Errorf("refresh: persist checkpoint: %w", err)
	}
	e.bus.Publish(bus.Event{Kind: "room.list_loaded", Payload: len(rooms)})
	e.logger.Info("room list refreshed", zap.Int("rooms", len(rooms)))
	return nil
}

// OpenRoom marks the room read, loads its newest page and initializes
// its timeline. Returns the ordered messages for display.
func (e *Engine) OpenRoom(ctx context.Context, roomID int64) ([]chat.Message, error) {
	batch, hasMore, err := e.client.LoadComments(ctx, roomID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("open room %d: %w", roomID, err)
	}

	e.mu.Lock()
	tl := e.ensureTimelineLocked(roomID)
	tl.Reset(batch, hasMore)
	e.rooms.MarkRead(roomID)
	view := tl.Ordered()
	e.mu.Unlock()

	for i := range batch {
		if err := e.db.UpsertMessage(&batch[i]); err != nil {
			return nil, fmt.Errorf("open room %d: persist message: %w", roomID, err)
		}
	}
	if err := e.db.ResetUnread(roomID); err != nil {
		return nil, fmt.Errorf("open room %d: reset unread: %w", roomID, err)
	}
	e.bus.Publish(bus.Event{Kind: "room.opened", Payload: roomID})
	return view, nil
}

// LoadMore merges the page before the oldest held message into the
// room's timeline. The room must be open.
func (e *Engine) LoadMore(ctx context.Context, roomID int64) error {
	e.mu.Lock()
	tl, ok := e.timelines[roomID]
	e.mu.Unlock()
	if !ok {
		return ErrRoomNotOpen
	}
	if !tl.HasMoreBefore() {
		return nil
	}

	batch, hasMore, err := e.client.LoadComments(ctx, roomID, tl.OldestServerID(), 0)
	if err != nil {
		return fmt.Errorf("load more for room %d: %w", roomID, err)
	}

	e.mu.Lock()
	tl.MergeOlder(batch, hasMore)
	e.mu.Unlock()

	for i := range batch {
		if err := e.db.UpsertMessage(&batch[i]); err != nil {
			return fmt.Errorf("load more for room %d: persist message: %w", roomID, err)
		}
	}
	e.bus.Publish(bus.Event{Kind: "room.page_loaded", Payload: roomID})
	return nil
}

// AddLocal inserts an optimistic record for a user-submitted message.
func (e *Engine) AddLocal(msg chat.Message) error {
	e.mu.Lock()
	tl := e.ensureTimelineLocked(msg.RoomID)
	_, err := tl.AddLocal(msg)
	var rec chat.Message
	if err == nil {
		rec, _ = tl.Get(msg.LocalID)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if err := e.db.UpsertMessage(&rec); err != nil {
		return fmt.Errorf("persist local message: %w", err)
	}
	e.bus.Publish(bus.Event{Kind: "message.updated", Payload: rec})
	return nil
}

// ConfirmSend replaces the optimistic record with the server's echo.
func (e *Engine) ConfirmSend(roomID int64, localID string, server chat.Message) error {
	e.mu.Lock()
	tl, ok := e.timelines[roomID]
	var rec chat.Message
	var err error
	if ok {
		err = tl.ConfirmSend(localID, server)
		if err == nil {
			rec, _ = tl.Get(localID)
		}
	}
	e.mu.Unlock()
	if !ok {
		return ErrRoomNotOpen
	}
	if err != nil {
		return err
	}
	if err := e.db.UpsertMessage(&rec); err != nil {
		return fmt.Errorf("persist confirmed message: %w", err)
	}
	e.bus.Publish(bus.Event{Kind: "message.updated", Payload: rec})
	return nil
}

// FailSend marks the optimistic record as failed; it stays visible for
// manual retry.
func (e *Engine) FailSend(roomID int64, localID string) error {
	e.mu.Lock()
	tl, ok := e.timelines[roomID]
	var rec chat.Message
	var err error
	if ok {
		err = tl.FailSend(localID)
		if err == nil {
			rec, _ = tl.Get(localID)
		}
	}
	e.mu.Unlock()
	if !ok {
		return ErrRoomNotOpen
	}
	if err != nil {
		return err
	}
	if err := e.db.UpsertMessage(&rec); err != nil {
		return fmt.Errorf("persist failed message: %w", err)
	}
	e.bus.Publish(bus.Event{Kind: "message.send_failed", Payload: rec})
	return nil
}

// Rooms returns the current room ordering, most recent activity first.
func (e *Engine) Rooms() []chat.RoomSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rooms.Ordered()
}

// Messages returns the ordered view of an open room's timeline.
func (e *Engine) Messages(roomID int64) ([]chat.Message, error) {
	e.mu.Lock()
	tl, ok := e.timelines[roomID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotOpen
	}
	return tl.Ordered(), nil
}

func (e *Engine) ensureTimelineLocked(roomID int64) *timeline.Store {
	tl, ok := e.timelines[roomID]
	if !ok {
		tl = timeline.New(roomID)
		e.timelines[roomID] = tl
	}
	return tl
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
