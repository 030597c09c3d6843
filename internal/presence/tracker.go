// Package presence tracks ephemeral peer state: who is online and who is
// typing where. Typing is a timer-reset machine — each typing event
// re-arms a clear timer, so the indicator disappears shortly after the
// peer stops. Nothing here touches the message or room stores.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mfadhil/qchat/internal/bus"
	"github.com/mfadhil/qchat/internal/sdk"
)

// DefaultTypingTTL mirrors the mobile client's 850ms auto-clear.
const DefaultTypingTTL = 850 * time.Millisecond

// UserPresence is the last known online state of a peer.
type UserPresence struct {
	IsOnline   bool
	LastOnline time.Time
}

// Tracker consumes sdk.presence and sdk.typing events from the bus.
type Tracker struct {
	mu     sync.Mutex
	bus    *bus.Bus
	logger *zap.Logger
	ttl    time.Duration
	typing map[int64]*typingState
	online map[string]UserPresence
	cancel context.CancelFunc
}

type typingState struct {
	username string
	timer    *time.Timer
}

// NewTracker creates a tracker with the default typing TTL.
func NewTracker(b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{
		bus:    b,
		logger: logger,
		ttl:    DefaultTypingTTL,
		typing: make(map[int64]*typingState),
		online: make(map[string]UserPresence),
	}
}

// SetTTL overrides the typing auto-clear interval. Must be called before
// Start.
func (t *Tracker) SetTTL(d time.Duration) { t.ttl = d }

// Start subscribes to presence and typing events.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ch, unsub := t.bus.Subscribe("sdk.", 64)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				switch p := evt.Payload.(type) {
				case sdk.PresenceUpdate:
					t.applyPresence(p)
				case sdk.TypingUpdate:
					t.applyTyping(p)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the tracker and clears pending timers.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.typing {
		st.timer.Stop()
	}
	t.typing = make(map[int64]*typingState)
}

// Typing returns the username currently typing in the room, if any.
func (t *Tracker) Typing(roomID int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.typing[roomID]; ok {
		return st.username, true
	}
	return "", false
}

// Online returns the last known presence of a peer.
func (t *Tracker) Online(userID string) (UserPresence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.online[userID]
	return p, ok
}

func (t *Tracker) applyPresence(p sdk.PresenceUpdate) {
	t.mu.Lock()
	t.online[p.UserID] = UserPresence{
		IsOnline:   p.IsOnline,
		LastOnline: time.UnixMilli(p.LastOnline),
	}
	t.mu.Unlock()
	t.bus.Publish(bus.Event{Kind: "presence.updated", Payload: p})
}

func (t *Tracker) applyTyping(u sdk.TypingUpdate) {
	t.mu.Lock()
	if st, ok := t.typing[u.RoomID]; ok {
		st.username = u.Username
		st.timer.Reset(t.ttl)
		t.mu.Unlock()
		return
	}
	roomID := u.RoomID
	t.typing[roomID] = &typingState{
		username: u.Username,
		timer: time.AfterFunc(t.ttl, func() {
			t.clearTyping(roomID)
		}),
	}
	t.mu.Unlock()
	t.bus.Publish(bus.Event{Kind: "presence.typing", Payload: u})
}

func (t *Tracker) clearTyping(roomID int64) {
	t.mu.Lock()
	delete(t.typing, roomID)
	t.mu.Unlock()
	t.bus.Publish(bus.Event{Kind: "presence.typing_cleared", Payload: roomID})
}
