package sdk

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mfadhil/qchat/internal/bus"
	"github.com/mfadhil/qchat/internal/status"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	reconnectFloor = time.Second
	reconnectCeil  = 30 * time.Second
)

// Feed maintains the realtime websocket connection and publishes decoded
// frames on the bus as "sdk.*" events. It reconnects with capped
// exponential backoff and drives the connection state machine; it never
// applies state itself.
type Feed struct {
	endpoint string
	creds    Credentials
	bus      *bus.Bus
	machine  *status.Machine
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewFeed creates a feed for the given websocket endpoint.
func NewFeed(endpoint string, creds Credentials, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Feed {
	return &Feed{
		endpoint: endpoint,
		creds:    creds,
		bus:      b,
		machine:  m,
		logger:   logger,
	}
}

// Start launches the connect/read loop.
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	go f.run(ctx)
}

// Stop terminates the loop and closes any open connection.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Feed) run(ctx context.Context) {
	backoff := reconnectFloor
	for {
		if ctx.Err() != nil {
			return
		}
		connected, err := f.connectAndRead(ctx)
		if err != nil {
			f.logger.Warn("feed disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
			_ = f.machine.Transition(status.Reconnecting)
			f.bus.Publish(bus.Event{Kind: "sdk.disconnected", Payload: err.Error()})
		}
		if connected {
			// Backoff only grows across consecutive failed dials.
			backoff = reconnectFloor
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if !connected {
			backoff *= 2
			if backoff > reconnectCeil {
				backoff = reconnectCeil
			}
		}
	}
}

// connectAndRead dials the feed and pumps frames until the connection
// drops. The first result reports whether the dial succeeded.
func (f *Feed) connectAndRead(ctx context.Context) (bool, error) {
	if cur := f.machine.Current(); cur == status.Reconnecting || cur == status.AuthRequired {
		_ = f.machine.Transition(status.Connecting)
	}

	u, err := url.Parse(f.endpoint)
	if err != nil {
		return false, err
	}
	q := u.Query()
	q.Set("app_id", f.creds.AppID)
	q.Set("user_id", f.creds.UserID)
	q.Set("token", f.creds.Token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close() }()

	f.logger.Info("feed connected", zap.String("endpoint", f.endpoint))
	_ = f.machine.Transition(status.Syncing)
	f.bus.Publish(bus.Event{Kind: "sdk.connected"})

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Keepalive pings; the read loop owns the connection's lifetime.
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		kind, payload, err := ParseFrame(data)
		if err != nil {
			f.logger.Warn("unparseable frame", zap.Error(err))
			continue
		}
		if kind == "sdk.message" && f.machine.Current() == status.Syncing {
			_ = f.machine.Transition(status.Ready)
		}
		f.bus.Publish(bus.Event{Kind: kind, Payload: payload})
	}
}
