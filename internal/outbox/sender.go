// Package outbox drains queued user messages through the SDK. Each entry
// gets an optimistic timeline record first, so the message is visible as
// "sending" before the network round trip, then resolves to the server's
// echo or to failed.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfadhil/qchat/internal/bus"
	"github.com/mfadhil/qchat/internal/chat"
	"github.com/mfadhil/qchat/internal/store"
)

// Upload size caps, matching the mobile client's limits.
const (
	maxFileBytes  = 20 << 20
	maxImageBytes = 2 << 20
)

// CommentSender is the slice of the SDK the sender pushes through.
type CommentSender interface {
	PostComment(ctx context.Context, roomID int64, localID, text string) (*chat.Message, error)
	PostCustomComment(ctx context.Context, roomID int64, localID, caption, customType string, content json.RawMessage) (*chat.Message, error)
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// Reconciler is the slice of the dispatch engine the sender reports to.
type Reconciler interface {
	AddLocal(msg chat.Message) error
	ConfirmSend(roomID int64, localID string, server chat.Message) error
	FailSend(roomID int64, localID string) error
}

// Sender drains the outbox and sends entries via the SDK.
type Sender struct {
	db     *store.DB
	sdk    CommentSender
	engine Reconciler
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, sdk CommentSender, engine Reconciler, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{db: db, sdk: sdk, engine: engine, bus: b, logger: logger}
}

// QueueText enqueues a text message and returns its local id
// immediately; the send happens on the drain loop.
func (s *Sender) QueueText(roomID int64, text string) (string, error) {
	localID := uuid.NewString()
	err := s.db.QueueOutbox(&store.OutboxEntry{
		LocalID: localID,
		RoomID:  roomID,
		Kind:    "text",
		Body:    text,
	})
	if err != nil {
		return "", fmt.Errorf("queue text: %w", err)
	}
	return localID, nil
}

// QueueFile enqueues an attachment send: the file is uploaded first,
// then a custom message carrying its URL is posted. Size caps mirror
// the mobile client: 2 MB for images, 20 MB otherwise.
func (s *Sender) QueueFile(roomID int64, path, contentType string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("queue file: %w", err)
	}
	limit := int64(maxFileBytes)
	if isImageType(contentType) {
		limit = maxImageBytes
	}
	if info.Size() == 0 || info.Size() > limit {
		return "", fmt.Errorf("queue file: size %d outside limit %d", info.Size(), limit)
	}

	localID := uuid.NewString()
	err = s.db.QueueOutbox(&store.OutboxEntry{
		LocalID:  localID,
		RoomID:   roomID,
		Kind:     "file",
		Body:     "File attachment " + filepath.Ext(path),
		FilePath: path,
		FileType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("queue file: %w", err)
	}
	return localID, nil
}

// Start begins polling the outbox for queued entries.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the drain loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.LocalID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("local_id", entry.LocalID))
			continue
		}

		// Optimistic record before the round trip.
		payload := chat.Payload{Kind: chat.PayloadText, Text: entry.Body}
		if entry.Kind == "file" {
			payload.Kind = chat.PayloadUpload
			payload.FileURI = entry.FilePath
		}
		if err := s.engine.AddLocal(chat.Message{
			LocalID:   entry.LocalID,
			RoomID:    entry.RoomID,
			Timestamp: time.Now().UnixMilli(),
			Payload:   payload,
		}); err != nil {
			s.logger.Error("failed to add optimistic record", zap.Error(err), zap.String("local_id", entry.LocalID))
		}

		server, err := s.send(ctx, entry)
		if err != nil {
			s.fail(entry, err)
			continue
		}

		if err := s.db.MarkOutboxSent(entry.LocalID, server.ServerID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("local_id", entry.LocalID))
		}
		if err := s.engine.ConfirmSend(entry.RoomID, entry.LocalID, *server); err != nil {
			s.logger.Error("failed to confirm send", zap.Error(err), zap.String("local_id", entry.LocalID))
		}

		s.logger.Info("message sent",
			zap.String("local_id", entry.LocalID),
			zap.Int64("server_id", server.ServerID))
		s.bus.Publish(bus.Event{
			Kind: "message.send_ack",
			Payload: map[string]any{
				"local_id":  entry.LocalID,
				"server_id": server.ServerID,
			},
		})
	}
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) (*chat.Message, error) {
	switch entry.Kind {
	case "file":
		f, err := os.Open(entry.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open attachment: %w", err)
		}
		defer func() { _ = f.Close() }()
		url, err := s.sdk.Upload(ctx, filepath.Base(entry.FilePath), entry.FileType, f)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		content, _ := json.Marshal(map[string]string{
			"url":       url,
			"file_name": filepath.Base(entry.FilePath),
			"caption":   "",
		})
		customType := "file_attachment"
		if isImageType(entry.FileType) {
			customType = "image"
		}
		return s.sdk.PostCustomComment(ctx, entry.RoomID, entry.LocalID, entry.Body, customType, content)
	default:
		return s.sdk.PostComment(ctx, entry.RoomID, entry.LocalID, entry.Body)
	}
}

func (s *Sender) fail(entry store.OutboxEntry, sendErr error) {
	s.logger.Error("failed to send message", zap.Error(sendErr), zap.String("local_id", entry.LocalID))
	if err := s.db.MarkOutboxFailed(entry.LocalID, sendErr.Error()); err != nil {
		s.logger.Error("failed to mark failed", zap.Error(err), zap.String("local_id", entry.LocalID))
	}
	if err := s.engine.FailSend(entry.RoomID, entry.LocalID); err != nil {
		s.logger.Error("failed to fail optimistic record", zap.Error(err), zap.String("local_id", entry.LocalID))
	}
	s.bus.Publish(bus.Event{
		Kind: "message.send_failed",
		Payload: map[string]string{
			"local_id": entry.LocalID,
			"error":    sendErr.Error(),
		},
	})
}

func isImageType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}
