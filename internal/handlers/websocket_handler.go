package handlers

import (
	"context"
	"log/slog"
	"os"

	"github.com/gofiber/websocket/v2"
	"github.com/noteduco342/unichat-backend/internal/feed"
	"github.com/noteduco342/unichat-backend/internal/handlers/ws"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/notify"
	"github.com/noteduco342/unichat-backend/internal/service"
)

type WebSocketHandler struct {
	messageService    *service.MessageService
	attachmentService *service.AttachmentService
	userService       *service.UserService
	readCursors       *service.ReadCursorService
	hub               *ws.Hub
	pageSize          int
	unreadWindow      int
}

func NewWebSocketHandler(
	messageService *service.MessageService,
	attachmentService *service.AttachmentService,
	userService *service.UserService,
	readCursors *service.ReadCursorService,
	pageSize, unreadWindow int,
) *WebSocketHandler {
	return &WebSocketHandler{
		messageService:    messageService,
		attachmentService: attachmentService,
		userService:       userService,
		readCursors:       readCursors,
		hub:               ws.NewHub(),
		pageSize:          pageSize,
		unreadWindow:      unreadWindow,
	}
}

// GetHub returns the hub instance (useful for sending frames from other handlers)
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	identity, ok := c.Locals(httpx.IdentityKey).(models.Identity)
	if !ok || !identity.IsAuthenticated() {
		_ = c.WriteJSON(ws.ErrorResponse{Type: ws.TypeError, Code: "unauthorized", Error: "Unauthorized"})
		return
	}
	wsDebug := os.Getenv("WS_DEBUG") == "true"

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	session := ws.NewSession(context.Background(), identity.UserID, c, supportsGzip)
	h.attach(session, identity)

	h.hub.Register(session, c)
	defer func() {
		h.hub.Unregister(session.ID)
		session.Close()
	}()

	if _, err := h.userService.SyncProfile(session.Context(), identity); err != nil {
		slog.Warn("sync profile", "user_id", identity.UserID, "error", err)
	}
	if err := session.Notifier.Initialize(session.Context(), identity.UserID); err != nil {
		slog.Warn("initialize unread counts", "user_id", identity.UserID, "error", err)
		session.SendErr(err)
	}

	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			slog.Debug("ws read ended", "user_id", identity.UserID, "session_id", session.ID, "error", err)
			break
		}

		if wsDebug {
			slog.Debug("ws_recv", "user_id", identity.UserID, "frame_type", messageType, "size", len(messageBytes))
		}

		// Binary frames are gzip compressed
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.DecompressMessage(messageBytes)
			if err != nil {
				session.SendError("decompression_failed", "Failed to decompress message", err.Error())
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			session.SendError("invalid_message", "Invalid message format", err.Error())
			continue
		}

		if err := msg.Process(session); err != nil {
			session.SendErr(err)
		}
	}
}

// attach builds the session's feed and unread tracker. Both push their
// state to the client whenever it changes.
func (h *WebSocketHandler) attach(session *ws.Session, identity models.Identity) {
	opts := []feed.Option{
		feed.WithPageSize(h.pageSize),
		feed.WithListener(func(snap feed.Snapshot) {
			if err := session.Send(ws.TypeFeed, snap); err != nil {
				slog.Debug("ws write feed", "session_id", session.ID, "error", err)
			}
		}),
		feed.WithWritePermission(func(groupID string) bool {
			return h.messageService.CanWrite(identity, groupID)
		}),
	}
	if h.attachmentService.Available() {
		opts = append(opts, feed.WithUploader(session.Uploader(h.attachmentService)))
	}
	session.Feed = feed.NewController(h.messageService, identity, opts...)

	session.Notifier = notify.New(h.readCursors, h.messageService, h.unreadWindow).WithCursorFeed(h.readCursors)
	session.Notifier.OnChange(func(counts notify.Counts) {
		if err := session.Send(ws.TypeUnread, counts); err != nil {
			slog.Debug("ws write unread", "session_id", session.ID, "error", err)
		}
	})
}
