package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/feed"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/notify"
	"github.com/noteduco342/unichat-backend/internal/service"
)

const (
	// maxInlineUpload bounds files sent inside a send frame; larger files
	// go through the HTTP attachment endpoint.
	maxInlineUpload = 8 << 20
	maxFrameBytes   = 12 << 20
	gzipThreshold   = 512
)

// Conn is the write side of a WebSocket connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Session is one connected client: its feed, its unread counts and the
// delete confirmations it still has to answer.
type Session struct {
	ID       string
	UserID   string
	Feed     *feed.Controller
	Notifier *notify.Notifier

	conn         Conn
	supportsGzip bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex

	confirmMu sync.Mutex
	confirms  map[string]chan bool

	closeOnce sync.Once
}

func NewSession(ctx context.Context, userID string, conn Conn, supportsGzip bool) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		conn:         conn,
		supportsGzip: supportsGzip,
		ctx:          ctx,
		cancel:       cancel,
		confirms:     make(map[string]chan bool),
	}
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Send writes one {type, payload} frame. Frames above a small size are gzip
// compressed for clients that asked for it.
func (s *Session) Send(frameType string, payload interface{}) error {
	data, err := json.Marshal(Frame{Type: frameType, Payload: payload})
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Session) write(data []byte) error {
	messageType := websocket.TextMessage
	if s.supportsGzip && len(data) > gzipThreshold {
		if compressed, err := compressData(data); err == nil && len(compressed) < len(data) {
			data = compressed
			messageType = websocket.BinaryMessage
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	return s.conn.WriteMessage(messageType, data)
}

// SendError sends an error response to the client
func (s *Session) SendError(code, message, details string) error {
	data, err := json.Marshal(ErrorResponse{
		Type:    TypeError,
		Error:   message,
		Code:    code,
		Details: details,
	})
	if err != nil {
		return err
	}
	return s.write(data)
}

// SendErr reports err to the client by kind. Transport details stay in the log.
func (s *Session) SendErr(err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindTransport {
		slog.Warn("ws operation failed", "user_id", s.UserID, "session_id", s.ID, "error", err)
	}
	if werr := s.SendError(string(kind), apperr.Message(err), ""); werr != nil {
		slog.Debug("ws write error frame", "session_id", s.ID, "error", werr)
	}
}

// Go runs fn outside the read loop so frames such as confirm_delete can
// still be read while it waits. Close waits for it to return.
func (s *Session) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Confirm asks the client to accept deleting messageID and waits for the
// matching confirm_delete frame.
func (s *Session) Confirm(ctx context.Context, messageID, prompt string) (bool, error) {
	requestID := uuid.NewString()
	answer := make(chan bool, 1)

	s.confirmMu.Lock()
	s.confirms[requestID] = answer
	s.confirmMu.Unlock()
	defer func() {
		s.confirmMu.Lock()
		delete(s.confirms, requestID)
		s.confirmMu.Unlock()
	}()

	err := s.Send(TypeConfirmDelete, map[string]string{
		"request_id": requestID,
		"message_id": messageID,
		"prompt":     prompt,
	})
	if err != nil {
		return false, apperr.Transport("ws.Confirm", err)
	}

	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, nil
	}
}

func (s *Session) resolve(requestID string, accept bool) bool {
	s.confirmMu.Lock()
	answer, ok := s.confirms[requestID]
	s.confirmMu.Unlock()
	if !ok {
		return false
	}
	select {
	case answer <- accept:
	default:
	}
	return true
}

// markRead advances the cursor of the open group in the background.
func (s *Session) markRead(groupID string) {
	if groupID == "" || s.Notifier == nil {
		return
	}
	s.Go(func(ctx context.Context) {
		if err := s.Notifier.MarkGroupRead(ctx, groupID); err != nil && ctx.Err() == nil {
			s.SendErr(err)
		}
	})
}

// Close cancels pending work, waits for it and detaches every live window.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		if s.Feed != nil {
			s.Feed.Dispose()
		}
		if s.Notifier != nil {
			s.Notifier.Dispose()
		}
	})
}

// Uploader wraps the attachment service so inline uploads also report
// upload_progress frames to this session.
func (s *Session) Uploader(svc *service.AttachmentService) feed.Uploader {
	return &sessionUploader{svc: svc, s: s}
}

type sessionUploader struct {
	svc *service.AttachmentService
	s   *Session
}

func (u *sessionUploader) UploadAttachment(ctx context.Context, in service.UploadInput, onProgress func(int)) (*models.FileRef, error) {
	return u.svc.UploadAttachment(ctx, in, func(percent int) {
		onProgress(percent)
		if err := u.s.Send(TypeUploadProgress, UploadProgress{GroupID: in.GroupID, FileName: in.FileName, Percent: percent}); err != nil {
			slog.Debug("ws write upload progress", "session_id", u.s.ID, "error", err)
		}
	})
}

// UploadProgress is the payload of upload_progress frames.
type UploadProgress struct {
	GroupID  string `json:"group_id"`
	FileName string `json:"file_name"`
	Key      string `json:"key,omitempty"`
	Percent  int    `json:"percent"`
}
