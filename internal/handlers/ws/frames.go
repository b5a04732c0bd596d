package ws

import (
	"bytes"
	"context"
	"strings"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/feed"
	"github.com/noteduco342/unichat-backend/internal/models"
)

// MessageOpenGroup switches the session's feed to a group.
type MessageOpenGroup struct {
	GroupID string `json:"group_id"`
}

func (msg *MessageOpenGroup) GetType() string {
	return "open_group"
}

func (msg *MessageOpenGroup) Process(s *Session) error {
	groupID := strings.TrimSpace(msg.GroupID)
	if groupID == "" {
		return apperr.Validation("ws.open_group", "group_id is required")
	}
	if err := s.Feed.OpenGroup(s.ctx, groupID); err != nil {
		return err
	}
	// A freshly opened feed starts at the bottom.
	s.markRead(groupID)
	return nil
}

type MessageCloseGroup struct {
}

func (msg *MessageCloseGroup) GetType() string {
	return "close_group"
}

func (msg *MessageCloseGroup) Process(s *Session) error {
	s.Feed.CloseGroup()
	return nil
}

type MessageLoadOlder struct {
}

func (msg *MessageLoadOlder) GetType() string {
	return "load_older"
}

func (msg *MessageLoadOlder) Process(s *Session) error {
	s.Go(func(ctx context.Context) {
		if err := s.Feed.LoadOlderHistory(ctx); err != nil && ctx.Err() == nil {
			s.SendErr(err)
		}
	})
	return nil
}

// InlineUpload is a small file carried inside a send frame, base64 encoded.
type InlineUpload struct {
	Name     string              `json:"name"`
	Category models.MimeCategory `json:"category,omitempty"`
	Data     []byte              `json:"data"`
}

// MessageSend queues a message. File is a reference returned by the
// attachment endpoint; Upload carries the file itself.
type MessageSend struct {
	ClientID  string          `json:"client_id,omitempty"`
	Text      string          `json:"text"`
	ReplyToID string          `json:"reply_to_id,omitempty"`
	File      *models.FileRef `json:"file,omitempty"`
	Upload    *InlineUpload   `json:"upload,omitempty"`
}

// SendResult is the payload of send_result frames.
type SendResult struct {
	ClientID  string          `json:"client_id,omitempty"`
	PendingID string          `json:"pending_id"`
	Message   *models.Message `json:"message,omitempty"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (msg *MessageSend) GetType() string {
	return "send"
}

func (msg *MessageSend) Process(s *Session) error {
	const op = "ws.send"

	var attachment *feed.Attachment
	switch {
	case msg.Upload != nil:
		if len(msg.Upload.Data) > maxInlineUpload {
			return apperr.PayloadTooLarge(op, "Upload large files through the attachment endpoint")
		}
		attachment = &feed.Attachment{
			FileName: msg.Upload.Name,
			Size:     int64(len(msg.Upload.Data)),
			Category: msg.Upload.Category,
			Body:     bytes.NewReader(msg.Upload.Data),
		}
	case msg.File != nil:
		attachment = &feed.Attachment{FileName: msg.File.Name, Size: msg.File.Size, Ref: msg.File}
	}

	pending, err := s.Feed.Send(s.ctx, msg.Text, attachment, msg.ReplyToID)
	if err != nil {
		return err
	}

	clientID := msg.ClientID
	s.Go(func(ctx context.Context) {
		sent, err := pending.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		result := SendResult{ClientID: clientID, PendingID: pending.ID, Message: sent}
		if err != nil {
			result.Code = string(apperr.KindOf(err))
			result.Error = apperr.Message(err)
		}
		if werr := s.Send(TypeSendResult, result); werr != nil {
			s.SendErr(apperr.Transport(op, werr))
		}
	})
	return nil
}

type MessageDelete struct {
	MessageID string `json:"message_id"`
}

func (msg *MessageDelete) GetType() string {
	return "delete"
}

func (msg *MessageDelete) Process(s *Session) error {
	messageID := strings.TrimSpace(msg.MessageID)
	if messageID == "" {
		return apperr.Validation("ws.delete", "message_id is required")
	}
	confirm := feed.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		return s.Confirm(ctx, messageID, prompt)
	})
	s.Go(func(ctx context.Context) {
		if err := s.Feed.RequestDelete(ctx, messageID, confirm); err != nil && ctx.Err() == nil {
			s.SendErr(err)
		}
	})
	return nil
}

// MessageConfirmDelete answers a confirm_delete prompt.
type MessageConfirmDelete struct {
	RequestID string `json:"request_id"`
	Accept    bool   `json:"accept"`
}

func (msg *MessageConfirmDelete) GetType() string {
	return "confirm_delete"
}

func (msg *MessageConfirmDelete) Process(s *Session) error {
	if !s.resolve(msg.RequestID, msg.Accept) {
		return apperr.NotFound("ws.confirm_delete", "No delete is waiting for this answer")
	}
	return nil
}

// MessageMarkRead marks a group read; an empty group means the open one.
type MessageMarkRead struct {
	GroupID string `json:"group_id,omitempty"`
}

func (msg *MessageMarkRead) GetType() string {
	return "mark_read"
}

func (msg *MessageMarkRead) Process(s *Session) error {
	groupID := strings.TrimSpace(msg.GroupID)
	if groupID == "" {
		groupID = s.Feed.GroupID()
	}
	if groupID == "" {
		return apperr.Validation("ws.mark_read", "No group open")
	}
	return s.Notifier.MarkGroupRead(s.ctx, groupID)
}

type MessageScrolled struct {
	AtBottom bool `json:"at_bottom"`
}

func (msg *MessageScrolled) GetType() string {
	return "scrolled"
}

func (msg *MessageScrolled) Process(s *Session) error {
	s.Feed.Scrolled(msg.AtBottom)
	if msg.AtBottom {
		s.markRead(s.Feed.GroupID())
	}
	return nil
}
