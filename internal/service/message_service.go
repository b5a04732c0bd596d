package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/cache"
	"github.com/noteduco342/unichat-backend/internal/config"
	"github.com/noteduco342/unichat-backend/internal/directory"
	"github.com/noteduco342/unichat-backend/internal/metrics"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/realtime"
	"github.com/noteduco342/unichat-backend/internal/repository"
	"github.com/noteduco342/unichat-backend/internal/storage"
	"github.com/noteduco342/unichat-backend/internal/validation"
)

// MaxPageSize is the largest window a single query returns. Config refuses
// larger FEED_PAGE_SIZE and UNREAD_WINDOW values at startup.
const MaxPageSize = config.MaxWindowSize

// MessageService reads and writes group message collections. Writes are
// never applied to open windows directly; they reach them through the broker.
type MessageService struct {
	messageRepo   repository.MessageRepositoryInterface
	broker        realtime.Broker
	catalogue     *directory.Catalogue
	windowCache   *cache.MessageCache
	writePolicy   directory.WritePolicy
	maxTextLength int
	attachments   AttachmentResolver
}

// AttachmentResolver turns a client's file reference into one backed by a
// stored object.
type AttachmentResolver interface {
	ResolveAttachment(ctx context.Context, groupID string, ref models.FileRef) (*models.FileRef, error)
}

func NewMessageService(
	messageRepo repository.MessageRepositoryInterface,
	broker realtime.Broker,
	catalogue *directory.Catalogue,
) *MessageService {
	return &MessageService{
		messageRepo:   messageRepo,
		broker:        broker,
		catalogue:     catalogue,
		writePolicy:   directory.PolicyMajorRestricted,
		maxTextLength: validation.DefaultMaxMessageLength,
	}
}

// WithWindowCache serves initial window loads from redis when possible.
func (s *MessageService) WithWindowCache(c *cache.MessageCache) *MessageService {
	s.windowCache = c
	return s
}

func (s *MessageService) WithWritePolicy(p directory.WritePolicy) *MessageService {
	s.writePolicy = p
	return s
}

func (s *MessageService) WithMaxTextLength(n int) *MessageService {
	if n > 0 {
		s.maxTextLength = n
	}
	return s
}

// WithAttachments enables file messages. Without it every file is rejected.
func (s *MessageService) WithAttachments(r AttachmentResolver) *MessageService {
	s.attachments = r
	return s
}

type SendMessageInput struct {
	Text      string          `json:"text"`
	File      *models.FileRef `json:"file,omitempty"`
	ReplyToID string          `json:"reply_to_id,omitempty"`
}

func clampPageSize(n int) int {
	if n <= 0 {
		return config.DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func (s *MessageService) lookupGroup(op, groupID string) (models.Group, error) {
	group, ok := s.catalogue.Lookup(groupID)
	if !ok {
		return models.Group{}, apperr.NotFound(op, "Group not found")
	}
	return group, nil
}

// CanWrite reports whether the identity may post in the group.
func (s *MessageService) CanWrite(identity models.Identity, groupID string) bool {
	group, ok := s.catalogue.Lookup(groupID)
	if !ok || !identity.IsAuthenticated() {
		return false
	}
	return s.writePolicy.CanWrite(group, identity.Major)
}

// SendMessage stores one message with a server-assigned identifier and timestamp.
func (s *MessageService) SendMessage(ctx context.Context, author models.Identity, groupID string, input SendMessageInput) (*models.Message, error) {
	const op = "service.SendMessage"

	msg, err := s.prepare(op, author, groupID, input)
	if err == nil && msg.File != nil {
		msg.File, err = s.resolveFile(ctx, op, groupID, *msg.File)
	}
	if err != nil {
		metrics.MessagesSent.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		metrics.MessagesSent.WithLabelValues(string(apperr.KindTransport)).Inc()
		return nil, apperr.Transport(op, err)
	}
	metrics.MessagesSent.WithLabelValues(metrics.Outcome("")).Inc()

	s.announce(ctx, realtime.ChangeAdded, *msg)
	return msg, nil
}

func (s *MessageService) prepare(op string, author models.Identity, groupID string, input SendMessageInput) (*models.Message, error) {
	if !author.IsAuthenticated() {
		return nil, apperr.Permission(op, "Sign in to send messages")
	}
	group, err := s.lookupGroup(op, groupID)
	if err != nil {
		return nil, err
	}

	text := validation.NormalizeText(input.Text)
	if text == "" && input.File == nil {
		return nil, apperr.Validation(op, "Message cannot be empty")
	}
	if validation.TextTooLong(text, s.maxTextLength) {
		return nil, apperr.Validation(op, "Message is too long")
	}
	if input.File != nil {
		if err := storage.ValidateKey(input.File.Key); err != nil {
			return nil, err
		}
		if !strings.Contains(input.File.Key, "/"+groupID+"/") {
			return nil, apperr.Validation(op, "Attachment belongs to another group")
		}
	}
	if strings.HasPrefix(input.ReplyToID, models.ProvisionalIDPrefix) {
		return nil, apperr.Validation(op, "Cannot reply to a message that is still sending")
	}

	if !s.writePolicy.CanWrite(group, author.Major) {
		return nil, apperr.Permission(op, "You can only post in your own major's group")
	}

	return &models.Message{
		GroupID:           groupID,
		AuthorID:          author.UserID,
		AuthorDisplayName: author.Profile().DisplayNameOrDefault(),
		AuthorPhotoRef:    author.PhotoURL,
		AuthorMajor:       author.Major,
		Text:              text,
		File:              input.File,
		ReplyToID:         strings.TrimSpace(input.ReplyToID),
	}, nil
}

func (s *MessageService) resolveFile(ctx context.Context, op, groupID string, ref models.FileRef) (*models.FileRef, error) {
	if s.attachments == nil {
		return nil, apperr.Transport(op, ErrStorageNotConfigured)
	}
	return s.attachments.ResolveAttachment(ctx, groupID, ref)
}

// DeleteMessage removes a message authored by userID.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, groupID, messageID string) error {
	const op = "service.DeleteMessage"

	err := s.deleteMessage(ctx, op, userID, groupID, messageID)
	metrics.MessagesDeleted.WithLabelValues(metrics.Outcome(string(apperr.KindOf(err)))).Inc()
	return err
}

func (s *MessageService) deleteMessage(ctx context.Context, op, userID, groupID, messageID string) error {
	if _, err := s.lookupGroup(op, groupID); err != nil {
		return err
	}
	if strings.HasPrefix(messageID, models.ProvisionalIDPrefix) {
		return apperr.NotFound(op, "Message not found")
	}

	msg, err := s.messageRepo.FindByID(ctx, groupID, messageID)
	if err != nil {
		return apperr.Transport(op, err)
	}
	if !msg.IsAuthoredBy(userID) {
		return apperr.Permission(op, "You can only delete your own messages")
	}

	if err := s.messageRepo.SoftDelete(ctx, groupID, messageID); err != nil {
		return apperr.Transport(op, err)
	}

	s.announce(ctx, realtime.ChangeRemoved, *msg)
	return nil
}

// announce retires cached windows and tells open windows about a change.
// The write is already durable, so failures here are logged and not returned.
func (s *MessageService) announce(ctx context.Context, kind realtime.ChangeKind, msg models.Message) {
	if err := s.windowCache.InvalidateWindow(msg.GroupID); err != nil {
		slog.Warn("invalidate window cache", "group_id", msg.GroupID, "error", err)
	}
	event := realtime.ChangeEvent{GroupID: msg.GroupID, Kind: kind, Message: msg}
	if err := s.broker.Publish(context.WithoutCancel(ctx), event); err != nil {
		slog.Error("publish change event", "group_id", msg.GroupID, "message_id", msg.ID, "kind", kind, "error", err)
	}
}

// FetchOlderPage returns up to pageSize messages strictly older than before,
// in ascending order. An empty result means there is no more history.
func (s *MessageService) FetchOlderPage(ctx context.Context, groupID string, before models.Cursor, pageSize int) ([]models.Message, error) {
	const op = "service.FetchOlderPage"

	if _, err := s.lookupGroup(op, groupID); err != nil {
		return nil, err
	}
	if before.IsZero() {
		return nil, apperr.Validation(op, "A cursor is required")
	}
	msgs, err := s.messageRepo.OlderPage(ctx, groupID, before, clampPageSize(pageSize))
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	return msgs, nil
}

// LatestWindow returns the newest n messages of a group in ascending order.
func (s *MessageService) LatestWindow(ctx context.Context, groupID string, n int) ([]models.Message, error) {
	const op = "service.LatestWindow"

	if _, err := s.lookupGroup(op, groupID); err != nil {
		return nil, err
	}
	msgs, err := s.loadWindow(ctx, groupID, clampPageSize(n))
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	models.SortChronological(msgs)
	return msgs, nil
}

// loadWindow returns the newest n messages, preferring the redis copy.
func (s *MessageService) loadWindow(ctx context.Context, groupID string, n int) ([]models.Message, error) {
	gen, genErr := s.windowCache.Generation(groupID)
	if genErr == nil {
		if msgs, ok := s.windowCache.GetWindow(groupID, gen, n); ok {
			return msgs, nil
		}
	}

	msgs, err := s.messageRepo.LatestWindow(ctx, groupID, n)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		if err := s.windowCache.SetWindow(groupID, gen, n, msgs); err != nil {
			slog.Debug("cache window", "group_id", groupID, "error", err)
		}
	}
	return msgs, nil
}
