package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/realtime"
	"github.com/noteduco342/unichat-backend/internal/repository"
)

// ReadCursorService stores read cursors and announces every advance on the
// user's cursor topic, so all sessions of that user see it.
type ReadCursorService struct {
	repo   repository.ReadCursorRepositoryInterface
	broker realtime.Broker
}

func NewReadCursorService(repo repository.ReadCursorRepositoryInterface, broker realtime.Broker) *ReadCursorService {
	return &ReadCursorService{repo: repo, broker: broker}
}

// UpsertMonotonic stores lastRead unless the stored cursor is later, and
// returns the stored value.
func (s *ReadCursorService) UpsertMonotonic(ctx context.Context, userID, groupID string, lastRead time.Time) (time.Time, error) {
	stored, err := s.repo.UpsertMonotonic(ctx, userID, groupID, lastRead)
	if err != nil {
		return time.Time{}, err
	}
	event := realtime.CursorEvent(userID, groupID, stored)
	if err := s.broker.Publish(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("publish read cursor", "user_id", userID, "group_id", groupID, "error", err)
	}
	return stored, nil
}

func (s *ReadCursorService) ListForUser(ctx context.Context, userID string) ([]models.ReadCursor, error) {
	return s.repo.ListForUser(ctx, userID)
}

// SubscribeCursors follows the cursor changes of userID until the
// subscription is closed.
func (s *ReadCursorService) SubscribeCursors(userID string) *realtime.Subscription {
	return s.broker.Subscribe(realtime.CursorTopic(userID))
}
