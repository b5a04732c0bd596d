package repository

import (
	"context"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
)

// MessageRepositoryInterface defines the contract for a group's message collection.
// Every list it returns is in ascending (createdAt, id) order.
type MessageRepositoryInterface interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, groupID, id string) (*models.Message, error)
	LatestWindow(ctx context.Context, groupID string, limit int) ([]models.Message, error)
	OlderPage(ctx context.Context, groupID string, before models.Cursor, limit int) ([]models.Message, error)
	SoftDelete(ctx context.Context, groupID, id string) error
}

// ReadCursorRepositoryInterface defines the contract for per-user read cursors
type ReadCursorRepositoryInterface interface {
	UpsertMonotonic(ctx context.Context, userID, groupID string, lastRead time.Time) (time.Time, error)
	Get(ctx context.Context, userID, groupID string) (*models.ReadCursor, error)
	ListForUser(ctx context.Context, userID string) ([]models.ReadCursor, error)
}

// UserRepositoryInterface defines the contract for locally cached profiles
type UserRepositoryInterface interface {
	Upsert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	Count(ctx context.Context) (int64, error)
	CountByMajor(ctx context.Context) (map[string]int64, error)
}

// GroupRepositoryInterface defines the contract for group documents
type GroupRepositoryInterface interface {
	UpsertAll(ctx context.Context, groups []models.Group) error
	List(ctx context.Context) ([]models.Group, error)
	FindByID(ctx context.Context, id string) (*models.Group, error)
}
