package repository

import (
	"context"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
	"gorm.io/gorm"
)

type ReadCursorRepository struct {
	db *gorm.DB
}

func NewReadCursorRepository(db *gorm.DB) *ReadCursorRepository {
	return &ReadCursorRepository{db: db}
}

// UpsertMonotonic creates the cursor on first use and otherwise only moves it
// forward. It returns the stored value, which may be later than lastRead.
func (r *ReadCursorRepository) UpsertMonotonic(ctx context.Context, userID, groupID string, lastRead time.Time) (time.Time, error) {
	var stored struct {
		LastRead time.Time
	}
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO read_cursors (user_id, group_id, last_read, created_at, updated_at)
		VALUES (?, ?, ?, NOW(), NOW())
		ON CONFLICT (user_id, group_id) DO UPDATE
		SET last_read = GREATEST(read_cursors.last_read, EXCLUDED.last_read),
			updated_at = NOW()
		RETURNING last_read
	`, userID, groupID, lastRead.UTC()).Scan(&stored).Error
	if err != nil {
		return time.Time{}, err
	}
	return stored.LastRead.UTC(), nil
}

func (r *ReadCursorRepository) Get(ctx context.Context, userID, groupID string) (*models.ReadCursor, error) {
	var cursor models.ReadCursor
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&cursor).Error
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (r *ReadCursorRepository) ListForUser(ctx context.Context, userID string) ([]models.ReadCursor, error) {
	var cursors []models.ReadCursor
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("group_id").
		Find(&cursors).Error
	return cursors, err
}
