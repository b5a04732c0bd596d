package repository

import (
	"context"

	"github.com/noteduco342/unichat-backend/internal/models"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *MessageRepository) FindByID(ctx context.Context, groupID, id string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND id = ?", groupID, id).
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// LatestWindow returns the newest limit messages of a group.
func (r *MessageRepository) LatestWindow(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	models.ReverseInPlace(messages)
	return messages, nil
}

// OlderPage returns up to limit messages strictly before the cursor.
func (r *MessageRepository) OlderPage(ctx context.Context, groupID string, before models.Cursor, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if before.ID == "" {
		q = q.Where("created_at < ?", before.CreatedAt)
	} else {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", before.CreatedAt, before.CreatedAt, before.ID)
	}

	var messages []models.Message
	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	models.ReverseInPlace(messages)
	return messages, nil
}

// SoftDelete tombstones a message. It reports gorm.ErrRecordNotFound when nothing matched.
func (r *MessageRepository) SoftDelete(ctx context.Context, groupID, id string) error {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND id = ?", groupID, id).
		Delete(&models.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
