package repository

import (
	"context"

	"github.com/noteduco342/unichat-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert refreshes the cached profile from the latest token claims.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "photo_url", "major", "last_seen", "updated_at"}),
	}).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

// CountByMajor returns the number of profiles per declared major.
func (r *UserRepository) CountByMajor(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Major string
		Total int64
	}
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("major, COUNT(*) AS total").
		Where("major <> ''").
		Group("major").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Major] = row.Total
	}
	return counts, nil
}
