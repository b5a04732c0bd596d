package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/cache"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/repository"
	"github.com/noteduco342/unichat-backend/internal/validation"
	"gorm.io/gorm"
)

type UserService struct {
	userRepo repository.UserRepositoryInterface
	dirCache *cache.DirectoryCache
	now      func() time.Time
}

func NewUserService(userRepo repository.UserRepositoryInterface, dirCache *cache.DirectoryCache) *UserService {
	return &UserService{userRepo: userRepo, dirCache: dirCache, now: time.Now}
}

// SyncProfile refreshes the cached profile from the identity's claims.
func (s *UserService) SyncProfile(ctx context.Context, identity models.Identity) (*models.User, error) {
	const op = "service.SyncProfile"

	if !identity.IsAuthenticated() {
		return nil, apperr.Permission(op, "Not signed in")
	}

	previous, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Transport(op, err)
	}

	now := s.now().UTC()
	user := identity.Profile()
	user.DisplayName = validation.TrimAndLimit(user.DisplayName, validation.MaxDisplayNameLength)
	user.Major = validation.TrimAndLimit(user.Major, validation.MaxMajorLength)
	user.LastSeen = &now
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, apperr.Transport(op, err)
	}

	if previous == nil || previous.Major != user.Major {
		if err := s.dirCache.InvalidateMemberCounts(); err != nil {
			slog.Warn("invalidate member counts", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.Transport("service.GetProfile", err)
	}
	return user, nil
}
