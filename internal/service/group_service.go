package service

import (
	"context"
	"log/slog"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/cache"
	"github.com/noteduco342/unichat-backend/internal/directory"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/repository"
)

type GroupService struct {
	groupRepo repository.GroupRepositoryInterface
	userRepo  repository.UserRepositoryInterface
	catalogue *directory.Catalogue
	dirCache  *cache.DirectoryCache
}

func NewGroupService(
	groupRepo repository.GroupRepositoryInterface,
	userRepo repository.UserRepositoryInterface,
	catalogue *directory.Catalogue,
	dirCache *cache.DirectoryCache,
) *GroupService {
	return &GroupService{
		groupRepo: groupRepo,
		userRepo:  userRepo,
		catalogue: catalogue,
		dirCache:  dirCache,
	}
}

// Directory is the group listing shown to a user.
type Directory struct {
	Majors  []models.Group `json:"majorSpecific"`
	General []models.Group `json:"general"`
	Courses []models.Group `json:"courses"`
	// MyMajor is the group of the user's declared major, when catalogued.
	MyMajor *models.Group `json:"myMajor,omitempty"`
}

// SeedGroups writes every catalogued group to the database.
func (s *GroupService) SeedGroups(ctx context.Context) error {
	if err := s.groupRepo.UpsertAll(ctx, s.catalogue.Groups()); err != nil {
		return apperr.Transport("service.SeedGroups", err)
	}
	return nil
}

func (s *GroupService) Lookup(groupID string) (models.Group, bool) {
	return s.catalogue.Lookup(groupID)
}

// Directory lists every group with its advisory member count. Counts are
// best-effort: when they cannot be loaded the listing still succeeds.
func (s *GroupService) Directory(ctx context.Context, userMajor string) (*Directory, error) {
	counts, err := s.memberCounts(ctx)
	if err != nil {
		slog.Warn("member counts unavailable", "error", err)
		counts = &cache.MemberCounts{}
	}

	dir := &Directory{
		Majors:  []models.Group{},
		General: []models.Group{},
		Courses: []models.Group{},
	}
	for _, g := range s.catalogue.Groups() {
		switch g.Category {
		case models.GroupMajor:
			g.Members = counts.ByMajor[g.Name]
			dir.Majors = append(dir.Majors, g)
		case models.GroupGeneral:
			g.Members = counts.Total
			dir.General = append(dir.General, g)
		case models.GroupCourse:
			g.Members = counts.Total
			dir.Courses = append(dir.Courses, g)
		}
	}

	if id, ok := s.catalogue.MajorGroupID(userMajor); ok {
		for i := range dir.Majors {
			if dir.Majors[i].ID == id {
				mine := dir.Majors[i]
				dir.MyMajor = &mine
				break
			}
		}
	}
	return dir, nil
}

func (s *GroupService) memberCounts(ctx context.Context) (*cache.MemberCounts, error) {
	if counts, ok := s.dirCache.GetMemberCounts(); ok {
		return counts, nil
	}

	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	byMajor, err := s.userRepo.CountByMajor(ctx)
	if err != nil {
		return nil, err
	}

	counts := &cache.MemberCounts{Total: total, ByMajor: byMajor}
	if err := s.dirCache.SetMemberCounts(counts); err != nil {
		slog.Debug("cache member counts", "error", err)
	}
	return counts, nil
}
