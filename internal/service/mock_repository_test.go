package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
	"gorm.io/gorm"
)

// MockMessageRepository is an in-memory message collection.
// It implements repository.MessageRepositoryInterface.
type MockMessageRepository struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	deleted  map[string]bool
	clock    time.Time
	creates  int
	failWith error
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{
		messages: make(map[string]*models.Message),
		deleted:  make(map[string]bool),
		clock:    time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC),
	}
}

// Seed stores a message as-is, assigning a timestamp when missing.
func (m *MockMessageRepository) Seed(msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		m.clock = m.clock.Add(time.Second)
		msg.CreatedAt = m.clock
	}
	m.messages[msg.ID] = &msg
}

func (m *MockMessageRepository) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockMessageRepository) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

func (m *MockMessageRepository) Create(ctx context.Context, message *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if err := message.BeforeCreate(nil); err != nil {
		return err
	}
	if message.CreatedAt.IsZero() {
		m.clock = m.clock.Add(time.Second)
		message.CreatedAt = m.clock
	}
	stored := *message
	m.messages[message.ID] = &stored
	m.creates++
	return nil
}

func (m *MockMessageRepository) FindByID(ctx context.Context, groupID, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	msg, ok := m.messages[id]
	if !ok || m.deleted[id] || msg.GroupID != groupID {
		return nil, gorm.ErrRecordNotFound
	}
	out := *msg
	return &out, nil
}

func (m *MockMessageRepository) sorted(groupID string) []models.Message {
	var out []models.Message
	for id, msg := range m.messages {
		if msg.GroupID == groupID && !m.deleted[id] {
			out = append(out, *msg)
		}
	}
	models.SortChronological(out)
	return out
}

func (m *MockMessageRepository) LatestWindow(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	all := m.sorted(groupID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *MockMessageRepository) OlderPage(ctx context.Context, groupID string, before models.Cursor, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var older []models.Message
	for _, msg := range m.sorted(groupID) {
		if msg.OlderThan(before) {
			older = append(older, msg)
		}
	}
	if len(older) > limit {
		older = older[len(older)-limit:]
	}
	return older, nil
}

func (m *MockMessageRepository) SoftDelete(ctx context.Context, groupID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	msg, ok := m.messages[id]
	if !ok || m.deleted[id] || msg.GroupID != groupID {
		return gorm.ErrRecordNotFound
	}
	m.deleted[id] = true
	return nil
}

// MockUserRepository implements repository.UserRepositoryInterface.
type MockUserRepository struct {
	users map[string]*models.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*models.User)}
}

func (m *MockUserRepository) Upsert(ctx context.Context, user *models.User) error {
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		out := *user
		return &out, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

func (m *MockUserRepository) CountByMajor(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, u := range m.users {
		if u.Major != "" {
			counts[u.Major]++
		}
	}
	return counts, nil
}

// MockGroupRepository implements repository.GroupRepositoryInterface.
type MockGroupRepository struct {
	groups map[string]models.Group
}

func NewMockGroupRepository() *MockGroupRepository {
	return &MockGroupRepository{groups: make(map[string]models.Group)}
}

func (m *MockGroupRepository) UpsertAll(ctx context.Context, groups []models.Group) error {
	for _, g := range groups {
		m.groups[g.ID] = g
	}
	return nil
}

func (m *MockGroupRepository) List(ctx context.Context) ([]models.Group, error) {
	out := make([]models.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *MockGroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if g, ok := m.groups[id]; ok {
		return &g, nil
	}
	return nil, errors.New("record not found")
}

// MockReadCursorRepository keeps cursors in memory with the monotonic rule.
type MockReadCursorRepository struct {
	mu      sync.Mutex
	cursors map[string]models.ReadCursor
}

func NewMockReadCursorRepository() *MockReadCursorRepository {
	return &MockReadCursorRepository{cursors: make(map[string]models.ReadCursor)}
}

func (m *MockReadCursorRepository) UpsertMonotonic(ctx context.Context, userID, groupID string, lastRead time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + groupID
	if prev, ok := m.cursors[key]; ok && prev.LastRead.After(lastRead) {
		return prev.LastRead, nil
	}
	m.cursors[key] = models.ReadCursor{UserID: userID, GroupID: groupID, LastRead: lastRead}
	return lastRead, nil
}

func (m *MockReadCursorRepository) Get(ctx context.Context, userID, groupID string) (*models.ReadCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[userID+"/"+groupID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (m *MockReadCursorRepository) ListForUser(ctx context.Context, userID string) ([]models.ReadCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReadCursor
	for _, c := range m.cursors {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}
