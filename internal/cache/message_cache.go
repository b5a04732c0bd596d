package cache

import (
	"fmt"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

const WindowTTL = 2 * time.Minute

// MessageCache keeps the newest messages of a group so live windows can open
// without a database round trip.
//
// Entries are keyed by a per-group generation. Invalidation bumps the
// generation, so a reader that loaded from the database before a write
// can only fill a key nobody reads any more.
type MessageCache struct {
	redis *RedisCache
}

// NewMessageCache creates a new message cache
func NewMessageCache(redis *RedisCache) *MessageCache {
	return &MessageCache{redis: redis}
}

func windowGenKey(groupID string) string {
	return fmt.Sprintf("window:gen:%s", groupID)
}

func windowKey(groupID string, gen int64, limit int) string {
	return fmt.Sprintf("window:%s:%d:%d", groupID, gen, limit)
}

// Generation returns the current generation of a group's window entries.
func (mc *MessageCache) Generation(groupID string) (int64, error) {
	if mc == nil || mc.redis == nil {
		return 0, nil
	}
	return mc.redis.GetInt(windowGenKey(groupID))
}

// GetWindow retrieves the cached window for a group at generation gen.
func (mc *MessageCache) GetWindow(groupID string, gen int64, limit int) ([]models.Message, bool) {
	if mc == nil || mc.redis == nil {
		return nil, false
	}
	data, err := mc.redis.Get(windowKey(groupID, gen, limit))
	if err != nil || data == nil {
		return nil, false
	}

	var messages []models.Message
	if err := msgpack.Unmarshal(data, &messages); err != nil {
		return nil, false
	}
	for i := range messages {
		messages[i].DeliveryState = models.DeliveryConfirmed
	}
	return messages, true
}

// SetWindow caches a window loaded while gen was current.
func (mc *MessageCache) SetWindow(groupID string, gen int64, limit int, messages []models.Message) error {
	if mc == nil || mc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(messages)
	if err != nil {
		return err
	}
	return mc.redis.Set(windowKey(groupID, gen, limit), data, WindowTTL)
}

// InvalidateWindow retires every cached window of the group.
func (mc *MessageCache) InvalidateWindow(groupID string) error {
	if mc == nil || mc.redis == nil {
		return nil
	}
	_, err := mc.redis.Incr(windowGenKey(groupID))
	return err
}
