package cache

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	MemberCountsTTL = time.Minute
	memberCountsKey = "directory:members"
)

// MemberCounts is the advisory head count shown next to each group.
type MemberCounts struct {
	Total   int64            `msgpack:"total"`
	ByMajor map[string]int64 `msgpack:"by_major"`
}

// DirectoryCache caches the directory member counts
type DirectoryCache struct {
	redis *RedisCache
}

// NewDirectoryCache creates a new directory cache
func NewDirectoryCache(redis *RedisCache) *DirectoryCache {
	return &DirectoryCache{redis: redis}
}

func (dc *DirectoryCache) GetMemberCounts() (*MemberCounts, bool) {
	if dc == nil || dc.redis == nil {
		return nil, false
	}
	data, err := dc.redis.Get(memberCountsKey)
	if err != nil || data == nil {
		return nil, false
	}

	var counts MemberCounts
	if err := msgpack.Unmarshal(data, &counts); err != nil {
		return nil, false
	}
	return &counts, true
}

func (dc *DirectoryCache) SetMemberCounts(counts *MemberCounts) error {
	if dc == nil || dc.redis == nil || counts == nil {
		return nil
	}
	data, err := msgpack.Marshal(counts)
	if err != nil {
		return err
	}
	return dc.redis.Set(memberCountsKey, data, MemberCountsTTL)
}

// InvalidateMemberCounts drops the cached counts after a profile changes major.
func (dc *DirectoryCache) InvalidateMemberCounts() error {
	if dc == nil || dc.redis == nil {
		return nil
	}
	return dc.redis.Delete(memberCountsKey)
}
